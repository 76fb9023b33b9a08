package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creatorcall/backend/docs"
	"github.com/creatorcall/backend/internal/config"
	"github.com/creatorcall/backend/internal/database"
	"github.com/creatorcall/backend/internal/handlers"
	mW "github.com/creatorcall/backend/internal/middleware"
	"github.com/creatorcall/backend/internal/processor"
	"github.com/creatorcall/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title CreatorCall Settlement API
// @version 1.0
// @description Payment-to-payout settlement engine for creator video calls
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.pool_size", "REDIS_POOL_SIZE")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "CreatorCall Settlement API"
	docs.SwaggerInfo.Description = "Payment-to-payout settlement engine for creator video calls"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	processorCfg := config.LoadProcessorConfig()
	schedulerCfg := config.LoadSchedulerConfig()
	processorClient := processor.NewHTTPClient(processorCfg)

	notifier := services.NewQueueNotifier(redisClient)

	reservationService := services.NewReservationService(db)
	settingsService := services.NewSettingsService(db)
	accountService := services.NewCreatorAccountService(db)
	paymentService := services.NewPaymentService(db)
	eligibilityService := services.NewEligibilityService(paymentService, accountService, settingsService, processorClient)
	payoutService := services.NewPayoutService(db, paymentService, accountService, eligibilityService, processorClient, notifier)
	checkoutService := services.NewCheckoutService(reservationService, settingsService, accountService, processorClient, redisClient)
	reconciliationService := services.NewReconciliationService(db, accountService, processorClient)
	webhookService := services.NewWebhookService(db, redisClient, reservationService, paymentService, payoutService, accountService, settingsService, reconciliationService, notifier)
	settlementExportService := services.NewSettlementExportService(payoutService, accountService)
	webhookHandler := handlers.NewWebhookHandler(webhookService, processorClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/webhooks/processor", webhookHandler.HandleEvent)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/checkout/{slotId}", checkoutService.InitiateCheckout)
			r.Get("/checkout/{slotId}/qr", checkoutService.CheckoutQR)
			r.Get("/bookings/{bookingId}", checkoutService.GetBookingStatus)

			r.Post("/payouts", payoutService.RequestPayout)
			r.Get("/payouts/eligibility", eligibilityService.GetEligibility)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Post("/payouts/{payoutId}/approve", payoutService.ApprovePayout)
				r.Post("/payouts/{payoutId}/reject", payoutService.RejectPayout)
				r.Get("/payouts/{payoutId}/audit", payoutService.GetPayoutAudit)
				r.Get("/payouts/{payoutId}/settlement-message", settlementExportService.ExportSettlementMessage)
				r.Post("/reconciliation/currencies", reconciliationService.RunCurrencyReconciliation)
				r.Put("/settings", settingsService.UpdateSettings)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background settlement jobs
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	go runSchedulers(jobsCtx, schedulerCfg, payoutService, reconciliationService)

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopJobs()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

// runSchedulers drives the recurring settlement work: releasing held
// payments past their holding period, running automatic payouts for
// creators on a schedule, and reconciling settlement currencies.
func runSchedulers(ctx context.Context, cfg *config.SchedulerConfig, payouts *services.PayoutService, reconciliation *services.ReconciliationService) {
	releaseTicker := time.NewTicker(cfg.ReleaseInterval)
	payoutTicker := time.NewTicker(cfg.AutoPayoutInterval)
	reconcileTicker := time.NewTicker(cfg.ReconciliationInterval)
	defer releaseTicker.Stop()
	defer payoutTicker.Stop()
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SCHEDULER] Stopping background jobs")
			return
		case <-releaseTicker.C:
			if err := payouts.ReleaseHeldPayments(ctx); err != nil {
				log.Printf("[SCHEDULER] Held payment release failed: %v", err)
			}
		case <-payoutTicker.C:
			payouts.RunScheduled(ctx)
		case <-reconcileTicker.C:
			if _, err := reconciliation.Reconcile(ctx, cfg.ReconciliationDryRun); err != nil {
				log.Printf("[SCHEDULER] Currency reconciliation failed: %v", err)
			}
		}
	}
}
