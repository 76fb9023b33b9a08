package config

import (
	"os"
	"strconv"
	"time"
)

// ProcessorConfig holds the external payment processor connection settings.
type ProcessorConfig struct {
	BaseURL        string
	APIKey         string
	WebhookSecret  string
	RequestTimeout time.Duration
}

func LoadProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		BaseURL:        getEnv("PROCESSOR_BASE_URL", "https://api.processor.local"),
		APIKey:         getEnv("PROCESSOR_API_KEY", ""),
		WebhookSecret:  getEnv("PROCESSOR_WEBHOOK_SECRET", ""),
		RequestTimeout: getEnvAsDuration("PROCESSOR_REQUEST_TIMEOUT", 15*time.Second),
	}
}

// SchedulerConfig controls the background settlement jobs.
type SchedulerConfig struct {
	ReleaseInterval        time.Duration
	AutoPayoutInterval     time.Duration
	ReconciliationInterval time.Duration
	ReconciliationDryRun   bool
}

func LoadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		ReleaseInterval:        getEnvAsDuration("RELEASE_JOB_INTERVAL", 1*time.Hour),
		AutoPayoutInterval:     getEnvAsDuration("AUTO_PAYOUT_INTERVAL", 24*time.Hour),
		ReconciliationInterval: getEnvAsDuration("CURRENCY_RECON_INTERVAL", 24*time.Hour),
		ReconciliationDryRun:   getEnvAsBool("CURRENCY_RECON_DRY_RUN", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
