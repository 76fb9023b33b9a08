package processor

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/creatorcall/backend/internal/config"
)

// HTTPClient talks to the payment processor's REST API. Every call is
// bounded by the configured timeout on top of whatever deadline the caller
// already set.
type HTTPClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func NewHTTPClient(cfg *config.ProcessorConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	var intent Intent
	if err := c.post(ctx, "/v1/payment_intents", "", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *HTTPClient) CreatePayout(ctx context.Context, req PayoutRequest) (*Transfer, error) {
	var transfer Transfer
	if err := c.post(ctx, "/v1/payouts", req.IdempotencyKey, req, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *HTTPClient) GetPayout(ctx context.Context, payoutID string) (*Transfer, error) {
	var transfer Transfer
	if err := c.get(ctx, "/v1/payouts/"+url.PathEscape(payoutID), &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (c *HTTPClient) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	var status AccountStatus
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) GetBalance(ctx context.Context, accountID string) (*Balance, error) {
	var balance Balance
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(accountID)+"/balance", &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// VerifyEventSignature authenticates a webhook payload against the shared
// webhook secret before any of it is trusted.
func (c *HTTPClient) VerifyEventSignature(payload []byte, signature string) error {
	return VerifySignature(c.webhookSecret, payload, signature)
}

// VerifySignature checks an HMAC-SHA256 hex signature over the raw payload.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return errors.New("webhook secret not configured")
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &Error{Op: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return &Error{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	return c.do(req, path, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &Error{Op: path, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, path, out)
}

func (c *HTTPClient) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Timeout: isTimeoutErr(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Error{Op: op, Err: err}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Code != "" {
			return &Error{Op: op, Code: apiErr.Error.Code, Err: fmt.Errorf("%s (http %d)", apiErr.Error.Message, resp.StatusCode)}
		}
		return &Error{Op: op, Code: fmt.Sprintf("http_%d", resp.StatusCode), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
