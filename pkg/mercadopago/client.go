// Package mercadopago is a small REST client for the MercadoPago checkout
// and payments APIs.
package mercadopago

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIError is a non 2xx response
type APIError struct {
	StatusCode int    `json:"status"`
	Message    string `json:"message"`
	Code       string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago: %d %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Client talks to the MercadoPago API with a bearer access token
type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// NewClient creates a client for the configured environment
func NewClient(cfg *config.MercadoPagoConfig, logger *zap.Logger) *Client {
	return &Client{
		BaseURL:     cfg.APIBaseURL,
		AccessToken: cfg.AccessToken(),
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		Logger:      logger,
	}
}

// CreatePreference creates a checkout preference
func (c *Client) CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error) {
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &pref, true); err != nil {
		return nil, err
	}
	c.Logger.Info("MercadoPago preference created",
		zap.String("preference_id", pref.ID),
		zap.String("external_reference", req.ExternalReference))
	return &pref, nil
}

// GetPayment fetches a payment by id
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &p, false); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateRefund refunds a payment, fully when amount is nil
func (c *Client) CreateRefund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*Refund, error) {
	body := map[string]interface{}{}
	if amount != nil {
		body["amount"] = json.Number(amount.StringFixed(2))
	}
	var r Refund
	if err := c.do(ctx, http.MethodPost, "/v1/payments/"+url.PathEscape(paymentID)+"/refunds", body, &r, true); err != nil {
		return nil, err
	}
	return &r, nil
}

// PaymentMethods lists the payment methods available to the account
func (c *Client) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if err := c.do(ctx, http.MethodGet, "/v1/payment_methods", nil, &methods, false); err != nil {
		return nil, err
	}
	return methods, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, idempotent bool) error {
	if c.AccessToken == "" {
		return fmt.Errorf("mercadopago: access token not configured")
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("mercadopago: failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotent {
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("MercadoPago request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("mercadopago: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mercadopago: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.StatusCode = resp.StatusCode
		c.Logger.Error("MercadoPago API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("mercadopago: failed to decode response: %w", err)
	}
	return nil
}

// VerifySignature checks a hex HMAC-SHA256 of payload. Webhooks are accepted
// when no secret is configured.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the hex HMAC-SHA256 of payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
