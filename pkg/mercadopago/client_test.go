package mercadopago

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.MercadoPagoConfig{
		Environment:        "sandbox",
		SandboxAccessToken: "TEST-token",
		APIBaseURL:         srv.URL,
		Timeout:            2 * time.Second,
	}, zap.NewNop())
}

func TestCreatePreference(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/init","sandbox_init_point":"https://sandbox/init"}`))
	})

	pref, err := client.CreatePreference(context.Background(), &PreferenceRequest{
		Items: []PreferenceItem{{
			Title:      "Destacar propiedad",
			Quantity:   1,
			UnitPrice:  decimal.RequireFromString("7000"),
			CurrencyID: "ARS",
		}},
		ExternalReference: "highlight-1-abc",
		AutoReturn:        "approved",
	})

	require.NoError(t, err)
	assert.Equal(t, "pref-1", pref.ID)
	assert.Equal(t, "https://sandbox/init", pref.SandboxInitPoint)

	items := got["items"].([]interface{})
	item := items[0].(map[string]interface{})
	assert.Equal(t, 7000.0, item["unit_price"])
	assert.Equal(t, "ARS", item["currency_id"])
	assert.Equal(t, "highlight-1-abc", got["external_reference"])
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":123,"status":"approved","status_detail":"accredited","transaction_amount":5000.5,"currency_id":"ARS","external_reference":"community_profile-4-x","payer":{"email":"a@b.c"}}`))
	})

	p, err := client.GetPayment(context.Background(), "123")

	require.NoError(t, err)
	assert.Equal(t, int64(123), p.ID)
	assert.Equal(t, StatusApproved, p.Status)
	assert.True(t, decimal.RequireFromString("5000.5").Equal(p.TransactionAmount))
	assert.Equal(t, "community_profile-4-x", p.ExternalReference)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Payment not found","error":"not_found","status":404}`))
	})

	_, err := client.GetPayment(context.Background(), "999")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Payment not found", apiErr.Message)
}

func TestCreateRefundPartial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/55/refunds", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount":100.00}`, string(body))
		_, _ = w.Write([]byte(`{"id":1,"payment_id":55,"amount":100,"status":"approved"}`))
	})

	amount := decimal.NewFromInt(100)
	refund, err := client.CreateRefund(context.Background(), "55", &amount)

	require.NoError(t, err)
	assert.Equal(t, int64(55), refund.PaymentID)
}

func TestPaymentMethods(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"visa","name":"Visa","payment_type_id":"credit_card","status":"active"}]`))
	})

	methods, err := client.PaymentMethods(context.Background())

	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, "visa", methods[0].ID)
}

func TestMissingAccessToken(t *testing.T) {
	client := NewClient(&config.MercadoPagoConfig{Environment: "sandbox"}, zap.NewNop())

	_, err := client.GetPayment(context.Background(), "1")

	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"payment","data":{"id":"1"}}`)
	sig := Sign(payload, "secret")

	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature(payload, "zz-not-hex", "secret"))
	assert.False(t, VerifySignature(payload, "", "secret"))
	assert.True(t, VerifySignature(payload, "", ""))
}

func TestNotificationIDs(t *testing.T) {
	var n Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id":98765,"type":"payment","data":{"id":"123"}}`), &n))
	assert.True(t, n.IsPayment())
	assert.Equal(t, "123", n.PaymentID())

	var legacy Notification
	require.NoError(t, json.Unmarshal([]byte(`{"id":456,"topic":"payment"}`), &legacy))
	assert.True(t, legacy.IsPayment())
	assert.Equal(t, "456", legacy.PaymentID())

	var other Notification
	require.NoError(t, json.Unmarshal([]byte(`{"type":"merchant_order","data":{"id":7}}`), &other))
	assert.False(t, other.IsPayment())
	assert.Equal(t, "7", other.PaymentID())
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "$ 1.234,50", FormatAmount(decimal.RequireFromString("1234.5"), "ARS"))
	assert.Equal(t, "$ 7.000,00", FormatAmount(decimal.NewFromInt(7000), ""))
	assert.Equal(t, "$ 999,99", FormatAmount(decimal.RequireFromString("999.99"), "ARS"))
	assert.Equal(t, "US$ 1.000.000,00", FormatAmount(decimal.NewFromInt(1000000), "USD"))
	assert.Equal(t, "-$ 10,00", FormatAmount(decimal.NewFromInt(-10), "ARS"))
}

func TestStatusDescription(t *testing.T) {
	assert.Equal(t, "Pago aprobado", StatusDescription(StatusApproved, ""))
	assert.Equal(t, "Contracargo", StatusDescription(StatusChargedBack, ""))
	assert.Equal(t, "Estado: weird (x)", StatusDescription("weird", "x"))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusInProcess, StatusPending, true},
		{StatusApproved, StatusApproved, true},
		{StatusApproved, StatusPending, false},
		{StatusApproved, StatusInProcess, false},
		{StatusApproved, StatusRejected, false},
		{StatusApproved, StatusRefunded, true},
		{StatusRejected, StatusApproved, true},
		{StatusRejected, StatusPending, false},
		{StatusRefunded, StatusApproved, false},
		{StatusChargedBack, StatusRefunded, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
