package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/tradeyard/internal/domain/payment"
)

const testSecret = "whsec_test"

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestCreateIntentConvertsMinorUnits(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(intentPayload{
			ID:           "pi_1",
			ClientSecret: "cs_1",
			Amount:       int64(got["amount"].(float64)),
			Status:       "requires_payment_method",
			Metadata:     map[string]string{"order_id": "ord-1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", testSecret, nil)
	in, err := c.CreateIntent(context.Background(), 721.90, "ord-1")
	require.NoError(t, err)

	assert.EqualValues(t, 72190, got["amount"])
	assert.Equal(t, "pi_1", in.ID)
	assert.Equal(t, "ord-1", in.OrderID)
	assert.InDelta(t, 721.90, in.Amount, 1e-9)
}

func TestUpstreamErrorsWrapSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", testSecret, nil)
	_, err := c.RetrieveIntent(context.Background(), "pi_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrUpstream))

	// Transport failures wrap the same sentinel.
	srv.Close()
	_, err = c.CreateRefund(context.Background(), "pi_1", 10, "requested_by_customer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, payment.ErrUpstream))
}

func TestConstructWebhookEvent(t *testing.T) {
	c := NewClient("http://gateway.invalid", "sk_test", testSecret, nil)

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"pi_1","amount":72190,"status":"succeeded",` +
		`"metadata":{"order_id":"ord-1"}}}}`)

	ev, err := c.ConstructWebhookEvent(payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, payment.EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "pi_1", ev.IntentID)
	assert.Equal(t, "ord-1", ev.OrderID)

	_, err = c.ConstructWebhookEvent(payload, "sha256=deadbeef")
	assert.ErrorIs(t, err, payment.ErrBadSignature)

	_, err = c.ConstructWebhookEvent(payload, "not-hex!")
	assert.ErrorIs(t, err, payment.ErrBadSignature)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	_, err = c.ConstructWebhookEvent(tampered, sign(payload))
	assert.ErrorIs(t, err, payment.ErrBadSignature)
}
