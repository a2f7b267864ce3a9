// Package gateway is a REST client for the hosted payment provider.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tradeyard/tradeyard/internal/domain/payment"
	"github.com/tradeyard/tradeyard/internal/observability"
)

const peerName = "payment_gateway"

type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	http          *http.Client

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewClient(baseURL, apiKey, webhookSecret string, tel observability.Observability) *Client {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		http:          &http.Client{Timeout: 10 * time.Second},
		extCounter:    tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram:  tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

type intentPayload struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Amount       int64             `json:"amount"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata"`
}

func (p intentPayload) toDomain() *payment.Intent {
	return &payment.Intent{
		ID:           p.ID,
		ClientSecret: p.ClientSecret,
		Amount:       float64(p.Amount) / 100,
		OrderID:      p.Metadata["order_id"],
		Status:       payment.IntentStatus(p.Status),
	}
}

func (c *Client) CreateIntent(ctx context.Context, amount float64, orderID string) (*payment.Intent, error) {
	body := map[string]any{
		// The provider wants integer minor units.
		"amount":   int64(amount*100 + 0.5),
		"currency": "usd",
		"metadata": map[string]string{"order_id": orderID},
	}
	var out intentPayload
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", "create_intent", body, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*payment.Intent, error) {
	var out intentPayload
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, "retrieve_intent", nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) CreateRefund(ctx context.Context, intentID string, amount float64, reason string) (*payment.Refund, error) {
	body := map[string]any{
		"payment_intent": intentID,
		"amount":         int64(amount*100 + 0.5),
		"reason":         reason,
	}
	var out struct {
		ID            string `json:"id"`
		PaymentIntent string `json:"payment_intent"`
		Amount        int64  `json:"amount"`
		Status        string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", "create_refund", body, &out); err != nil {
		return nil, err
	}
	return &payment.Refund{
		ID:       out.ID,
		IntentID: out.PaymentIntent,
		Amount:   float64(out.Amount) / 100,
		Status:   out.Status,
	}, nil
}

// ConstructWebhookEvent verifies the HMAC-SHA256 signature over the raw
// payload before decoding it. Verification uses a constant-time compare.
func (c *Client) ConstructWebhookEvent(payload []byte, signature string) (*payment.WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || !hmac.Equal(got, mac.Sum(nil)) {
		return nil, payment.ErrBadSignature
	}

	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object intentPayload `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %v", payment.ErrBadSignature, err)
	}
	return &payment.WebhookEvent{
		ID:       raw.ID,
		Type:     raw.Type,
		IntentID: raw.Data.Object.ID,
		OrderID:  raw.Data.Object.Metadata["order_id"],
	}, nil
}

// do issues one request and records the external-call metrics. endpoint is
// the low-cardinality template name for the path.
func (c *Client) do(ctx context.Context, method, path, endpoint string, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.extCounter.Add(1,
			observability.L("peer", peerName),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.extHistogram.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerName),
			observability.L("endpoint", endpoint),
		)
	}()

	var payloadReader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payloadReader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payloadReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", payment.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: status %d: %s", payment.ErrUpstream, method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", payment.ErrUpstream, err)
		}
	}
	return nil
}
