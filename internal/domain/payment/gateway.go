package payment

import (
	"context"
	"errors"
)

var (
	// ErrUpstream wraps any gateway transport or API failure. Callers surface
	// it without mutating primary order state.
	ErrUpstream = errors.New("payment: gateway failure")
	// ErrBadSignature marks a webhook payload whose signature does not verify.
	ErrBadSignature = errors.New("payment: invalid webhook signature")
)

type IntentStatus string

const (
	IntentRequiresPayment IntentStatus = "requires_payment_method"
	IntentProcessing      IntentStatus = "processing"
	IntentSucceeded       IntentStatus = "succeeded"
	IntentFailed          IntentStatus = "failed"
)

type Intent struct {
	ID           string
	ClientSecret string
	Amount       float64
	OrderID      string
	Status       IntentStatus
}

type Refund struct {
	ID       string
	IntentID string
	Amount   float64
	Status   string
}

// Webhook event types delivered by the gateway.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// WebhookEvent is a verified, decoded gateway notification.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	OrderID  string
}

// Gateway is the outbound port for the online payment collaborator.
type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, orderID string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	ConstructWebhookEvent(payload []byte, signature string) (*WebhookEvent, error)
	CreateRefund(ctx context.Context, intentID string, amount float64, reason string) (*Refund, error)
}
