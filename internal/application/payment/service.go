package payment

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/tradeyard/tradeyard/internal/application"
	domain "github.com/tradeyard/tradeyard/internal/domain/order"
	domoutbox "github.com/tradeyard/tradeyard/internal/domain/outbox"
	dompayment "github.com/tradeyard/tradeyard/internal/domain/payment"
	domstorage "github.com/tradeyard/tradeyard/internal/domain/storage"
	"github.com/tradeyard/tradeyard/internal/observability"
	"github.com/tradeyard/tradeyard/internal/observability/logctx"
)

const (
	paymentService = "payment-service"

	useCaseIntent        = "payment.create_intent"
	useCaseConfirm       = "payment.confirm"
	useCaseWebhook       = "payment.webhook"
	useCaseRefund        = "payment.refund"
	useCaseUploadProof   = "payment.upload_proof"
	useCaseConfirmManual = "payment.confirm_manual"
	useCaseRejectManual  = "payment.reject_manual"

	publishTimeout = 300 * time.Millisecond
)

// Settler creates the per-vendor ledger rows for a paid order.
type Settler interface {
	Settle(ctx context.Context, o *domain.Order) error
}

type Service struct {
	orders    domain.Repository
	gateway   dompayment.Gateway
	storage   domstorage.ObjectStorage
	dedupe    EventDedupe
	settler   Settler
	publisher domoutbox.Publisher
	tel       observability.Observability
	log       observability.Logger
}

func NewService(
	orders domain.Repository,
	gateway dompayment.Gateway,
	objectStorage domstorage.ObjectStorage,
	dedupe EventDedupe,
	settler Settler,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		orders:    orders,
		gateway:   gateway,
		storage:   objectStorage,
		dedupe:    dedupe,
		settler:   settler,
		publisher: publisher,
		tel:       tel,
		log:       tel.Logger().With(observability.F("service", paymentService)),
	}
}

// CreateIntent opens a gateway payment intent for a gateway-track order and
// records the intent reference on the order.
func (s *Service) CreateIntent(ctx context.Context, p application.Principal, orderID string, amount float64) (intent *dompayment.Intent, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseIntent)
	defer func() { done(err) }()

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && p.UserID != o.CustomerID {
		return nil, application.Unauthorized("order belongs to another user")
	}
	if o.PaymentMethod.Track() != domain.TrackGateway {
		return nil, domain.ErrWrongMethod
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if amount <= 0 {
		amount = o.Total
	}

	intent, err = s.gateway.CreateIntent(ctx, amount, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %w", dompayment.ErrUpstream, err)
	}

	o.PaymentIntentID = intent.ID
	if uerr := s.orders.Update(ctx, o); uerr != nil {
		return nil, fmt.Errorf("payment: record intent: %w", uerr)
	}
	return intent, nil
}

type ConfirmResult struct {
	Order *domain.Order
	// SettlementErr carries per-vendor settlement failures. The payment is
	// committed regardless; the error is surfaced for reconciliation.
	SettlementErr error
}

// Confirm is the single path that marks a gateway order paid and triggers
// vendor settlement. The webhook handler never does either. The paid flag is
// the idempotency check: a duplicate confirm fails with ErrAlreadyPaid and
// settlement never runs twice.
func (s *Service) Confirm(ctx context.Context, p application.Principal, orderID, intentID string) (res ConfirmResult, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseConfirm)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseConfirm), observability.F("order_id", orderID))

	if intentID == "" {
		return res, application.Validation("paymentIntentId is required")
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return res, err
	}
	if !p.IsAdmin() && p.UserID != o.CustomerID {
		return res, application.Unauthorized("order belongs to another user")
	}
	if o.PaymentMethod.Track() != domain.TrackGateway {
		return res, domain.ErrWrongMethod
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return res, domain.ErrAlreadyPaid
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return res, fmt.Errorf("%w: retrieve intent: %w", dompayment.ErrUpstream, err)
	}
	if intent.Status != dompayment.IntentSucceeded {
		return res, application.Validation("payment has not succeeded at the gateway")
	}

	if err = o.MarkPaid(intentID); err != nil {
		return res, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return res, fmt.Errorf("payment: update order: %w", err)
	}

	// Primary state is committed; settlement failures must not undo it.
	res.Order = o
	res.SettlementErr = s.settler.Settle(ctx, o)
	if res.SettlementErr != nil {
		logger.Error("settlement_incomplete", observability.F("error", res.SettlementErr.Error()))
	}

	s.publish(ctx, domain.NewOrderPaidEvent(o))
	logger.Info("payment_confirmed", observability.F("intent_id", intentID))
	return res, nil
}

// HandleWebhook verifies and processes an asynchronous gateway event. Failure
// events mark the payment failed; success events are acknowledged but never
// flip an order to paid — only the explicit confirm call settles. Redelivered
// events are deduplicated by event id.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseWebhook)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseWebhook))

	event, err := s.gateway.ConstructWebhookEvent(payload, signature)
	if err != nil {
		return err
	}
	logger = logger.With(observability.F("event_id", event.ID), observability.F("event_type", event.Type))

	if s.dedupe != nil {
		first, derr := s.dedupe.FirstSeen(ctx, event.ID)
		if derr != nil {
			logger.Warn("webhook_dedupe_unavailable", observability.F("error", derr.Error()))
		} else if !first {
			logger.Info("webhook_duplicate_dropped")
			return nil
		}
	}

	switch event.Type {
	case dompayment.EventPaymentFailed:
		o, gerr := s.orders.Get(ctx, event.OrderID)
		if gerr != nil {
			return gerr
		}
		if ferr := o.MarkPaymentFailed(); ferr != nil {
			// Confirm already won the race; keep paid and drop the event.
			logger.Warn("webhook_failure_after_paid_dropped")
			return nil
		}
		if uerr := s.orders.Update(ctx, o); uerr != nil {
			return fmt.Errorf("payment: update order: %w", uerr)
		}
		logger.Info("payment_marked_failed")
	case dompayment.EventPaymentSucceeded:
		logger.Info("webhook_success_acknowledged")
	default:
		logger.Info("webhook_ignored")
	}
	return nil
}

// UploadProof attaches proof-of-payment evidence to a manual-track order.
// Only the order's owner may upload; a previously uploaded proof is deleted
// from object storage first.
func (s *Service) UploadProof(ctx context.Context, p application.Principal, orderID, filename, contentType string, file io.Reader) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseUploadProof)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseUploadProof), observability.F("order_id", orderID))

	o, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != o.CustomerID {
		return nil, application.Unauthorized("only the order owner may upload payment proof")
	}
	if o.PaymentMethod.Track() != domain.TrackManual {
		return nil, domain.ErrWrongMethod
	}

	if prev := o.PaymentProof; prev != nil {
		if derr := s.storage.Delete(ctx, prev.PublicID); derr != nil {
			logger.Warn("previous_proof_delete_failed", observability.F("error", derr.Error()))
		}
	}

	obj, err := s.storage.Upload(ctx, filename, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domstorage.ErrUpstream, err)
	}
	if _, err = o.AttachProof(domain.PaymentProof{
		PublicID:   obj.PublicID,
		URL:        obj.URL,
		UploadedAt: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("payment: update order: %w", err)
	}
	logger.Info("payment_proof_uploaded", observability.F("public_id", obj.PublicID))
	return o, nil
}

// ConfirmManual approves an offline payment. A vendor with an item in the
// order or an admin may confirm; a second confirmation fails with conflict
// and never settles twice (manual payments do not create settlement rows).
func (s *Service) ConfirmManual(ctx context.Context, p application.Principal, orderID string) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseConfirmManual)
	defer func() { done(err) }()

	o, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !o.HasVendor(p.UserID) {
		return nil, application.Unauthorized("only an order vendor or admin may confirm payment")
	}
	if err = o.ConfirmManualPayment(p.UserID); err != nil {
		return nil, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("payment: update order: %w", err)
	}
	s.publish(ctx, domain.NewOrderPaidEvent(o))
	return o, nil
}

// RejectManual declines an offline payment with a mandatory reason. The
// fulfillment status is left unchanged.
func (s *Service) RejectManual(ctx context.Context, p application.Principal, orderID, reason string) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseRejectManual)
	defer func() { done(err) }()

	if reason == "" {
		return nil, application.Validation("a rejection reason is required")
	}
	o, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !o.HasVendor(p.UserID) {
		return nil, application.Unauthorized("only an order vendor or admin may reject payment")
	}
	if err = o.RejectManualPayment(p.UserID, reason); err != nil {
		return nil, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("payment: update order: %w", err)
	}
	return o, nil
}

// Refund issues a gateway refund for a paid order, admin only. It requires a
// gateway-recorded payment reference and intentionally leaves settlement rows
// untouched; RefundAmount/RefundedAt are the reconciliation trail.
func (s *Service) Refund(ctx context.Context, p application.Principal, orderID string, amount float64, reason string) (refund *dompayment.Refund, o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseRefund)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseRefund), observability.F("order_id", orderID))

	if !p.IsAdmin() {
		return nil, nil, application.Unauthorized("admin role required")
	}
	o, err = s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.PaymentIntentID == "" {
		return nil, nil, application.Validation("order has no gateway payment to refund")
	}
	if o.PaymentStatus != domain.PaymentPaid {
		return nil, nil, domain.ErrNotPaid
	}
	if amount <= 0 {
		amount = o.Total
	}
	if amount > o.Total {
		return nil, nil, application.Validation("refund amount exceeds order total")
	}

	refund, err = s.gateway.CreateRefund(ctx, o.PaymentIntentID, amount, reason)
	if err != nil {
		// Upstream failure: surface it, leave the order untouched.
		return nil, nil, fmt.Errorf("%w: create refund: %w", dompayment.ErrUpstream, err)
	}

	if err = o.Refund(amount); err != nil {
		return nil, nil, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, nil, fmt.Errorf("payment: update order: %w", err)
	}
	logger.Info("payment_refunded", observability.F("amount", amount), observability.F("refund_id", refund.ID))
	return refund, o, nil
}

func (s *Service) publish(ctx context.Context, e domoutbox.Event) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, e); err != nil {
		s.tel.Metrics().Counter(observability.MEventPublishFailures).Add(1,
			observability.L("event", e.EventName()),
		)
		logctx.FromOr(ctx, s.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}
