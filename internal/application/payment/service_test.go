package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/tradeyard/internal/application"
	appsettlement "github.com/tradeyard/tradeyard/internal/application/settlement"
	domain "github.com/tradeyard/tradeyard/internal/domain/order"
	dompayment "github.com/tradeyard/tradeyard/internal/domain/payment"
	domstorage "github.com/tradeyard/tradeyard/internal/domain/storage"
	"github.com/tradeyard/tradeyard/internal/infrastructure/memory"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%08d", g.n)
}

type fakeGateway struct {
	mu      sync.Mutex
	intents map[string]*dompayment.Intent
	events  []*dompayment.WebhookEvent
	fail    bool
	refunds int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*dompayment.Intent{}}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amount float64, orderID string) (*dompayment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errors.New("gateway offline")
	}
	in := &dompayment.Intent{
		ID:           fmt.Sprintf("pi_%d", len(g.intents)+1),
		ClientSecret: "cs_test",
		Amount:       amount,
		OrderID:      orderID,
		Status:       dompayment.IntentProcessing,
	}
	g.intents[in.ID] = in
	return in, nil
}

func (g *fakeGateway) RetrieveIntent(ctx context.Context, intentID string) (*dompayment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errors.New("gateway offline")
	}
	in, ok := g.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	return in, nil
}

func (g *fakeGateway) succeed(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = dompayment.IntentSucceeded
}

func (g *fakeGateway) ConstructWebhookEvent(payload []byte, signature string) (*dompayment.WebhookEvent, error) {
	if signature != "valid" {
		return nil, dompayment.ErrBadSignature
	}
	parts := strings.Split(string(payload), "|") // id|type|intent|order
	return &dompayment.WebhookEvent{ID: parts[0], Type: parts[1], IntentID: parts[2], OrderID: parts[3]}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, intentID string, amount float64, reason string) (*dompayment.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, errors.New("gateway offline")
	}
	g.refunds++
	return &dompayment.Refund{ID: fmt.Sprintf("re_%d", g.refunds), IntentID: intentID, Amount: amount, Status: "succeeded"}, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	n       int
	deleted []string
}

func (s *fakeStorage) Upload(ctx context.Context, name, contentType string, r io.Reader) (*domstorage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	id := fmt.Sprintf("obj-%d", s.n)
	return &domstorage.Object{PublicID: id, URL: "http://files.local/" + id}, nil
}

func (s *fakeStorage) Delete(ctx context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, publicID)
	return nil
}

type fixture struct {
	svc          *Service
	orders       *memory.OrderRepository
	transactions *memory.TransactionRepository
	gateway      *fakeGateway
	storage      *fakeStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := memory.NewOrderRepository()
	transactions := memory.NewTransactionRepository()
	gw := newFakeGateway()
	store := &fakeStorage{}
	settler := appsettlement.NewService(transactions, &seqIDs{}, nil)
	svc := NewService(orders, gw, store, memory.NewDedupe(), settler, nil, nil)
	return &fixture{svc: svc, orders: orders, transactions: transactions, gateway: gw, storage: store}
}

var (
	owner  = application.Principal{UserID: "cust-1", Role: application.RoleCustomer}
	vendor = application.Principal{UserID: "v1", Role: application.RoleVendor}
	admin  = application.Principal{UserID: "root", Role: application.RoleAdmin}
)

func (f *fixture) seedOrder(t *testing.T, method domain.Method) *domain.Order {
	t.Helper()
	o, err := domain.New("ord-1", "TY-ABC12345", "cust-1", []domain.OrderItem{
		{ProductID: "p1", VendorID: "v1", Name: "Desk", Price: 549.00, Quantity: 1},
		{ProductID: "p2", VendorID: "v2", Name: "Mug", Price: 18.00, Quantity: 3},
	}, 35.00, method, "", "", "")
	require.NoError(t, err)
	require.NoError(t, f.orders.Insert(context.Background(), o))
	return o
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	stranger := application.Principal{UserID: "other", Role: application.RoleCustomer}
	_, err := f.svc.CreateIntent(ctx, stranger, o.ID, 0)
	require.ErrorIs(t, err, application.ErrUnauthorized)

	intent, err := f.svc.CreateIntent(ctx, owner, o.ID, 0)
	require.NoError(t, err)
	assert.InDelta(t, o.Total, intent.Amount, 1e-9)
	assert.NotEmpty(t, intent.ClientSecret)

	stored, _ := f.orders.Get(ctx, o.ID)
	assert.Equal(t, intent.ID, stored.PaymentIntentID)
}

func TestCreateIntentWrongTrack(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, domain.MethodEFT)
	_, err := f.svc.CreateIntent(context.Background(), owner, o.ID, 0)
	require.ErrorIs(t, err, domain.ErrWrongMethod)
}

func TestConfirmSettlesOncePerVendor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	intent, err := f.svc.CreateIntent(ctx, owner, o.ID, 0)
	require.NoError(t, err)

	// Not yet succeeded at the gateway.
	_, err = f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.ErrorIs(t, err, application.ErrValidation)

	f.gateway.succeed(intent.ID)
	res, err := f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.NoError(t, err)
	require.NoError(t, res.SettlementErr)
	assert.Equal(t, domain.PaymentPaid, res.Order.PaymentStatus)
	assert.Equal(t, domain.StatusConfirmed, res.Order.Status)

	rows, err := f.transactions.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.InDelta(t, 549.00, rows[0].Amount, 1e-9)
	assert.InDelta(t, 54.90, rows[0].PlatformFee, 1e-9)
	assert.InDelta(t, 494.10, rows[0].VendorAmount, 1e-9)

	// Replayed confirm conflicts and never settles twice.
	_, err = f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyPaid)
	rows, _ = f.transactions.ListByOrder(ctx, o.ID)
	assert.Len(t, rows, 2)
}

func TestWebhookSignatureRejected(t *testing.T) {
	f := newFixture(t)
	err := f.svc.HandleWebhook(context.Background(), []byte("evt|x|pi|ord"), "forged")
	require.ErrorIs(t, err, dompayment.ErrBadSignature)
}

func TestWebhookFailureMarksOrderFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	payload := []byte("evt-1|" + dompayment.EventPaymentFailed + "|pi_1|" + o.ID)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, "valid"))

	stored, _ := f.orders.Get(ctx, o.ID)
	assert.Equal(t, domain.PaymentFailed, stored.PaymentStatus)
}

func TestWebhookFailureNeverDowngradesPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	intent, err := f.svc.CreateIntent(ctx, owner, o.ID, 0)
	require.NoError(t, err)
	f.gateway.succeed(intent.ID)
	_, err = f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.NoError(t, err)

	payload := []byte("evt-1|" + dompayment.EventPaymentFailed + "|" + intent.ID + "|" + o.ID)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, "valid"))

	stored, _ := f.orders.Get(ctx, o.ID)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
}

func TestWebhookDuplicateDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	payload := []byte("evt-dup|" + dompayment.EventPaymentFailed + "|pi_1|" + o.ID)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, "valid"))

	// Flip the order back by hand; a redelivery must not touch it again.
	stored, _ := f.orders.Get(ctx, o.ID)
	stored.PaymentStatus = domain.PaymentPending
	require.NoError(t, f.orders.Update(ctx, stored))

	require.NoError(t, f.svc.HandleWebhook(ctx, payload, "valid"))
	stored, _ = f.orders.Get(ctx, o.ID)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)
}

func TestWebhookSuccessDoesNotMarkPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	payload := []byte("evt-2|" + dompayment.EventPaymentSucceeded + "|pi_1|" + o.ID)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, "valid"))

	stored, _ := f.orders.Get(ctx, o.ID)
	assert.Equal(t, domain.PaymentPending, stored.PaymentStatus)
	rows, _ := f.transactions.ListByOrder(ctx, o.ID)
	assert.Empty(t, rows)
}

func TestUploadProofReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodEFT)

	_, err := f.svc.UploadProof(ctx, vendor, o.ID, "r.png", "image/png", bytes.NewBufferString("img"))
	require.ErrorIs(t, err, application.ErrUnauthorized)

	first, err := f.svc.UploadProof(ctx, owner, o.ID, "r.png", "image/png", bytes.NewBufferString("img"))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentAwaitingConfirmation, first.PaymentStatus)
	require.NotNil(t, first.PaymentProof)

	second, err := f.svc.UploadProof(ctx, owner, o.ID, "r2.png", "image/png", bytes.NewBufferString("img2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.PaymentProof.PublicID, second.PaymentProof.PublicID)
	assert.Equal(t, []string{first.PaymentProof.PublicID}, f.storage.deleted)
}

func TestUploadProofWrongTrack(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, domain.MethodCard)
	_, err := f.svc.UploadProof(context.Background(), owner, o.ID, "r.png", "image/png", bytes.NewBufferString("img"))
	require.ErrorIs(t, err, domain.ErrWrongMethod)
}

func TestConfirmManualDoesNotSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodEFT)
	_, err := f.svc.UploadProof(ctx, owner, o.ID, "r.png", "image/png", bytes.NewBufferString("img"))
	require.NoError(t, err)

	_, err = f.svc.ConfirmManual(ctx, owner, o.ID)
	require.ErrorIs(t, err, application.ErrUnauthorized)

	got, err := f.svc.ConfirmManual(ctx, vendor, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "v1", got.PaymentConfirmedBy)

	_, err = f.svc.ConfirmManual(ctx, vendor, o.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyPaid)

	// Manual confirmations leave the settlement ledger alone.
	rows, _ := f.transactions.ListByOrder(ctx, o.ID)
	assert.Empty(t, rows)
}

func TestRejectManualRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodEFT)

	_, err := f.svc.RejectManual(ctx, vendor, o.ID, "")
	require.ErrorIs(t, err, application.ErrValidation)

	got, err := f.svc.RejectManual(ctx, vendor, o.ID, "amount mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, "amount mismatch", got.CancellationReason)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	intent, err := f.svc.CreateIntent(ctx, owner, o.ID, 0)
	require.NoError(t, err)
	f.gateway.succeed(intent.ID)
	_, err = f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Refund(ctx, owner, o.ID, 0, "buyer remorse")
	require.ErrorIs(t, err, application.ErrUnauthorized)

	_, _, err = f.svc.Refund(ctx, admin, o.ID, o.Total*2, "over")
	require.ErrorIs(t, err, application.ErrValidation)

	refund, got, err := f.svc.Refund(ctx, admin, o.ID, 0, "buyer remorse")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", refund.Status)
	assert.Equal(t, domain.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, domain.StatusRefunded, got.Status)
	assert.InDelta(t, got.Total, got.RefundAmount, 1e-9)

	// Settlement rows survive the refund for reconciliation.
	rows, _ := f.transactions.ListByOrder(ctx, o.ID)
	assert.Len(t, rows, 2)

	_, _, err = f.svc.Refund(ctx, admin, o.ID, 0, "again")
	require.ErrorIs(t, err, domain.ErrNotPaid)
}

func TestRefundUpstreamFailureLeavesOrderPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodCard)

	intent, err := f.svc.CreateIntent(ctx, owner, o.ID, 0)
	require.NoError(t, err)
	f.gateway.succeed(intent.ID)
	_, err = f.svc.Confirm(ctx, owner, o.ID, intent.ID)
	require.NoError(t, err)

	f.gateway.fail = true
	_, _, err = f.svc.Refund(ctx, admin, o.ID, 0, "try")
	require.ErrorIs(t, err, dompayment.ErrUpstream)

	stored, _ := f.orders.Get(ctx, o.ID)
	assert.Equal(t, domain.PaymentPaid, stored.PaymentStatus)
	assert.Zero(t, stored.RefundAmount)
}

func TestRefundRequiresGatewayReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(t, domain.MethodEFT)
	stored, _ := f.orders.Get(ctx, o.ID)
	require.NoError(t, stored.ConfirmManualPayment("v1"))
	require.NoError(t, f.orders.Update(ctx, stored))

	_, _, err := f.svc.Refund(ctx, admin, o.ID, 0, "manual order")
	require.ErrorIs(t, err, application.ErrValidation)
}
