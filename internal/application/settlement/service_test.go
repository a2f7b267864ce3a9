package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/tradeyard/internal/application"
	domain "github.com/tradeyard/tradeyard/internal/domain/order"
	domsettle "github.com/tradeyard/tradeyard/internal/domain/settlement"
	"github.com/tradeyard/tradeyard/internal/infrastructure/memory"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("txn-%d", g.n)
}

func paidOrder(t *testing.T) *domain.Order {
	t.Helper()
	o, err := domain.New("ord-1", "TY-ABC12345", "cust-1", []domain.OrderItem{
		{ProductID: "p1", VendorID: "v1", Name: "Desk", Price: 549.00, Quantity: 1},
		{ProductID: "p2", VendorID: "v2", Name: "Mug", Price: 18.00, Quantity: 3},
		{ProductID: "p3", VendorID: "v3", Name: "Mat", Price: 39.50, Quantity: 2},
	}, 40.00, domain.MethodCard, "", "", "")
	require.NoError(t, err)
	require.NoError(t, o.MarkPaid("pi_1"))
	return o
}

func TestSettleWritesOneRowPerVendor(t *testing.T) {
	repo := memory.NewTransactionRepository()
	svc := NewService(repo, &seqIDs{}, nil)
	o := paidOrder(t)

	require.NoError(t, svc.Settle(context.Background(), o))

	rows, err := repo.ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.InDelta(t, row.Amount, row.VendorAmount+row.PlatformFee, 1e-9)
	}

	// A full replay is a no-op, not an error.
	require.NoError(t, svc.Settle(context.Background(), o))
	rows, _ = repo.ListByOrder(context.Background(), o.ID)
	assert.Len(t, rows, 3)
}

type flakyRepo struct {
	*memory.TransactionRepository
	failVendor string
}

func (r *flakyRepo) Insert(ctx context.Context, t *domsettle.Transaction) error {
	if t.VendorID == r.failVendor {
		return errors.New("ledger unavailable")
	}
	return r.TransactionRepository.Insert(ctx, t)
}

func TestSettlePartialFailureIsIsolated(t *testing.T) {
	inner := memory.NewTransactionRepository()
	repo := &flakyRepo{TransactionRepository: inner, failVendor: "v2"}
	svc := NewService(repo, &seqIDs{}, nil)
	o := paidOrder(t)

	err := svc.Settle(context.Background(), o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v2")

	// The other vendors settled despite v2's failure.
	rows, _ := inner.ListByOrder(context.Background(), o.ID)
	require.Len(t, rows, 2)

	// A retry after recovery fills only the gap.
	repo.failVendor = ""
	require.NoError(t, svc.Settle(context.Background(), o))
	rows, _ = inner.ListByOrder(context.Background(), o.ID)
	assert.Len(t, rows, 3)
}

func TestListByOrderVisibility(t *testing.T) {
	repo := memory.NewTransactionRepository()
	svc := NewService(repo, &seqIDs{}, nil)
	o := paidOrder(t)
	require.NoError(t, svc.Settle(context.Background(), o))

	admin := application.Principal{UserID: "root", Role: application.RoleAdmin}
	all, err := svc.ListByOrder(context.Background(), admin, o.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	vendor := application.Principal{UserID: "v2", Role: application.RoleVendor}
	own, err := svc.ListByOrder(context.Background(), vendor, o.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "v2", own[0].VendorID)

	outsider := application.Principal{UserID: "v9", Role: application.RoleVendor}
	_, err = svc.ListByOrder(context.Background(), outsider, o.ID)
	require.ErrorIs(t, err, application.ErrUnauthorized)

	customer := application.Principal{UserID: "cust-1", Role: application.RoleCustomer}
	_, err = svc.ListByOrder(context.Background(), customer, o.ID)
	require.ErrorIs(t, err, application.ErrUnauthorized)
}
