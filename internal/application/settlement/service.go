package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradeyard/tradeyard/internal/application"
	domain "github.com/tradeyard/tradeyard/internal/domain/order"
	domsettle "github.com/tradeyard/tradeyard/internal/domain/settlement"
	"github.com/tradeyard/tradeyard/internal/observability"
	"github.com/tradeyard/tradeyard/internal/observability/logctx"
)

const (
	settlementService = "settlement-service"

	useCaseSettle = "settlement.settle"
	useCaseList   = "settlement.list"
)

// IDGenerator issues unique identifiers for new ledger rows.
type IDGenerator interface {
	NewID() string
}

type Service struct {
	transactions domsettle.Repository
	idGen        IDGenerator
	tel          observability.Observability
	log          observability.Logger
}

func NewService(transactions domsettle.Repository, idGen IDGenerator, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		transactions: transactions,
		idGen:        idGen,
		tel:          tel,
		log:          tel.Logger().With(observability.F("service", settlementService)),
	}
}

// Settle splits a paid order into one ledger row per vendor. Every vendor's
// insert is attempted independently: one vendor's failure neither blocks nor
// rolls back the others, and the joined error is returned for reconciliation.
// Rows are keyed (order, vendor) so retries after a partial failure only fill
// the gaps.
func (s *Service) Settle(ctx context.Context, o *domain.Order) (err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseSettle)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("order_id", o.ID))

	var failures []error
	for _, row := range domsettle.Split(o, s.idGen.NewID) {
		ierr := s.transactions.Insert(ctx, row)
		switch {
		case ierr == nil:
			logger.Info("vendor_settled",
				observability.F("vendor_id", row.VendorID),
				observability.F("amount", row.Amount),
				observability.F("platform_fee", row.PlatformFee),
				observability.F("vendor_amount", row.VendorAmount),
			)
		case errors.Is(ierr, domsettle.ErrConflict):
			// Already settled on a previous attempt.
			logger.Info("vendor_already_settled", observability.F("vendor_id", row.VendorID))
		default:
			logger.Error("vendor_settlement_failed",
				observability.F("vendor_id", row.VendorID),
				observability.F("error", ierr.Error()),
			)
			failures = append(failures, fmt.Errorf("settle vendor %s: %w", row.VendorID, ierr))
		}
	}
	err = errors.Join(failures...)
	return err
}

// ListByOrder returns the settlement rows for one order. Visible to admins
// and to vendors with a row in it.
func (s *Service) ListByOrder(ctx context.Context, p application.Principal, orderID string) (rows []*domsettle.Transaction, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseList)
	defer func() { done(err) }()

	rows, err = s.transactions.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return rows, nil
	}
	if p.Role == application.RoleVendor {
		own := rows[:0:0]
		for _, row := range rows {
			if row.VendorID == p.UserID {
				own = append(own, row)
			}
		}
		if len(own) > 0 {
			return own, nil
		}
	}
	return nil, application.Unauthorized("no settlement visibility for this order")
}
