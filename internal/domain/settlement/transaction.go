package settlement

import (
	"errors"
	"time"

	"github.com/tradeyard/tradeyard/internal/domain/order"
)

var (
	ErrNotFound = errors.New("settlement: not found")
	ErrConflict = errors.New("settlement: transaction already recorded")
)

// PlatformFeeRate is the share of each vendor's item revenue retained by the
// marketplace operator at settlement.
const PlatformFeeRate = 0.10

type Status string

const (
	StatusCompleted Status = "completed"
)

// Transaction is one immutable vendor settlement ledger row. Amount derives
// only from that vendor's item subtotals; shipping and tax stay with the
// platform and never appear here.
type Transaction struct {
	ID            string
	OrderID       string
	VendorID      string
	CustomerID    string
	Amount        float64
	PlatformFee   float64
	VendorAmount  float64
	PaymentMethod order.Method
	Status        Status
	CompletedAt   time.Time
	CreatedAt     time.Time
}

// Split computes the per-vendor settlement rows for a paid order. It is a
// pure function of the order's item snapshots: vendors appear in first-item
// order, and for every row vendorAmount + platformFee == amount.
func Split(o *order.Order, newID func() string) []*Transaction {
	amounts := make(map[string]float64, len(o.Items))
	for _, it := range o.Items {
		amounts[it.VendorID] += it.Subtotal
	}

	now := time.Now().UTC()
	rows := make([]*Transaction, 0, len(amounts))
	for _, vendorID := range o.VendorIDs() {
		amount := order.Round2(amounts[vendorID])
		fee := order.Round2(amount * PlatformFeeRate)
		rows = append(rows, &Transaction{
			ID:            newID(),
			OrderID:       o.ID,
			VendorID:      vendorID,
			CustomerID:    o.CustomerID,
			Amount:        amount,
			PlatformFee:   fee,
			VendorAmount:  order.Round2(amount - fee),
			PaymentMethod: o.PaymentMethod,
			Status:        StatusCompleted,
			CompletedAt:   now,
			CreatedAt:     now,
		})
	}
	return rows
}
