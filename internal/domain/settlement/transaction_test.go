package settlement

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeyard/tradeyard/internal/domain/order"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("txn-%d", n)
	}
}

func paidOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New("ord-1", "TY-ABC12345", "cust-1", []order.OrderItem{
		{ProductID: "p1", VendorID: "v1", Name: "Desk", Price: 549.00, Quantity: 1},
		{ProductID: "p2", VendorID: "v2", Name: "Mug", Price: 18.00, Quantity: 3},
		{ProductID: "p3", VendorID: "v1", Name: "Mat", Price: 39.50, Quantity: 2},
	}, 40.00, order.MethodCard, "", "", "")
	require.NoError(t, err)
	require.NoError(t, o.MarkPaid("pi_1"))
	return o
}

func TestSplitGroupsByVendor(t *testing.T) {
	o := paidOrder(t)
	rows := Split(o, sequentialIDs())

	require.Len(t, rows, 2)
	// Vendors appear in first-item order.
	assert.Equal(t, "v1", rows[0].VendorID)
	assert.Equal(t, "v2", rows[1].VendorID)

	assert.InDelta(t, 628.00, rows[0].Amount, 1e-9) // 549 + 2*39.50
	assert.InDelta(t, 54.00, rows[1].Amount, 1e-9)  // 3*18

	for _, row := range rows {
		assert.Equal(t, o.ID, row.OrderID)
		assert.Equal(t, o.CustomerID, row.CustomerID)
		assert.Equal(t, o.PaymentMethod, row.PaymentMethod)
		assert.Equal(t, StatusCompleted, row.Status)
		assert.InDelta(t, order.Round2(row.Amount*PlatformFeeRate), row.PlatformFee, 1e-9)
		assert.InDelta(t, row.Amount, row.VendorAmount+row.PlatformFee, 1e-9)
	}
}

func TestSplitExcludesShippingAndTax(t *testing.T) {
	o := paidOrder(t)
	rows := Split(o, sequentialIDs())

	var settled float64
	for _, row := range rows {
		settled += row.Amount
	}
	// Only item subtotals are settled; shipping and tax stay with the platform.
	assert.InDelta(t, o.Subtotal, settled, 1e-9)
	assert.Less(t, settled, o.Total)
}
