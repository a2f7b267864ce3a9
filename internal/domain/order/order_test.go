package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []OrderItem {
	return []OrderItem{
		{ProductID: "p1", VendorID: "v1", Name: "Desk", Price: 549.00, Quantity: 1},
		{ProductID: "p2", VendorID: "v1", Name: "Mat", Price: 39.50, Quantity: 2},
		{ProductID: "p3", VendorID: "v2", Name: "Mug", Price: 18.00, Quantity: 3},
	}
}

func newTestOrder(t *testing.T, method Method) *Order {
	t.Helper()
	o, err := New("ord-1", "TY-ABC12345", "cust-1", testItems(), 40.00, method, "12 Pier Rd", "12 Pier Rd", "")
	require.NoError(t, err)
	return o
}

func TestNewComputesMoneyFields(t *testing.T) {
	o := newTestOrder(t, MethodCard)

	var sum float64
	for _, it := range o.Items {
		assert.InDelta(t, Round2(it.Price*float64(it.Quantity)), it.Subtotal, 1e-9)
		sum += it.Subtotal
	}
	assert.InDelta(t, sum, o.Subtotal, 1e-9)
	assert.InDelta(t, Round2(o.Subtotal*TaxRate), o.Tax, 1e-9)
	assert.InDelta(t, Round2(o.Subtotal+o.ShippingCost+o.Tax), o.Total, 1e-9)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("id", "num", "cust", nil, 0, MethodCard, "", "", "")
	assert.ErrorIs(t, err, ErrNoItems)

	_, err = New("id", "num", "cust", []OrderItem{{ProductID: "p", Quantity: 0}}, 0, MethodCard, "", "", "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestMethodTrack(t *testing.T) {
	assert.Equal(t, TrackGateway, MethodCard.Track())
	assert.Equal(t, TrackManual, MethodEFT.Track())
	assert.False(t, Method("cheque").Valid())
}

func TestAdvanceForwardOnly(t *testing.T) {
	o := newTestOrder(t, MethodCard)

	require.NoError(t, o.Advance(StatusConfirmed))
	require.NotNil(t, o.ConfirmedAt)

	// Skipping intermediate states is allowed.
	require.NoError(t, o.Advance(StatusShipped))
	require.NotNil(t, o.ShippedAt)

	// Backwards is not.
	assert.ErrorIs(t, o.Advance(StatusProcessing), ErrInvalidTransition)

	require.NoError(t, o.Advance(StatusDelivered))
	require.NotNil(t, o.DeliveredAt)

	assert.ErrorIs(t, o.Advance(StatusShipped), ErrTerminalState)
}

func TestCancel(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	require.NoError(t, o.Cancel("changed my mind"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, "changed my mind", o.CancellationReason)
	require.NotNil(t, o.CancelledAt)

	assert.ErrorIs(t, o.Cancel("again"), ErrTerminalState)

	delivered := newTestOrder(t, MethodCard)
	require.NoError(t, delivered.Advance(StatusDelivered))
	assert.ErrorIs(t, delivered.Cancel("too late"), ErrTerminalState)
}

func TestMarkPaid(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	require.NoError(t, o.MarkPaid("pi_123"))

	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "pi_123", o.PaymentIntentID)
	assert.Equal(t, StatusConfirmed, o.Status)
	require.NotNil(t, o.PaidAt)

	assert.ErrorIs(t, o.MarkPaid("pi_456"), ErrAlreadyPaid)
	assert.Equal(t, "pi_123", o.PaymentIntentID)
}

func TestMarkPaymentFailedNeverDowngradesPaid(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	require.NoError(t, o.MarkPaid("pi_123"))

	assert.ErrorIs(t, o.MarkPaymentFailed(), ErrAlreadyPaid)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
}

func TestAttachProof(t *testing.T) {
	card := newTestOrder(t, MethodCard)
	_, err := card.AttachProof(PaymentProof{PublicID: "a"})
	assert.ErrorIs(t, err, ErrWrongMethod)

	o := newTestOrder(t, MethodEFT)
	prev, err := o.AttachProof(PaymentProof{PublicID: "first", URL: "http://x/first"})
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Equal(t, PaymentAwaitingConfirmation, o.PaymentStatus)

	prev, err = o.AttachProof(PaymentProof{PublicID: "second", URL: "http://x/second"})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "first", prev.PublicID)
	assert.Equal(t, "second", o.PaymentProof.PublicID)
}

func TestManualConfirmAndReject(t *testing.T) {
	o := newTestOrder(t, MethodEFT)
	_, err := o.AttachProof(PaymentProof{PublicID: "receipt"})
	require.NoError(t, err)

	require.NoError(t, o.ConfirmManualPayment("vendor-1"))
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "vendor-1", o.PaymentConfirmedBy)
	assert.Equal(t, StatusConfirmed, o.Status)

	assert.ErrorIs(t, o.ConfirmManualPayment("vendor-2"), ErrAlreadyPaid)
	assert.ErrorIs(t, o.RejectManualPayment("vendor-2", "blurry"), ErrAlreadyPaid)

	r := newTestOrder(t, MethodEFT)
	_, err = r.AttachProof(PaymentProof{PublicID: "receipt"})
	require.NoError(t, err)
	require.NoError(t, r.RejectManualPayment("vendor-1", "amount mismatch"))
	assert.Equal(t, PaymentFailed, r.PaymentStatus)
	assert.Equal(t, StatusPending, r.Status)
}

func TestRefund(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	assert.ErrorIs(t, o.Refund(10), ErrNotPaid)

	require.NoError(t, o.MarkPaid("pi_123"))
	require.NoError(t, o.Refund(o.Total))

	assert.Equal(t, PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, StatusRefunded, o.Status)
	assert.InDelta(t, o.Total, o.RefundAmount, 1e-9)
	require.NotNil(t, o.RefundedAt)
}

func TestAppendTracking(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	require.NoError(t, o.Advance(StatusShipped))

	ev := o.AppendTracking(GeoPoint{Latitude: -33.92, Longitude: 18.42, Address: "Cape Town"}, "left the depot")
	assert.Equal(t, StatusShipped, ev.Status)
	require.Len(t, o.TrackingHistory, 1)
	require.NotNil(t, o.CurrentLocation)
	assert.InDelta(t, -33.92, o.CurrentLocation.Latitude, 1e-9)

	o.AppendTracking(GeoPoint{Latitude: -26.20, Longitude: 28.04}, "hub transfer")
	assert.Len(t, o.TrackingHistory, 2)
	assert.InDelta(t, -26.20, o.CurrentLocation.Latitude, 1e-9)
}

func TestVendorHelpers(t *testing.T) {
	o := newTestOrder(t, MethodCard)
	assert.True(t, o.HasVendor("v1"))
	assert.False(t, o.HasVendor("v9"))
	assert.Equal(t, []string{"v1", "v2"}, o.VendorIDs())
}

func TestCloneIsDeep(t *testing.T) {
	o := newTestOrder(t, MethodEFT)
	_, err := o.AttachProof(PaymentProof{PublicID: "receipt"})
	require.NoError(t, err)
	o.AppendTracking(GeoPoint{Latitude: 1, Longitude: 2}, "")

	c := o.Clone()
	c.Items[0].Quantity = 99
	c.PaymentProof.PublicID = "mutated"
	c.CurrentLocation.Latitude = 99
	now := time.Now()
	c.PaidAt = &now

	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, "receipt", o.PaymentProof.PublicID)
	assert.InDelta(t, 1.0, o.CurrentLocation.Latitude, 1e-9)
	assert.Nil(t, o.PaidAt)
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 2.67, Round2(2.666), 1e-9)
	assert.InDelta(t, 3.33, Round2(10.0/3), 1e-9)
	assert.InDelta(t, -1.0, Round2(-1.004), 1e-9)
}
