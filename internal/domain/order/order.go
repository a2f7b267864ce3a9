package order

import (
	"errors"
	"math"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: conflict")
	ErrNoItems           = errors.New("order: at least one item is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrTerminalState     = errors.New("order: order is in a terminal state")
	ErrAlreadyPaid       = errors.New("order: payment already confirmed")
	ErrNotPaid           = errors.New("order: payment has not been confirmed")
	ErrWrongMethod       = errors.New("order: operation not valid for this payment method")
)

// TaxRate is the flat, global tax rate applied to every order subtotal.
const TaxRate = 0.10

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting-confirmation"
	PaymentPaid                 PaymentStatus = "paid"
	PaymentFailed               PaymentStatus = "failed"
	PaymentRefunded             PaymentStatus = "refunded"
)

// Method is the payment method chosen at checkout. Each method belongs to
// exactly one reconciliation track.
type Method string

const (
	MethodCard Method = "card"
	MethodEFT  Method = "eft"
)

// Track distinguishes the two mutually exclusive reconciliation flows.
type Track string

const (
	TrackGateway Track = "gateway"
	TrackManual  Track = "manual"
)

func (m Method) Track() Track {
	if m == MethodEFT {
		return TrackManual
	}
	return TrackGateway
}

func (m Method) Valid() bool {
	return m == MethodCard || m == MethodEFT
}

type GeoPoint struct {
	Latitude  float64
	Longitude float64
	Address   string
}

// TrackingEvent is an append-only milestone in the order's delivery history.
type TrackingEvent struct {
	Status      Status
	Location    GeoPoint
	Description string
	Timestamp   time.Time
}

type PaymentProof struct {
	PublicID   string
	URL        string
	UploadedAt time.Time
}

// OrderItem is an immutable snapshot of one purchased product line. Name and
// price are fixed at order time and never follow later product edits.
type OrderItem struct {
	ProductID string
	VendorID  string
	Name      string
	Price     float64
	Quantity  int
	Variant   string
	Subtotal  float64
}

type Order struct {
	ID         string
	Number     string
	CustomerID string
	Items      []OrderItem

	Subtotal     float64
	ShippingCost float64
	Tax          float64
	Discount     float64
	Total        float64

	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod Method

	// PaymentIntentID is the gateway-recorded payment reference. Empty for
	// manual-track orders that never touched the gateway.
	PaymentIntentID string

	PaymentProof       *PaymentProof
	PaymentConfirmedBy string
	PaymentConfirmedAt *time.Time

	CancellationReason string
	RefundAmount       float64
	RefundedAt         *time.Time

	TrackingHistory   []TrackingEvent
	CurrentLocation   *GeoPoint
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time

	ShippingAddress string
	BillingAddress  string
	Notes           string

	// StockCommittedAt guards the stock-commit saga step so a retried commit
	// for the same order converges instead of double-decrementing.
	StockCommittedAt *time.Time

	PaidAt      *time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New assembles an order from already-snapshotted items. Subtotal, tax and
// total are derived here so the money invariants hold from the first write.
func New(id, number, customerID string, items []OrderItem, shippingCost float64, method Method, shippingAddress, billingAddress, notes string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	var subtotal float64
	for i := range items {
		if items[i].Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		items[i].Subtotal = Round2(items[i].Price * float64(items[i].Quantity))
		subtotal += items[i].Subtotal
	}
	subtotal = Round2(subtotal)
	tax := Round2(subtotal * TaxRate)

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		Number:          number,
		CustomerID:      customerID,
		Items:           items,
		Subtotal:        subtotal,
		ShippingCost:    Round2(shippingCost),
		Tax:             tax,
		Total:           Round2(subtotal + shippingCost + tax),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		PaymentMethod:   method,
		ShippingAddress: shippingAddress,
		BillingAddress:  billingAddress,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// fulfillmentRank orders the forward chain of the fulfillment state machine.
// Cancellation is handled separately in Cancel.
var fulfillmentRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

func (o *Order) IsFulfillmentTerminal() bool {
	return o.Status == StatusDelivered || o.Status == StatusCancelled
}

// Advance moves the fulfillment status forward. Skipping intermediate states
// is allowed (a vendor may confirm and ship in one step) but moving backwards
// or leaving a terminal state is not.
func (o *Order) Advance(next Status) error {
	if o.IsFulfillmentTerminal() || o.Status == StatusRefunded {
		return ErrTerminalState
	}
	from, ok := fulfillmentRank[o.Status]
	if !ok {
		return ErrInvalidTransition
	}
	to, ok := fulfillmentRank[next]
	if !ok || to <= from {
		return ErrInvalidTransition
	}
	o.Status = next
	now := time.Now().UTC()
	switch next {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	}
	o.touch()
	return nil
}

// AttachShipment records carrier details, typically alongside a transition to
// shipped. Empty fields leave the existing values untouched.
func (o *Order) AttachShipment(trackingNumber, carrier string, estimatedDelivery *time.Time) {
	if trackingNumber != "" {
		o.TrackingNumber = trackingNumber
	}
	if carrier != "" {
		o.Carrier = carrier
	}
	if estimatedDelivery != nil {
		o.EstimatedDelivery = estimatedDelivery
	}
	o.touch()
}

// Cancel moves the order to cancelled from any non-terminal fulfillment state.
func (o *Order) Cancel(reason string) error {
	if o.IsFulfillmentTerminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = &now
	o.touch()
	return nil
}

// MarkPaid records a successful gateway payment. The fulfillment axis moves
// to confirmed at the same time. Paid is only ever left via Refund.
func (o *Order) MarkPaid(intentID string) error {
	if o.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	now := time.Now().UTC()
	o.PaymentStatus = PaymentPaid
	o.PaymentIntentID = intentID
	o.PaidAt = &now
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
	}
	o.touch()
	return nil
}

// MarkPaymentFailed records a failed payment. It never downgrades a paid
// order; gateway events racing a direct confirmation lose to the confirmation.
func (o *Order) MarkPaymentFailed() error {
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
		return ErrAlreadyPaid
	}
	o.PaymentStatus = PaymentFailed
	o.touch()
	return nil
}

// AttachProof stores a freshly uploaded proof-of-payment and moves the manual
// track to awaiting-confirmation. The previous proof, if any, is returned so
// the caller can delete it from object storage.
func (o *Order) AttachProof(proof PaymentProof) (previous *PaymentProof, err error) {
	if o.PaymentMethod.Track() != TrackManual {
		return nil, ErrWrongMethod
	}
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
		return nil, ErrAlreadyPaid
	}
	previous = o.PaymentProof
	o.PaymentProof = &proof
	o.PaymentStatus = PaymentAwaitingConfirmation
	o.touch()
	return previous, nil
}

// ConfirmManualPayment approves an offline proof-of-payment.
func (o *Order) ConfirmManualPayment(reviewerID string) error {
	if o.PaymentStatus == PaymentPaid {
		return ErrAlreadyPaid
	}
	now := time.Now().UTC()
	o.PaymentStatus = PaymentPaid
	o.PaymentConfirmedBy = reviewerID
	o.PaymentConfirmedAt = &now
	o.PaidAt = &now
	if o.Status == StatusPending {
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
	}
	o.touch()
	return nil
}

// RejectManualPayment declines an offline proof-of-payment. The fulfillment
// status is left where it was; only the payment axis moves.
func (o *Order) RejectManualPayment(reviewerID, reason string) error {
	if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
		return ErrAlreadyPaid
	}
	now := time.Now().UTC()
	o.PaymentStatus = PaymentFailed
	o.CancellationReason = reason
	o.PaymentConfirmedBy = reviewerID
	o.PaymentConfirmedAt = &now
	o.touch()
	return nil
}

// Refund is the one sanctioned reversal of the paid state, admin-only at the
// application layer. Settlement rows are intentionally left untouched.
func (o *Order) Refund(amount float64) error {
	if o.PaymentStatus != PaymentPaid {
		return ErrNotPaid
	}
	now := time.Now().UTC()
	o.PaymentStatus = PaymentRefunded
	o.Status = StatusRefunded
	o.RefundAmount = Round2(amount)
	o.RefundedAt = &now
	o.touch()
	return nil
}

// AppendTracking adds an immutable tracking event snapshotting the current
// status and overwrites the order's current location.
func (o *Order) AppendTracking(point GeoPoint, description string) TrackingEvent {
	ev := TrackingEvent{
		Status:      o.Status,
		Location:    point,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
	o.TrackingHistory = append(o.TrackingHistory, ev)
	loc := point
	o.CurrentLocation = &loc
	o.touch()
	return ev
}

// HasVendor reports whether the vendor is referenced by at least one item.
func (o *Order) HasVendor(vendorID string) bool {
	for _, it := range o.Items {
		if it.VendorID == vendorID {
			return true
		}
	}
	return false
}

// VendorIDs returns the distinct vendors in item order of first appearance.
func (o *Order) VendorIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.VendorID]; ok {
			continue
		}
		seen[it.VendorID] = struct{}{}
		ids = append(ids, it.VendorID)
	}
	return ids
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]OrderItem(nil), o.Items...)
	clone.TrackingHistory = append([]TrackingEvent(nil), o.TrackingHistory...)
	clone.PaymentProof = clonePtr(o.PaymentProof)
	clone.CurrentLocation = clonePtr(o.CurrentLocation)
	clone.EstimatedDelivery = clonePtr(o.EstimatedDelivery)
	clone.StockCommittedAt = clonePtr(o.StockCommittedAt)
	clone.PaidAt = clonePtr(o.PaidAt)
	clone.ConfirmedAt = clonePtr(o.ConfirmedAt)
	clone.ShippedAt = clonePtr(o.ShippedAt)
	clone.DeliveredAt = clonePtr(o.DeliveredAt)
	clone.CancelledAt = clonePtr(o.CancelledAt)
	clone.RefundedAt = clonePtr(o.RefundedAt)
	clone.PaymentConfirmedAt = clonePtr(o.PaymentConfirmedAt)
	return &clone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

// Round2 rounds a monetary amount half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
