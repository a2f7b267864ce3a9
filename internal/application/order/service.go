package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tradeyard/tradeyard/internal/application"
	domain "github.com/tradeyard/tradeyard/internal/domain/order"
	domoutbox "github.com/tradeyard/tradeyard/internal/domain/outbox"
	domproduct "github.com/tradeyard/tradeyard/internal/domain/product"
	"github.com/tradeyard/tradeyard/internal/observability"
	"github.com/tradeyard/tradeyard/internal/observability/logctx"
)

const (
	orderService = "order-service"

	useCaseCreate   = "order.create"
	useCaseGet      = "order.get"
	useCaseList     = "order.list"
	useCaseStatus   = "order.update_status"
	useCaseCancel   = "order.cancel"
	useCaseTracking = "order.tracking_location"

	publishTimeout = 300 * time.Millisecond
)

type Service struct {
	orders    domain.Repository
	products  domproduct.Repository
	idGen     IDGenerator
	publisher domoutbox.Publisher
	tel       observability.Observability
	log       observability.Logger
}

func NewService(orders domain.Repository, products domproduct.Repository, idGen IDGenerator, publisher domoutbox.Publisher, tel observability.Observability) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		orders:    orders,
		products:  products,
		idGen:     idGen,
		publisher: publisher,
		tel:       tel,
		log:       tel.Logger().With(observability.F("service", orderService)),
	}
}

type LineInput struct {
	ProductID string
	Quantity  int
	Variant   string
}

type CreateOrderInput struct {
	Items           []LineInput
	ShippingAddress string
	BillingAddress  string
	PaymentMethod   string
	Notes           string
}

// CreateOrder validates every cart line against the live catalog, snapshots
// price and vendor per line, persists the order, then commits stock as a
// separate idempotent step and emits a best-effort created event. The order
// insert and the stock commit are deliberately not atomic; the commit step is
// keyed by order id so a crash between the two can be retried safely.
func (s *Service) CreateOrder(ctx context.Context, p application.Principal, in CreateOrderInput) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseCreate)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseCreate))

	if p.UserID == "" {
		return nil, application.Unauthorized("customer identity is required")
	}
	if len(in.Items) == 0 {
		return nil, application.Validation("at least one item is required")
	}
	method := domain.Method(in.PaymentMethod)
	if !method.Valid() {
		return nil, application.Validation("unknown payment method")
	}

	// All-or-nothing validation pass: nothing is written until every line is
	// purchasable at the requested quantity.
	items := make([]domain.OrderItem, 0, len(in.Items))
	var shipping float64
	for _, line := range in.Items {
		if line.Quantity <= 0 {
			return nil, application.Validation("quantity must be greater than zero")
		}
		prod, perr := s.products.Get(ctx, line.ProductID)
		if perr != nil {
			return nil, fmt.Errorf("order: fetch product %s: %w", line.ProductID, perr)
		}
		if !prod.Purchasable() {
			return nil, fmt.Errorf("order: product %s: %w", prod.Name, domproduct.ErrUnavailable)
		}
		if !prod.InStock(line.Quantity) {
			return nil, fmt.Errorf("order: product %s: %w", prod.Name, domproduct.ErrInsufficientStock)
		}
		items = append(items, domain.OrderItem{
			ProductID: prod.ID,
			VendorID:  prod.VendorID,
			Name:      prod.Name,
			Price:     prod.Price,
			Quantity:  line.Quantity,
			Variant:   line.Variant,
		})
		// Shipping is additive per line: every non-free-shipping line adds
		// its product's shipping cost, with no per-vendor dedup or cap.
		if !prod.FreeShipping {
			shipping += prod.ShippingCost
		}
	}

	id := s.idGen.NewID()
	o, err = domain.New(id, orderNumber(id), p.UserID, items, shipping, method, in.ShippingAddress, in.BillingAddress, in.Notes)
	if err != nil {
		return nil, err
	}

	if err = s.orders.Insert(ctx, o); err != nil {
		logger.Error("order_insert_failed", observability.F("order_id", o.ID), observability.F("error", err.Error()))
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	if err = s.CommitStock(ctx, o.ID); err != nil {
		return nil, err
	}
	if fresh, gerr := s.orders.Get(ctx, o.ID); gerr == nil {
		o = fresh
	}

	s.publish(ctx, domain.NewOrderCreatedEvent(o))
	logger.Info("order_created",
		observability.F("order_id", o.ID),
		observability.F("order_number", o.Number),
		observability.F("total", o.Total),
	)
	return o, nil
}

// CommitStock runs the stock-commit saga step for an order. It is idempotent:
// the StockCommittedAt guard is flipped with a conditional update, so a retry
// after a crash between order insert and stock commit converges. When a line
// loses the stock race, lines reserved so far are released and the order is
// cancelled.
func (s *Service) CommitStock(ctx context.Context, orderID string) error {
	logger := logctx.FromOr(ctx, s.log)

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	committed, err := s.orders.MarkStockCommitted(ctx, orderID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("order: mark stock committed: %w", err)
	}
	if !committed {
		return nil
	}

	reserved := make([]domain.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if rerr := s.products.ReserveStock(ctx, it.ProductID, it.Quantity); rerr != nil {
			for _, prev := range reserved {
				if relErr := s.products.ReleaseStock(ctx, prev.ProductID, prev.Quantity); relErr != nil {
					logger.Error("stock_release_failed",
						observability.F("order_id", o.ID),
						observability.F("product_id", prev.ProductID),
						observability.F("error", relErr.Error()),
					)
				}
			}
			if cerr := o.Cancel("stock commit failed"); cerr == nil {
				_ = s.orders.Update(ctx, o)
			}
			return fmt.Errorf("order: commit stock for product %s: %w", it.ProductID, rerr)
		}
		reserved = append(reserved, it)
	}
	return nil
}

// Get returns an order visible to its customer, any vendor with an item in
// it, or an admin.
func (s *Service) Get(ctx context.Context, p application.Principal, id string) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseGet)
	defer func() { done(err) }()

	o, err = s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, o) {
		return nil, application.Unauthorized("order belongs to another user")
	}
	return o, nil
}

// ListMine returns the caller's own orders, newest first.
func (s *Service) ListMine(ctx context.Context, p application.Principal, f domain.ListFilter) (orders []*domain.Order, total int, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseList)
	defer func() { done(err) }()

	if p.UserID == "" {
		return nil, 0, application.Unauthorized("identity is required")
	}
	return s.orders.ListByCustomer(ctx, p.UserID, f.Normalize())
}

// ListVendor returns orders containing at least one of the vendor's items.
func (s *Service) ListVendor(ctx context.Context, p application.Principal, f domain.ListFilter) (orders []*domain.Order, total int, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseList)
	defer func() { done(err) }()

	if p.Role != application.RoleVendor && !p.IsAdmin() {
		return nil, 0, application.Unauthorized("vendor role required")
	}
	return s.orders.ListByVendor(ctx, p.UserID, f.Normalize())
}

type UpdateStatusInput struct {
	Status            string
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
}

// UpdateStatus advances the fulfillment state machine. Only a vendor with an
// item in the order or an admin may transition it; shipment details may ride
// along on the transition to shipped.
func (s *Service) UpdateStatus(ctx context.Context, p application.Principal, id string, in UpdateStatusInput) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseStatus)
	defer func() { done(err) }()

	next := domain.Status(in.Status)
	switch next {
	case domain.StatusConfirmed, domain.StatusProcessing, domain.StatusShipped, domain.StatusDelivered:
	case domain.StatusCancelled:
		return nil, application.Validation("use the cancel operation to cancel an order")
	default:
		return nil, application.Validation("unknown order status")
	}

	o, err = s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, o) {
		return nil, application.Unauthorized("only an order vendor or admin may update status")
	}
	if err = o.Advance(next); err != nil {
		return nil, err
	}
	if next == domain.StatusShipped {
		o.AttachShipment(in.TrackingNumber, in.Carrier, in.EstimatedDelivery)
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("order: update: %w", err)
	}

	s.publish(ctx, domain.NewOrderStatusChangedEvent(o))
	return o, nil
}

// Cancel moves a non-terminal order to cancelled and releases committed
// stock. The release is a side effect of the already-committed cancellation:
// a failing product update is logged for reconciliation, never rolled back.
func (s *Service) Cancel(ctx context.Context, p application.Principal, id, reason string) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseCancel)
	defer func() { done(err) }()
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseCancel))

	o, err = s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, o) {
		return nil, application.Unauthorized("order belongs to another user")
	}
	if err = o.Cancel(reason); err != nil {
		return nil, err
	}
	if err = s.orders.Update(ctx, o); err != nil {
		return nil, fmt.Errorf("order: update: %w", err)
	}

	if o.StockCommittedAt != nil {
		for _, it := range o.Items {
			if relErr := s.products.ReleaseStock(ctx, it.ProductID, it.Quantity); relErr != nil {
				logger.Error("stock_release_failed",
					observability.F("order_id", o.ID),
					observability.F("product_id", it.ProductID),
					observability.F("error", relErr.Error()),
				)
			}
		}
	}

	s.publish(ctx, domain.NewOrderCancelledEvent(o))
	logger.Info("order_cancelled", observability.F("order_id", o.ID), observability.F("reason", reason))
	return o, nil
}

type TrackingInput struct {
	Latitude    float64
	Longitude   float64
	Address     string
	Description string
}

// AppendTrackingLocation appends a geo-located tracking event and overwrites
// the order's current location. Allowed at any fulfillment status for an
// order vendor or admin.
func (s *Service) AppendTrackingLocation(ctx context.Context, p application.Principal, id string, in TrackingInput) (o *domain.Order, err error) {
	ctx, done := application.Track(ctx, s.tel, useCaseTracking)
	defer func() { done(err) }()

	if in.Latitude < -90 || in.Latitude > 90 || in.Longitude < -180 || in.Longitude > 180 {
		return nil, application.Validation("coordinates out of range")
	}

	o, err = s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, o) {
		return nil, application.Unauthorized("only an order vendor or admin may update tracking")
	}

	ev := o.AppendTracking(domain.GeoPoint{
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Address:   in.Address,
	}, in.Description)
	if err = s.orders.AppendTracking(ctx, id, ev); err != nil {
		return nil, fmt.Errorf("order: append tracking: %w", err)
	}
	return o, nil
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

func canView(p application.Principal, o *domain.Order) bool {
	return p.IsAdmin() || p.UserID == o.CustomerID || o.HasVendor(p.UserID)
}

func canManage(p application.Principal, o *domain.Order) bool {
	return p.IsAdmin() || o.HasVendor(p.UserID)
}

func orderNumber(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "TY-" + strings.ToUpper(short)
}
