package httppresentation

import (
	"time"

	domainOrder "github.com/tradeyard/tradeyard/internal/domain/order"
	domainSettlement "github.com/tradeyard/tradeyard/internal/domain/settlement"
)

type geoPointDTO struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

type trackingEventDTO struct {
	Status      string      `json:"status"`
	Location    geoPointDTO `json:"location"`
	Description string      `json:"description,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

type orderItemDTO struct {
	ProductID string  `json:"productId"`
	VendorID  string  `json:"vendorId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Variant   string  `json:"variant,omitempty"`
	Subtotal  float64 `json:"subtotal"`
}

type paymentProofDTO struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type orderDTO struct {
	ID              string         `json:"id"`
	OrderNumber     string         `json:"orderNumber"`
	CustomerID      string         `json:"customerId"`
	Items           []orderItemDTO `json:"items"`
	Subtotal        float64        `json:"subtotal"`
	ShippingCost    float64        `json:"shippingCost"`
	Tax             float64        `json:"tax"`
	Discount        float64        `json:"discount,omitempty"`
	Total           float64        `json:"total"`
	Status          string         `json:"status"`
	PaymentStatus   string         `json:"paymentStatus"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentIntentID string         `json:"paymentIntentId,omitempty"`

	PaymentProof       *paymentProofDTO `json:"paymentProof,omitempty"`
	PaymentConfirmedBy string           `json:"paymentConfirmedBy,omitempty"`
	PaymentConfirmedAt *time.Time       `json:"paymentConfirmedAt,omitempty"`

	CancellationReason string     `json:"cancellationReason,omitempty"`
	RefundAmount       float64    `json:"refundAmount,omitempty"`
	RefundedAt         *time.Time `json:"refundedAt,omitempty"`

	TrackingHistory   []trackingEventDTO `json:"trackingHistory,omitempty"`
	CurrentLocation   *geoPointDTO       `json:"currentLocation,omitempty"`
	TrackingNumber    string             `json:"trackingNumber,omitempty"`
	Carrier           string             `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time         `json:"estimatedDelivery,omitempty"`

	ShippingAddress string `json:"shippingAddress,omitempty"`
	BillingAddress  string `json:"billingAddress,omitempty"`
	Notes           string `json:"notes,omitempty"`

	PaidAt      *time.Time `json:"paidAt,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	ShippedAt   *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toOrderDTO(o *domainOrder.Order) orderDTO {
	dto := orderDTO{
		ID:                 o.ID,
		OrderNumber:        o.Number,
		CustomerID:         o.CustomerID,
		Subtotal:           o.Subtotal,
		ShippingCost:       o.ShippingCost,
		Tax:                o.Tax,
		Discount:           o.Discount,
		Total:              o.Total,
		Status:             string(o.Status),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentMethod:      string(o.PaymentMethod),
		PaymentIntentID:    o.PaymentIntentID,
		PaymentConfirmedBy: o.PaymentConfirmedBy,
		PaymentConfirmedAt: o.PaymentConfirmedAt,
		CancellationReason: o.CancellationReason,
		RefundAmount:       o.RefundAmount,
		RefundedAt:         o.RefundedAt,
		TrackingNumber:     o.TrackingNumber,
		Carrier:            o.Carrier,
		EstimatedDelivery:  o.EstimatedDelivery,
		ShippingAddress:    o.ShippingAddress,
		BillingAddress:     o.BillingAddress,
		Notes:              o.Notes,
		PaidAt:             o.PaidAt,
		ConfirmedAt:        o.ConfirmedAt,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	for _, it := range o.Items {
		dto.Items = append(dto.Items, orderItemDTO{
			ProductID: it.ProductID,
			VendorID:  it.VendorID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Variant:   it.Variant,
			Subtotal:  it.Subtotal,
		})
	}
	for _, ev := range o.TrackingHistory {
		dto.TrackingHistory = append(dto.TrackingHistory, trackingEventDTO{
			Status: string(ev.Status),
			Location: geoPointDTO{
				Latitude:  ev.Location.Latitude,
				Longitude: ev.Location.Longitude,
				Address:   ev.Location.Address,
			},
			Description: ev.Description,
			Timestamp:   ev.Timestamp,
		})
	}
	if o.CurrentLocation != nil {
		dto.CurrentLocation = &geoPointDTO{
			Latitude:  o.CurrentLocation.Latitude,
			Longitude: o.CurrentLocation.Longitude,
			Address:   o.CurrentLocation.Address,
		}
	}
	if o.PaymentProof != nil {
		dto.PaymentProof = &paymentProofDTO{
			URL:        o.PaymentProof.URL,
			UploadedAt: o.PaymentProof.UploadedAt,
		}
	}
	return dto
}

type transactionDTO struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"orderId"`
	VendorID      string    `json:"vendorId"`
	CustomerID    string    `json:"customerId"`
	Amount        float64   `json:"amount"`
	PlatformFee   float64   `json:"platformFee"`
	VendorAmount  float64   `json:"vendorAmount"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	CompletedAt   time.Time `json:"completedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toTransactionDTO(t *domainSettlement.Transaction) transactionDTO {
	return transactionDTO{
		ID:            t.ID,
		OrderID:       t.OrderID,
		VendorID:      t.VendorID,
		CustomerID:    t.CustomerID,
		Amount:        t.Amount,
		PlatformFee:   t.PlatformFee,
		VendorAmount:  t.VendorAmount,
		PaymentMethod: string(t.PaymentMethod),
		Status:        string(t.Status),
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
	}
}
