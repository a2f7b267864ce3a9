package httppresentation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tradeyard/tradeyard/internal/application"
	appOrder "github.com/tradeyard/tradeyard/internal/application/order"
	appPayment "github.com/tradeyard/tradeyard/internal/application/payment"
	appSettlement "github.com/tradeyard/tradeyard/internal/application/settlement"
	domainOrder "github.com/tradeyard/tradeyard/internal/domain/order"
	domainPayment "github.com/tradeyard/tradeyard/internal/domain/payment"
	domainProduct "github.com/tradeyard/tradeyard/internal/domain/product"
	domainSettlement "github.com/tradeyard/tradeyard/internal/domain/settlement"
	domainStorage "github.com/tradeyard/tradeyard/internal/domain/storage"
	"github.com/tradeyard/tradeyard/internal/observability"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerSignature      = "X-Gateway-Signature"

	maxProofSize = 10 << 20
)

type Handler struct {
	orders      *appOrder.Service
	payments    *appPayment.Service
	settlements *appSettlement.Service
	log         observability.Logger
	tel         observability.Observability
}

func NewHandler(orders *appOrder.Service, payments *appPayment.Service, settlements *appSettlement.Service, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		orders:      orders,
		payments:    payments,
		settlements: settlements,
		log:         tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:         tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Each route is wrapped: Trace → request logger → metrics → access log.
	h.handle(mux, "POST /orders", h.createOrder)
	h.handle(mux, "GET /orders/my", h.listMyOrders)
	h.handle(mux, "GET /orders/vendor", h.listVendorOrders)
	h.handle(mux, "GET /orders/{id}", h.getOrder)
	h.handle(mux, "PUT /orders/{id}/status", h.updateStatus)
	h.handle(mux, "PUT /orders/{id}/cancel", h.cancelOrder)
	h.handle(mux, "POST /orders/{id}/payment-proof", h.uploadProof)
	h.handle(mux, "PUT /orders/{id}/confirm-payment", h.confirmManual)
	h.handle(mux, "PUT /orders/{id}/reject-payment", h.rejectManual)
	h.handle(mux, "POST /orders/{id}/tracking-location", h.trackingLocation)
	h.handle(mux, "GET /orders/{id}/transactions", h.listTransactions)
	h.handle(mux, "POST /payments/create-intent", h.createIntent)
	h.handle(mux, "POST /payments/confirm", h.confirmPayment)
	h.handle(mux, "POST /payments/webhook", h.webhook)
	h.handle(mux, "POST /payments/refund", h.refund)
	h.handle(mux, "GET /health", h.health)

	return mux
}

func (h *Handler) handle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	chain := h.withTrace(
		ObservabilityMiddleware(h.log, func(r *http.Request) string {
			return r.Header.Get(headerRequestID)
		}, h.tel)(
			h.withAccessLog(handler),
		),
	)
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stash the route template for low-cardinality labels.
		r = r.WithContext(contextWithRoute(r.Context(), pattern))
		chain.ServeHTTP(w, r)
	}))
}

func principal(r *http.Request) application.Principal {
	return application.Principal{
		UserID: r.Header.Get(headerUserID),
		Role:   application.Role(r.Header.Get(headerUserRole)),
	}
}

type lineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
}

type createOrderRequest struct {
	Items           []lineRequest `json:"items"`
	ShippingAddress string        `json:"shippingAddress"`
	BillingAddress  string        `json:"billingAddress"`
	PaymentMethod   string        `json:"paymentMethod"`
	Notes           string        `json:"notes"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in := appOrder.CreateOrderInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, l := range req.Items {
		in.Items = append(in.Items, appOrder.LineInput{ProductID: l.ProductID, Quantity: l.Quantity, Variant: l.Variant})
	}

	o, err := h.orders.CreateOrder(r.Context(), principal(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	orders, total, err := h.orders.ListMine(r.Context(), principal(r), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, orders, f, total)
}

func (h *Handler) listVendorOrders(w http.ResponseWriter, r *http.Request) {
	f := listFilter(r)
	orders, total, err := h.orders.ListVendor(r.Context(), principal(r), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, orders, f, total)
}

type updateStatusRequest struct {
	Status            string     `json:"status"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), principal(r), r.PathValue("id"), appOrder.UpdateStatusInput{
		Status:            req.Status,
		TrackingNumber:    req.TrackingNumber,
		Carrier:           req.Carrier,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.orders.Cancel(r.Context(), principal(r), r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) uploadProof(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		writeFailure(w, http.StatusBadRequest, "payment proof image is required")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "payment proof image is required")
		return
	}
	defer file.Close()

	o, err := h.payments.UploadProof(r.Context(), principal(r), r.PathValue("id"),
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) confirmManual(w http.ResponseWriter, r *http.Request) {
	o, err := h.payments.ConfirmManual(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) rejectManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.payments.RejectManual(r.Context(), principal(r), r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

type trackingRequest struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Address     string   `json:"address,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (h *Handler) trackingLocation(w http.ResponseWriter, r *http.Request) {
	var req trackingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeFailure(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	o, err := h.orders.AppendTrackingLocation(r.Context(), principal(r), r.PathValue("id"), appOrder.TrackingInput{
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		Address:     req.Address,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(o)})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.settlements.ListByOrder(r.Context(), principal(r), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]transactionDTO, 0, len(rows))
	for _, t := range rows {
		out = append(out, toTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

type createIntentRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	intent, err := h.payments.CreateIntent(r.Context(), principal(r), req.OrderID, req.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
	}})
}

type confirmPaymentRequest struct {
	OrderID         string `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.payments.Confirm(r.Context(), principal(r), req.OrderID, req.PaymentIntentID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: toOrderDTO(res.Order)})
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "unreadable payload")
		return
	}
	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get(headerSignature)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

type refundRequest struct {
	OrderID string  `json:"orderId"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason"`
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	refund, o, err := h.payments.Refund(r.Context(), principal(r), req.OrderID, req.Amount, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"refundId": refund.ID,
		"amount":   refund.Amount,
		"status":   refund.Status,
		"order":    toOrderDTO(o),
	}})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func listFilter(r *http.Request) domainOrder.ListFilter {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return domainOrder.ListFilter{Page: page, Limit: limit}.Normalize()
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type pageEnvelope struct {
	Success    bool       `json:"success"`
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func writePage(w http.ResponseWriter, orders []*domainOrder.Order, f domainOrder.ListFilter, total int) {
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	pages := (total + f.Limit - 1) / f.Limit
	writeJSON(w, http.StatusOK, pageEnvelope{
		Success: true,
		Data:    out,
		Pagination: pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: pages,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err),
		)
	}
	writeFailure(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainProduct.ErrNotFound),
		errors.Is(err, domainSettlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domainOrder.ErrAlreadyPaid),
		errors.Is(err, domainOrder.ErrConflict),
		errors.Is(err, domainOrder.ErrTerminalState),
		errors.Is(err, domainSettlement.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domainOrder.ErrNoItems),
		errors.Is(err, domainOrder.ErrInvalidQuantity),
		errors.Is(err, domainOrder.ErrInvalidTransition),
		errors.Is(err, domainOrder.ErrWrongMethod),
		errors.Is(err, domainOrder.ErrNotPaid),
		errors.Is(err, domainProduct.ErrUnavailable),
		errors.Is(err, domainProduct.ErrInvalidQuantity),
		errors.Is(err, domainProduct.ErrInsufficientStock),
		errors.Is(err, domainPayment.ErrBadSignature):
		return http.StatusBadRequest
	case errors.Is(err, domainPayment.ErrUpstream),
		errors.Is(err, domainStorage.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
