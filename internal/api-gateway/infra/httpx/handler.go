package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"

	"github.com/jcmexdev/storefront-integrity/internal/api-gateway/core/ports"
	"github.com/jcmexdev/storefront-integrity/internal/audit"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-integrity/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/identity"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/interceptors"
)

const maxBodyBytes = 64 << 10

// Handler serves the payment gate, the order status endpoint and the
// security event read side.
type Handler struct {
	payments ports.PaymentGate
	orders   ports.OrderService
	events   ports.SecurityEvents
	now      func() time.Time
}

func NewHandler(payments ports.PaymentGate, orders ports.OrderService, events ports.SecurityEvents) *Handler {
	return &Handler{payments: payments, orders: orders, events: events, now: time.Now}
}

// CreatePayment runs the request through the payment gate.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decode(w, r, createPaymentLoader, &req) {
		return
	}

	in := paymentapp.CreatePaymentRequest{
		OrderID:       req.OrderID,
		Method:        paymentdomain.Method(req.PaymentMethod),
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Currency:      req.Currency,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	}
	if id := identity.FromContext(r.Context()); id != nil {
		in.UserID = id.UserID
		if in.CustomerEmail == "" {
			in.CustomerEmail = id.Email
		}
	}

	slog.InfoContext(r.Context(), "payment requested",
		"request_id", interceptors.GetIDFromContext(r.Context()),
		"order_id", in.OrderID, "method", in.Method)

	res, err := h.payments.CreatePayment(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{
		Success:       true,
		TransactionID: res.TransactionID,
		PaymentURL:    res.PaymentURL,
		OrderID:       res.OrderID,
		Amount:        res.Amount,
		Currency:      res.Currency,
		Method:        string(res.Method),
	})
}

// ConfirmPayment is called when the customer returns from the gateway.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transactionID")
	if txID == "" {
		writeError(w, http.StatusBadRequest, "transaction_id_required", "")
		return
	}

	c, err := h.payments.ConfirmPayment(r.Context(), txID)
	if err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}

	writeJSON(w, http.StatusOK, ConfirmationResponse{
		Success:       true,
		TransactionID: c.TransactionID,
		OrderID:       c.OrderID,
		Amount:        c.Amount,
		Currency:      c.Currency,
	})
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// UpdateOrderStatus applies a status change and the stock movement it
// implies.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decode(w, r, updateStatusLoader, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), orderdomain.OrderStatus(req.Status))
	if err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

func (h *Handler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Type:      audit.EventType(q.Get("type")),
		Severity:  audit.Severity(q.Get("severity")),
		Status:    audit.Resolution(q.Get("status")),
		IPAddress: q.Get("ip"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	events, err := h.events.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}

	out := make([]SecurityEventResponse, len(events))
	for i, e := range events {
		out[i] = mapEventToResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ResolveSecurityEvent(w http.ResponseWriter, r *http.Request) {
	var req ResolveEventRequest
	if !decode(w, r, resolveEventLoader, &req) {
		return
	}
	if err := h.events.Resolve(r.Context(), chi.URLParam(r, "id"), audit.Resolution(req.Status)); err != nil {
		writeServiceError(w, r, err, h.now())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode validates the body against schema before unmarshalling it into v.
// It writes the 400 itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, schema gojsonschema.JSONLoader, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body could not be read")
		return false
	}
	if err := validateJSONSchema(schema, body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

// clientIP is the address chi's RealIP middleware left in RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func mapOrderToResponse(o *orderdomain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		CustomerEmail: o.CustomerEmail,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.Total,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func mapEventToResponse(e audit.SecurityEvent) SecurityEventResponse {
	return SecurityEventResponse{
		ID:          e.ID,
		Type:        string(e.Type),
		Severity:    string(e.Severity),
		Description: e.Description,
		Details:     e.Details,
		ActorID:     e.ActorID,
		IPAddress:   e.IPAddress,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		ResolvedAt:  e.ResolvedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
