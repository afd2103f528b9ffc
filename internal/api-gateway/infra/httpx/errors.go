package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/audit"
	invdomain "github.com/jcmexdev/storefront-integrity/internal/inventory-service/domain"
	orderdomain "github.com/jcmexdev/storefront-integrity/internal/order-service/domain"
	paymentapp "github.com/jcmexdev/storefront-integrity/internal/payment-service/app"
	paymentdomain "github.com/jcmexdev/storefront-integrity/internal/payment-service/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Messages are fixed so nothing from scoring or the gateway reaches the
// caller.
var errorMappings = []errorMapping{
	{paymentapp.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later"},
	{orderdomain.ErrOrderNotFound, http.StatusNotFound, "order_not_found", "order not found"},
	{orderdomain.ErrAlreadyPaid, http.StatusBadRequest, "already_paid", "order is already paid"},
	{paymentapp.ErrForbidden, http.StatusForbidden, "forbidden", "you are not allowed to pay for this order"},
	{paymentapp.ErrRejected, http.StatusForbidden, "payment_rejected", "payment could not be processed"},
	{paymentapp.ErrGateway, http.StatusInternalServerError, "payment_failed", "payment could not be started, try again later"},
	{paymentapp.ErrNotConfirmed, http.StatusBadRequest, "payment_not_completed", "payment has not been completed"},
	{paymentdomain.ErrAttemptNotFound, http.StatusNotFound, "payment_not_found", "payment not found"},
	{invdomain.ErrInsufficientStock, http.StatusConflict, "insufficient_stock", "not enough stock to apply this status"},
	{invdomain.ErrUnknownStock, http.StatusConflict, "stock_unavailable", "an item of this order no longer exists"},
	{orderdomain.ErrStatusConflict, http.StatusConflict, "status_conflict", "order changed concurrently, reload and retry"},
	{orderdomain.ErrInvalidStatus, http.StatusBadRequest, "invalid_status", "status is not valid"},
	{audit.ErrEventNotFound, http.StatusNotFound, "event_not_found", "security event not found"},
	{audit.ErrInvalidResolution, http.StatusBadRequest, "invalid_resolution", "status must be resolved or dismissed"},
	{audit.ErrEventAlreadyClosed, http.StatusConflict, "event_closed", "security event is already closed"},
}

// writeServiceError maps a service error to its status and envelope.
// Validation errors keep their text; everything else gets a fixed message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, now time.Time) {
	if errors.Is(err, paymentapp.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var rl *paymentapp.RateLimitError
	if errors.As(err, &rl) {
		secs := int((rl.ResetAt.Sub(now) + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
			}
			writeError(w, m.status, m.code, m.message)
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
