package httpx

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront-integrity/internal/api-gateway/core/ports"
	"github.com/jcmexdev/storefront-integrity/internal/api-gateway/infra/httpx/middlewares"
)

// NewRouter builds the HTTP surface. Forwarding headers are honoured only
// from peers inside trusted.
func NewRouter(handler *Handler, resolver ports.IdentityResolver, trusted []netip.Prefix) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.TrustedRealIP(trusted))
	r.Use(middlewares.AttachRequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)

	r.Group(func(r chi.Router) {
		r.Use(middlewares.Authenticate(resolver))

		r.Post("/payments", handler.CreatePayment)
		r.Post("/payments/{transactionID}/confirm", handler.ConfirmPayment)

		r.Group(func(r chi.Router) {
			r.Use(middlewares.RequireAdmin)

			r.Get("/orders/{id}", handler.GetOrderByID)
			r.Patch("/orders/{id}/status", handler.UpdateOrderStatus)
			r.Get("/security-events", handler.ListSecurityEvents)
			r.Patch("/security-events/{id}", handler.ResolveSecurityEvent)
		})
	})
	return r
}
