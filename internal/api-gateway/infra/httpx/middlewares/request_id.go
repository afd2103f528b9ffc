package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/interceptors"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/interceptors/constants"
)

// AttachRequestID copies chi's request id into the shared context key and
// echoes it back to the caller. It must run after middleware.RequestID.
func AttachRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(constants.HeaderXRequestId, requestID)
		}
		ctx := interceptors.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
