package middlewares

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jcmexdev/storefront-integrity/internal/api-gateway/core/ports"
	"github.com/jcmexdev/storefront-integrity/internal/pkg/identity"
)

// Authenticate attaches the caller's identity when a valid bearer token is
// present. Requests without a token pass through anonymously; requests with
// a bad token are refused.
func Authenticate(resolver ports.IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				slog.InfoContext(r.Context(), "bearer token rejected", "error", err)
				deny(w, http.StatusUnauthorized, "invalid_token")
				return
			}
			if id != nil {
				r = r.WithContext(identity.WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identity.FromContext(r.Context())
		switch {
		case id == nil:
			deny(w, http.StatusUnauthorized, "authentication_required")
		case !id.IsAdmin():
			deny(w, http.StatusForbidden, "forbidden")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func deny(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": code})
}
