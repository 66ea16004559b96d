package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stocker-io/stocker-sdk/pkg/composables"
)

const (
	TenantHeader = "X-Tenant-ID"
	UserHeader   = "X-User-ID"
)

// RequireTenant resolves the tenant from the request header. Requests without
// a valid tenant are rejected before they reach any handler.
func RequireTenant() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(TenantHeader))
			tenantID, err := uuid.Parse(raw)
			if err != nil || tenantID == uuid.Nil {
				http.Error(w, "missing or invalid tenant", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithTenantID(r.Context(), tenantID)))
		})
	}
}

// ProvideUser attaches the acting user when the header is present.
func ProvideUser() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID, err := uuid.Parse(raw); err == nil && userID != uuid.Nil {
				r = r.WithContext(composables.WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
