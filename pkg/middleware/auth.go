package middleware

import (
	"context"
	"net/http"

	"hirewheel/pkg/logger"
)

const (
	CallerKey contextKey = "caller"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleOwner  = "owner"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Caller is the authenticated identity resolved by the upstream session
// provider. Services trust the gateway-injected headers; this process never
// verifies credentials itself.
type Caller struct {
	UserID string
	Role   string
}

func validRole(role string) bool {
	switch role {
	case RoleOwner, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// CallerIdentity extracts the caller from the identity headers and rejects
// requests carrying no usable identity.
func CallerIdentity(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := Caller{
				UserID: r.Header.Get(HeaderUserID),
				Role:   r.Header.Get(HeaderUserRole),
			}

			if caller.UserID == "" || !validRole(caller.Role) {
				log.Warn("Request without valid caller identity",
					"request_id", requestIDFrom(r.Context()),
					"path", r.URL.Path,
					"role", caller.Role,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Missing or invalid caller identity"}`))
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom returns the caller stored by CallerIdentity, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(Caller)
	return caller, ok
}
