package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/service"
)

// Context keys for authenticated identity data
const (
	IdentityIDKey contextKey = "identity_id"
	RoleKey       contextKey = "role"
)

// AccessVerifier validates access tokens; implemented by
// service.SessionService
type AccessVerifier interface {
	VerifyAccess(token string) (*auth.Claims, error)
}

// Auth creates an authentication middleware that validates bearer access
// tokens
func (m *Middleware) Auth(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenString string
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					tokenString = strings.TrimSpace(parts[1])
				}
			}

			if tokenString == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			claims, err := verifier.VerifyAccess(tokenString)
			if err != nil {
				m.log.Debug().Err(err).Msg("token validation failed")
				code := "invalid_token"
				if errors.Is(err, service.ErrTokenExpired) {
					code = "token_expired"
				}
				writeJSONError(w, http.StatusUnauthorized, code, "The access token is invalid or expired")
				return
			}

			ctx := WithPrincipal(r.Context(), service.Principal{
				IdentityID: claims.Subject,
				Role:       claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose access token does not carry role.
// It must run inside Auth.
func (m *Middleware) RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}
			if principal.Role != role {
				m.log.Warn().
					Str("identity_id", principal.IdentityID).
					Str("role", string(principal.Role)).
					Str("path", r.URL.Path).
					Msg("role check failed")
				writeJSONError(w, http.StatusForbidden, "forbidden", "You are not allowed to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFrom returns the authenticated caller stored by Auth
func PrincipalFrom(ctx context.Context) (service.Principal, bool) {
	id, ok := ctx.Value(IdentityIDKey).(string)
	if !ok || id == "" {
		return service.Principal{}, false
	}
	role, _ := ctx.Value(RoleKey).(model.Role)
	return service.Principal{IdentityID: id, Role: role}, true
}

// WithPrincipal stores an authenticated caller in ctx
func WithPrincipal(ctx context.Context, p service.Principal) context.Context {
	ctx = context.WithValue(ctx, IdentityIDKey, p.IdentityID)
	return context.WithValue(ctx, RoleKey, p.Role)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
