package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/techbreeze/order-service/internal/entities"
	"github.com/techbreeze/order-service/pkg/utils"
)

// UserResolver turns a bearer token into a user. Token verification lives
// behind this interface; the order service only ever sees the resolved
// principal.
type UserResolver interface {
	GetByToken(ctx context.Context, token string) (entities.User, error)
}

type principalKey struct{}

// PrincipalFromContext returns the caller resolved by Auth.
func PrincipalFromContext(ctx context.Context) (entities.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(entities.Principal)
	return p, ok
}

// WithPrincipal attaches a principal to ctx. Exported for handler tests.
func WithPrincipal(ctx context.Context, p entities.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Auth resolves the Authorization header to a principal and rejects requests
// it cannot resolve. Every order route sits behind this gate.
func Auth(logger *slog.Logger, users UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				utils.WriteError(w, "no token provided", http.StatusUnauthorized)
				return
			}

			user, err := users.GetByToken(r.Context(), token)
			if errors.Is(err, entities.ErrUserNotFound) {
				utils.WriteError(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to resolve token", slog.Any("error", err))
				utils.WriteError(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			principal := entities.Principal{UserID: user.ID, Role: user.Role}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole rejects callers whose resolved role differs from role.
// Must be mounted after Auth.
func RequireRole(role entities.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || principal.Role != role {
				utils.WriteError(w, "access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}
