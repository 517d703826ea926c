// internal/membership/middleware.go
package membership

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"librarium/internal/apperr"
	"librarium/internal/httpx"
)

type principalKey struct{}

// WithPrincipal stores the caller in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticate rejects requests without a valid Bearer token.
func Authenticate(tokens *TokenIssuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
				httpx.WriteError(w, r, logger, apperr.Unauthorized("missing bearer token"))
				return
			}

			principal, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", slog.Any("error", err))
				httpx.WriteError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRoles lets the request through if the caller holds any of roles.
func RequireRoles(logger *slog.Logger, roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				httpx.WriteError(w, r, logger, apperr.Unauthorized("unauthorized"))
				return
			}
			if !principal.HasAnyRole(roles...) {
				httpx.WriteError(w, r, logger, ErrNotPermitted)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
