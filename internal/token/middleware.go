package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

type claimsKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims placed by Authenticate.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// Authenticate requires a valid bearer token.
// Missing token -> 401, invalid/expired/revoked -> 403.
func Authenticate(svc *Service, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r.Header.Get("Authorization"))
			claims, err := svc.Verify(r.Context(), raw)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
			case errors.Is(err, ErrMissingToken):
				writeMessage(w, http.StatusUnauthorized, "missing token")
			case errors.Is(err, ErrInvalidToken):
				logger.Debugw("token rejected", "err", err, "path", r.URL.Path)
				writeMessage(w, http.StatusForbidden, "invalid token")
			default:
				logger.Errorw("token verification failed", "err", err)
				writeMessage(w, http.StatusInternalServerError, "server error")
			}
		})
	}
}

// RequireRoles must run after Authenticate; it rejects roles outside the set with 403.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFrom(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "missing token")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				writeMessage(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
