package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims placed by the middleware, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// BearerToken extracts the token from the Authorization header. The scheme is matched
// case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	switch {
	case scheme == "":
		return "", ErrMissingToken
	case !found || !strings.EqualFold(scheme, "bearer"):
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects requests without a valid access token. Requests for which skip returns
// true pass through untouched.
type Middleware struct {
	cfg  Config
	skip func(*http.Request) bool
}

// NewMiddleware builds a Middleware. skip may be nil.
func NewMiddleware(cfg Config, skip func(*http.Request) bool) Middleware {
	return Middleware{cfg: cfg, skip: skip}
}

// Wrap returns next guarded by bearer authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip != nil && m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := BearerToken(r)
		var claims *Claims
		if err == nil {
			claims, err = ParseAccess(token, m.cfg)
		}
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="salestrack", error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
}
