package auth

import (
	"net/http"
	"strings"

	authlib "example.com/salestrack/pkg/auth"
)

// Claims and Config are the token types shared with pkg/auth.
type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// Context accessors for verified claims.
var (
	WithClaims  = authlib.WithClaims
	FromContext = authlib.FromContext
)

var publicPaths = map[string]struct{}{
	"/healthz":               {},
	"/metrics":               {},
	"/v1/auth/register":      {},
	"/v1/auth/login":         {},
	"/v1/auth/token/refresh": {},
	"/v1/auth/token/verify":  {},
}

// IsPublic reports whether the path is served without a bearer token.
func IsPublic(path string) bool {
	_, ok := publicPaths[strings.TrimSuffix(path, "/")]
	return ok
}

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		return r.Method == http.MethodOptions || IsPublic(r.URL.Path)
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, skipper)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
