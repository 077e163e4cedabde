package auth

import (
	"net/http"

	authlib "example.com/gatherings/pkg/platform/auth"
)

// ChatPath is the websocket endpoint; it also accepts the access_token query parameter.
const ChatPath = "/chat"

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.Method == http.MethodOptions
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, skipper, ChatPath)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
