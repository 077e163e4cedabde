package auth

import (
	"context"
	"net/http"
	"strings"
)

type claimsKey struct{}

// WithClaims stores verified claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims stored by WithClaims, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// Skipper allows callers to bypass authentication for specific requests.
type Skipper func(r *http.Request) bool

// QueryTokenPaths lists request paths that may carry the token in the
// access_token query parameter. Browsers cannot set headers on websocket upgrades.
type QueryTokenPaths map[string]struct{}

// Middleware provides HTTP middleware for bearer-token validation.
type Middleware struct {
	Config     Config
	Skipper    Skipper
	QueryPaths QueryTokenPaths
}

// NewMiddleware constructs a middleware with optional skipper.
func NewMiddleware(cfg Config, skipper Skipper, queryPaths ...string) Middleware {
	m := Middleware{Config: cfg, Skipper: skipper}
	if len(queryPaths) > 0 {
		m.QueryPaths = make(QueryTokenPaths, len(queryPaths))
		for _, p := range queryPaths {
			m.QueryPaths[p] = struct{}{}
		}
	}
	return m
}

// Wrap wraps an http.Handler with authentication.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skipper != nil && m.Skipper(r) {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.parseRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) parseRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if _, ok := m.QueryPaths[r.URL.Path]; ok {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return Parse(token, m.Config)
			}
		}
		return nil, ErrMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil, ErrInvalidToken
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return Parse(token, m.Config)
}
