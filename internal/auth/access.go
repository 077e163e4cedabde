// Package auth binds the platform token layer to the gatherings scopes.
package auth

import (
	"context"
	"errors"

	authlib "example.com/gatherings/pkg/platform/auth"
)

// Scopes carried in gatherings access tokens.
const (
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
	ScopeCommentsWrite   = "comments:write"
)

var (
	// ErrUnauthenticated means the request carried no verified token.
	ErrUnauthenticated = errors.New("missing bearer token")
	// ErrForbidden means the token lacks every accepted scope.
	ErrForbidden = errors.New("insufficient scope")
)

type (
	Claims = authlib.Claims
	Config = authlib.Config
)

// WithClaims attaches verified claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return authlib.WithClaims(ctx, claims)
}

// Authorize returns the caller when it holds at least one of scopes.
// An empty scope list only requires a verified caller.
func Authorize(ctx context.Context, scopes ...string) (*Claims, error) {
	claims, ok := authlib.FromContext(ctx)
	if !ok || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	if len(scopes) > 0 && !claims.HasAnyScope(scopes...) {
		return nil, ErrForbidden
	}
	return claims, nil
}
