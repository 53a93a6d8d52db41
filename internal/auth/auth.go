// Package auth authenticates callers of the cache API.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Identity represents an authenticated identity
type Identity struct {
	Subject string         // token subject
	Caches  []string       // caches the identity may use; empty means all
	Claims  map[string]any // raw token claims
}

// CanUse reports whether the identity may operate on cache.
func (id *Identity) CanUse(cache string) bool {
	if id == nil || len(id.Caches) == 0 {
		return true
	}
	for _, c := range id.Caches {
		if c == cache || c == "*" {
			return true
		}
	}
	return false
}

// contextKey is used for storing Identity in context
type contextKey struct{}

// identityKey is the context key for Identity
var identityKey = contextKey{}

// WithIdentity adds an Identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity retrieves the Identity from context
func GetIdentity(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok {
		return id
	}
	return nil
}

// Authenticator is the interface for authentication providers
type Authenticator interface {
	// Authenticate returns the caller's identity or an error explaining why
	// the credentials were rejected.
	Authenticate(r *http.Request) (*Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
