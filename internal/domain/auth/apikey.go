package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ScopeAdmin marks keys allowed to drive fulfillment: transitions, archival,
// history. Keys without it can only place orders and validate coupons.
const ScopeAdmin = "admin"

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
// Name doubles as the default audit actor for requests made with the key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the given scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
