package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// StorageKey is the key the resolved user is persisted under
const StorageKey = "auction_user"

var (
	// ErrNotFound is returned when no user has been stored yet
	ErrNotFound = errors.New("identity not found")
	// ErrSignedOut is returned by token suppliers while no one is signed in
	ErrSignedOut = errors.New("signed out")
)

// User is the resolved identity of the local participant
type User struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"display_name"`
}

// Store persists the resolved user across restarts
type Store interface {
	Load(ctx context.Context) (*User, error)
	Save(ctx context.Context, user User) error
	Clear(ctx context.Context) error
}

// TokenSupplier resolves a bearer token for one connection attempt or request.
// An empty token with a nil error means anonymous.
type TokenSupplier func(ctx context.Context) (string, error)

// StaticToken always supplies the same token
func StaticToken(token string) TokenSupplier {
	return func(ctx context.Context) (string, error) {
		return token, nil
	}
}

// FileToken reads the token from disk on every call so that an external
// signer can rotate it. A missing or empty file means signed out.
func FileToken(path string) TokenSupplier {
	return func(ctx context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", ErrSignedOut
			}
			return "", fmt.Errorf("read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", ErrSignedOut
		}
		return token, nil
	}
}

// AnonymousOnTransition wraps supplier so that an identity transition
// resolves to no token instead of failing the caller. A nil supplier is
// always anonymous.
func AnonymousOnTransition(supplier TokenSupplier) TokenSupplier {
	return func(ctx context.Context) (string, error) {
		if supplier == nil {
			return "", nil
		}
		token, err := supplier(ctx)
		if err != nil {
			if IsTransitionError(err) {
				log.Warn().Err(err).Msg("token unavailable during identity transition, continuing without token")
				return "", nil
			}
			return "", err
		}
		return token, nil
	}
}

// IsTransitionError reports whether err comes from the user signing in or out
// while a token was being resolved. Such errors are expected and mean "no token".
func IsTransitionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSignedOut) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "aborted") ||
		strings.Contains(msg, "signed out") ||
		strings.Contains(msg, "cancelled")
}
