package allocator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	IdentifierLength   = 6
	identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxIdentifierTries = 16
)

// ErrIdentifierExhausted means every attempt collided with an existing server.
var ErrIdentifierExhausted = errors.New("could not generate a unique server identifier")

// ExistsFunc reports whether an identifier is already taken.
type ExistsFunc func(ctx context.Context, identifier string) (bool, error)

// RandomIdentifier draws IdentifierLength characters uniformly from A-Z0-9.
func RandomIdentifier() (string, error) {
	max := big.NewInt(int64(len(identifierAlphabet)))
	b := make([]byte, IdentifierLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = identifierAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NewIdentifier regenerates until exists reports a free identifier. The store's
// unique index stays the final arbiter; callers retry on a conflicting insert.
func NewIdentifier(ctx context.Context, exists ExistsFunc) (string, error) {
	return newIdentifier(ctx, exists, RandomIdentifier)
}

func newIdentifier(ctx context.Context, exists ExistsFunc, gen func() (string, error)) (string, error) {
	for i := 0; i < maxIdentifierTries; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := gen()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrIdentifierExhausted
}

// ValidIdentifier reports whether s has the identifier shape.
func ValidIdentifier(s string) bool {
	if len(s) != IdentifierLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
