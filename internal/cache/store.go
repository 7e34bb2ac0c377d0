// Package cache provides the on-device key/value store that holds one
// JSON-serialized collection per key: domain snapshots written by the sync
// scheduler and the legacy local-only record sets consumed by migration.
//
// Stores have no concurrency control of their own beyond keeping a single
// operation atomic; ordering between writers is the caller's concern.
package cache

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("cache: key not found")

	// ErrMalformedData is returned when a stored value cannot be decoded.
	ErrMalformedData = errors.New("cache: malformed data")

	// ErrInvalidKey is returned for keys that cannot be stored safely.
	ErrInvalidKey = errors.New("cache: invalid key")
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store is a durable key/value store over raw JSON payloads.
type Store interface {
	// ReadSet returns the payload stored under key, or ErrNotFound.
	ReadSet(ctx context.Context, key string) ([]byte, error)
	// WriteSet replaces the payload stored under key.
	WriteSet(ctx context.Context, key string, payload []byte) error
	// DeleteSet removes key. Deleting a missing key is not an error.
	DeleteSet(ctx context.Context, key string) error
}

// ValidateKey checks that key is non-empty and made of safe characters.
func ValidateKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
