// Package user holds the gateway's user registry. Identities are created on
// first login (or first connect callback) and immutable afterwards. The
// registry is process-local: the durable system of record for users is an
// external concern, and the data plane only needs identity lookups for
// authorization and message enrichment.
package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Name length bounds, applied after trimming surrounding whitespace.
const (
	MinNameLength = 1
	MaxNameLength = 50
)

// Sentinel errors. Callers should use errors.Is for comparison.
var (
	// ErrNotFound is returned when no user exists for the given id.
	ErrNotFound = errors.New("user: not found")

	// ErrInvalidName is returned when a display name is empty after
	// trimming or longer than MaxNameLength.
	ErrInvalidName = errors.New("user: invalid name")
)

// User is a registered identity.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository is the registry contract the handlers depend on.
type Repository interface {
	// UpsertByName returns the user whose case-folded name matches name,
	// creating one with a fresh id on first sight. The stored name keeps
	// the caller's casing from that first sight. Returns ErrInvalidName
	// for out-of-bounds names.
	UpsertByName(ctx context.Context, name string) (*User, error)

	// Upsert returns the user with the given id, creating it with the
	// supplied name when unknown. Used by the connect callback, where the
	// broker presents an externally minted id.
	Upsert(ctx context.Context, id, name string) (*User, error)

	// GetByID returns the user with the given id or ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)

	// Count returns the number of registered users.
	Count(ctx context.Context) (int, error)
}

// NormalizeName trims name and validates its length, returning the trimmed
// form. The case-folded variant used for lookups is FoldName.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < MinNameLength || n > MaxNameLength {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

// FoldName returns the case-insensitive lookup key for a display name.
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
