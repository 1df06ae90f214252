package gsckit

import (
	"context"
	"time"
)

// AccountRecord is the persisted Google credential material for one user.
// Exactly one record exists per user id; the expiry only ever moves forward.
type AccountRecord struct {
	UserID               string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	UpdatedAt            time.Time
}

// AccountStore persists one credential record per user.
type AccountStore interface {
	// Load returns the record for the user, or an error wrapping
	// ErrAccountNotLinked when none exists.
	Load(ctx context.Context, userID string) (AccountRecord, error)
	// Save writes the full record. Partial field updates are never performed, so
	// concurrent writers can at worst overwrite each other whole.
	Save(ctx context.Context, record AccountRecord) error
}
