package store

import (
	"context"
	"time"

	"github.com/roady-devis/roady-devis-email/internal/model"
)

// EmailFilter controls filtering and pagination for email queries.
// Results are always sorted by received_at descending.
type EmailFilter struct {
	Processed *bool
	Limit     int
}

// Store is the persistence interface for email records.
type Store interface {
	// CreateEmail inserts a record. A non-empty Message-ID that is
	// already on file fails the insert with an error matched by
	// IsDuplicate.
	CreateEmail(ctx context.Context, email *model.Email) error
	GetEmails(ctx context.Context, filter EmailFilter) ([]model.Email, error)
	GetEmailByID(ctx context.Context, id string) (*model.Email, error)

	// FindByMessageID returns the record with the given protocol identity,
	// or nil if none exists.
	FindByMessageID(ctx context.Context, messageID string) (*model.Email, error)

	// FindByFallbackKey returns a record matching the composite dedup key
	// (subject, declared receipt time, sender text), or nil.
	FindByFallbackKey(ctx context.Context, subject string, receivedAt time.Time, from string) (*model.Email, error)

	MarkProcessed(ctx context.Context, id string, errText string) error
	DeleteEmail(ctx context.Context, id string) error

	Close() error
}
