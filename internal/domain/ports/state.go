package ports

import (
	"context"

	"github.com/kevin07696/subscription-migrator/internal/domain"
)

// StateRepository persists the migration state document
type StateRepository interface {
	// Load returns the raw state document or domain.ErrStateNotFound
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the state document
	Save(ctx context.Context, doc []byte) error

	// Delete removes the state document
	Delete(ctx context.Context) error
}

// ErrorArchive stores error log entries evicted from the capped log
type ErrorArchive interface {
	Archive(ctx context.Context, entries []domain.ErrorEntry) error
}

// VetoLog is the durable audit log of blocked renewals
type VetoLog interface {
	Append(ctx context.Context, veto domain.RenewalVeto) error
	Recent(ctx context.Context, limit int) ([]domain.RenewalVeto, error)
}
