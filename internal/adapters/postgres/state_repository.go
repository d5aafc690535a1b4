package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// StateRepository stores the migration state document in a single JSONB row
type StateRepository struct {
	db ports.DBTX
}

var _ ports.StateRepository = (*StateRepository)(nil)

// NewStateRepository creates a state repository on the target database
func NewStateRepository(db ports.DBTX) *StateRepository {
	return &StateRepository{db: db}
}

func (r *StateRepository) Load(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT document FROM migration_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load migration state: %w", err)
	}
	return doc, nil
}

func (r *StateRepository) Save(ctx context.Context, doc []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO migration_state (id, document, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
		doc)
	if err != nil {
		return fmt.Errorf("save migration state: %w", err)
	}
	return nil
}

func (r *StateRepository) Delete(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM migration_state WHERE id = 1`); err != nil {
		return fmt.Errorf("delete migration state: %w", err)
	}
	return nil
}
