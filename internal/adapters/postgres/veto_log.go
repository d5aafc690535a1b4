package postgres

import (
	"context"
	"fmt"

	"github.com/kevin07696/subscription-migrator/internal/domain"
	"github.com/kevin07696/subscription-migrator/internal/domain/ports"
)

// VetoLog appends blocked renewals to migration_renewal_vetoes
type VetoLog struct {
	db ports.DBTX
}

var _ ports.VetoLog = (*VetoLog)(nil)

// NewVetoLog creates a veto log on the target database
func NewVetoLog(db ports.DBTX) *VetoLog {
	return &VetoLog{db: db}
}

func (l *VetoLog) Append(ctx context.Context, veto domain.RenewalVeto) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO migration_renewal_vetoes (subscription_id, type, hook, created_at)
		VALUES ($1, $2, $3, $4)`,
		veto.SubscriptionID, string(veto.Type), veto.Hook, veto.Timestamp)
	if err != nil {
		return fmt.Errorf("append renewal veto: %w", err)
	}
	return nil
}

// Recent returns the newest vetoes first
func (l *VetoLog) Recent(ctx context.Context, limit int) ([]domain.RenewalVeto, error) {
	rows, err := l.db.Query(ctx, `
		SELECT subscription_id, type, hook, created_at
		FROM migration_renewal_vetoes
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list renewal vetoes: %w", err)
	}
	defer rows.Close()

	vetoes := make([]domain.RenewalVeto, 0, limit)
	for rows.Next() {
		var (
			v        domain.RenewalVeto
			vetoType string
		)
		if err := rows.Scan(&v.SubscriptionID, &vetoType, &v.Hook, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan renewal veto: %w", err)
		}
		v.Type = domain.VetoType(vetoType)
		vetoes = append(vetoes, v)
	}
	return vetoes, rows.Err()
}
