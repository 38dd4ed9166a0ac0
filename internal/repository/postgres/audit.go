package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gympay/internal/domain"
)

// AuditRepository appends audit entries to the audit_logs table.
type AuditRepository struct {
	q Querier
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{q: db}
}

// Record inserts an audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_logs (id, action, resource, actor_id, details, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}

	_, err = r.q.ExecContext(ctx, query,
		entry.ID,
		entry.Action,
		entry.Resource,
		nullString(entry.ActorID),
		string(details),
		entry.Success,
		entry.CreatedAt,
	)
	return err
}
