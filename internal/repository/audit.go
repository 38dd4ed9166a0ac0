package repository

import (
	"context"

	"gympay/internal/domain"
)

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error
}
