package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

// AuditRecorder records security and business events.
// Record never fails the caller's operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditEntry)
}

// AuditService writes audit entries asynchronously.
type AuditService struct {
	repo    repository.AuditRepository
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repository.AuditRepository, logger *zap.Logger, timeout time.Duration) *AuditService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AuditService{
		repo:    repo,
		logger:  logger,
		timeout: timeout,
	}
}

// Record stores entry in the background. The request context only
// contributes its values; its cancellation does not abort the write.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		writeCtx, cancel := context.WithTimeout(base, s.timeout)
		defer cancel()

		if err := s.repo.Record(writeCtx, &entry); err != nil {
			s.logger.Error("audit write failed",
				zap.String("action", entry.Action),
				zap.String("resource", entry.Resource),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until pending writes finish. Called during shutdown.
func (s *AuditService) Wait() {
	s.wg.Wait()
}
