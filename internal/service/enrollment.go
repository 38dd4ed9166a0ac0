package service

import (
	"context"

	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/redis"
	"gympay/internal/repository"
)

// EnrollmentService resolves enrollments through the Redis cache.
type EnrollmentService struct {
	repo   repository.EnrollmentRepository
	cache  redis.EnrollmentCacheInterface
	logger *zap.Logger
}

// NewEnrollmentService creates a new EnrollmentService. cache may be nil.
func NewEnrollmentService(repo repository.EnrollmentRepository, cache redis.EnrollmentCacheInterface, logger *zap.Logger) *EnrollmentService {
	return &EnrollmentService{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// Get returns the enrollment or repository.ErrNotFound.
func (s *EnrollmentService) Get(ctx context.Context, id int64) (*domain.Enrollment, error) {
	if id <= 0 {
		return nil, ErrInvalidEnrollmentID
	}

	if s.cache != nil {
		cached, err := s.cache.GetEnrollment(ctx, id)
		if err != nil {
			s.logger.Warn("enrollment cache read failed", zap.Int64("enrollment_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	enrollment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetEnrollment(ctx, enrollment); err != nil {
			s.logger.Warn("enrollment cache write failed", zap.Int64("enrollment_id", id), zap.Error(err))
		}
	}

	return enrollment, nil
}
