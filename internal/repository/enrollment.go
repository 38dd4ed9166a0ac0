package repository

import (
	"context"

	"gympay/internal/domain"
)

// EnrollmentRepository is the read-only enrollment lookup used for billing.
type EnrollmentRepository interface {
	// GetByID retrieves an enrollment by ID.
	GetByID(ctx context.Context, id int64) (*domain.Enrollment, error)
}
