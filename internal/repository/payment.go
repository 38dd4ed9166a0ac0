package repository

import (
	"context"

	"gympay/internal/domain"
)

// PaymentFilter narrows a payment listing. Zero values are ignored.
type PaymentFilter struct {
	Status       domain.PaymentStatus
	EnrollmentID int64
	Limit        int
	Offset       int
}

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment and assigns its ID and timestamps.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)

	// GetByExternalIntentID retrieves a payment by its processor intent id.
	GetByExternalIntentID(ctx context.Context, intentID string) (*domain.Payment, error)

	// ListByEnrollmentID retrieves all payments of an enrollment, oldest first.
	ListByEnrollmentID(ctx context.Context, enrollmentID int64) ([]*domain.Payment, error)

	// List retrieves payments matching the filter, newest first.
	List(ctx context.Context, filter PaymentFilter) ([]*domain.Payment, error)

	// Transition applies update only if the stored status still equals expected.
	// Returns ErrConflict when the status changed underneath the caller.
	Transition(ctx context.Context, id int64, expected domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error)

	// DeletePending removes a payment that is still pending.
	// Returns ErrConflict when the payment exists in any other status.
	DeletePending(ctx context.Context, id int64) error
}
