package postgres

import (
	"context"
	"database/sql"
	"errors"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

// EnrollmentRepository reads the enrollment rows owned by the registration system.
type EnrollmentRepository struct {
	q Querier
}

// NewEnrollmentRepository creates a new PostgreSQL enrollment repository.
func NewEnrollmentRepository(db *sql.DB) *EnrollmentRepository {
	return &EnrollmentRepository{q: db}
}

// GetByID retrieves an enrollment by ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id int64) (*domain.Enrollment, error) {
	query := `
		SELECT id, student_name, parent_name, parent_email, parent_phone
		FROM enrollments
		WHERE id = $1
	`

	var (
		enrollment domain.Enrollment
		phone      sql.NullString
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&enrollment.ID,
		&enrollment.StudentName,
		&enrollment.ParentName,
		&enrollment.ParentEmail,
		&phone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	enrollment.ParentPhone = phone.String

	return &enrollment, nil
}
