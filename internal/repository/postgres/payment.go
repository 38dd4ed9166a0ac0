package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

const paymentColumns = `
	id, external_intent_id, enrollment_id, amount, payment_type, status, payment_method,
	parent_email, description, due_date, billing_address,
	paid_date, failure_reason, receipt_url, refund_amount, processing_fee, notes,
	created_at, updated_at`

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			external_intent_id, enrollment_id, amount, payment_type, status, payment_method,
			parent_email, description, due_date, billing_address, paid_date, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	address, err := marshalAddress(payment.BillingAddress)
	if err != nil {
		return err
	}

	err = r.q.QueryRowContext(ctx, query,
		nullString(payment.ExternalIntentID),
		payment.EnrollmentID,
		payment.Amount,
		payment.PaymentType,
		payment.Status,
		payment.PaymentMethod,
		payment.ParentEmail,
		payment.Description,
		payment.DueDate,
		address,
		payment.PaidDate,
		nullString(payment.Notes),
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return err
	}

	return nil
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return payment, nil
}

// GetByExternalIntentID retrieves a payment by its processor intent id.
func (r *PaymentRepository) GetByExternalIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_intent_id = $1`

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return payment, nil
}

// ListByEnrollmentID retrieves all payments of an enrollment, oldest first.
func (r *PaymentRepository) ListByEnrollmentID(ctx context.Context, enrollmentID int64) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE enrollment_id = $1 ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

// List retrieves payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EnrollmentID != 0 {
		args = append(args, filter.EnrollmentID)
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPayments(rows)
}

// Transition applies update only if the stored status still equals expected.
// Terminal metadata already on the row is kept; notes are appended.
func (r *PaymentRepository) Transition(ctx context.Context, id int64, expected domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error) {
	query := `
		UPDATE payments SET
			status = $3,
			paid_date = COALESCE(paid_date, $4),
			failure_reason = COALESCE(failure_reason, NULLIF($5, '')),
			receipt_url = COALESCE(receipt_url, NULLIF($6, '')),
			refund_amount = COALESCE(refund_amount, $7),
			processing_fee = COALESCE(processing_fee, $8),
			notes = CASE
				WHEN $9 = '' THEN notes
				WHEN notes IS NULL OR notes = '' THEN $9
				ELSE notes || E'\n' || $9
			END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + paymentColumns

	payment, err := scanPayment(r.q.QueryRowContext(ctx, query,
		id,
		expected,
		update.Status,
		update.PaidDate,
		update.FailureReason,
		update.ReceiptURL,
		nullDecimal(update.RefundAmount),
		nullDecimal(update.ProcessingFee),
		update.AppendNotes,
	))
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrNotFound
	}

	return nil, repository.ErrConflict
}

// DeletePending removes a payment that is still pending.
func (r *PaymentRepository) DeletePending(ctx context.Context, id int64) error {
	query := `DELETE FROM payments WHERE id = $1 AND status = $2`

	result, err := r.q.ExecContext(ctx, query, id, domain.PaymentStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected > 0 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}

	return repository.ErrConflict
}

func (r *PaymentRepository) exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var (
		payment       domain.Payment
		intentID      sql.NullString
		dueDate       sql.NullTime
		address       []byte
		paidDate      sql.NullTime
		failureReason sql.NullString
		receiptURL    sql.NullString
		refundAmount  decimal.NullDecimal
		processingFee decimal.NullDecimal
		notes         sql.NullString
	)

	err := row.Scan(
		&payment.ID,
		&intentID,
		&payment.EnrollmentID,
		&payment.Amount,
		&payment.PaymentType,
		&payment.Status,
		&payment.PaymentMethod,
		&payment.ParentEmail,
		&payment.Description,
		&dueDate,
		&address,
		&paidDate,
		&failureReason,
		&receiptURL,
		&refundAmount,
		&processingFee,
		&notes,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.ExternalIntentID = intentID.String
	payment.FailureReason = failureReason.String
	payment.ReceiptURL = receiptURL.String
	payment.Notes = notes.String
	if dueDate.Valid {
		payment.DueDate = &dueDate.Time
	}
	if paidDate.Valid {
		payment.PaidDate = &paidDate.Time
	}
	if refundAmount.Valid {
		payment.RefundAmount = &refundAmount.Decimal
	}
	if processingFee.Valid {
		payment.ProcessingFee = &processingFee.Decimal
	}
	if len(address) > 0 {
		var a domain.BillingAddress
		if err := json.Unmarshal(address, &a); err != nil {
			return nil, fmt.Errorf("decode billing address: %w", err)
		}
		payment.BillingAddress = &a
	}

	return &payment, nil
}

func scanPayments(rows *sql.Rows) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

func marshalAddress(a *domain.BillingAddress) (any, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode billing address: %w", err)
	}
	return string(data), nil
}
