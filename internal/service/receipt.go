package service

import (
	"context"
	"fmt"
	"strings"

	"gympay/internal/domain"
	"gympay/internal/repository"
)

const mockReceiptBaseURL = "https://receipts.gympay.local/mock/"

// ReceiptService builds receipts for settled payments.
type ReceiptService struct {
	payments    repository.PaymentRepository
	enrollments *EnrollmentService
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(payments repository.PaymentRepository, enrollments *EnrollmentService) *ReceiptService {
	return &ReceiptService{
		payments:    payments,
		enrollments: enrollments,
	}
}

// MockReceiptURL returns the synthetic receipt location for a mock payment.
func (s *ReceiptService) MockReceiptURL(intentID string) string {
	return mockReceiptBaseURL + intentID
}

// Receipt renders the plain-text receipt for a completed or refunded payment.
func (s *ReceiptService) Receipt(ctx context.Context, paymentID int64) (string, *domain.Payment, error) {
	if paymentID <= 0 {
		return "", nil, ErrInvalidPaymentID
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return "", nil, err
	}

	if payment.Status != domain.PaymentStatusCompleted && payment.Status != domain.PaymentStatusRefunded {
		return "", payment, ErrReceiptUnavailable
	}

	// The receipt still renders without student details.
	enrollment, _ := s.enrollments.Get(ctx, payment.EnrollmentID)

	return s.FormatReceipt(payment, enrollment), payment, nil
}

// FormatReceipt formats the receipt as a string (for email/print).
func (s *ReceiptService) FormatReceipt(payment *domain.Payment, enrollment *domain.Enrollment) string {
	var b strings.Builder

	line := func(label, value string) {
		fmt.Fprintf(&b, "%-16s%s\n", label, value)
	}
	rule := strings.Repeat("-", 37) + "\n"
	banner := strings.Repeat("=", 37) + "\n"

	b.WriteString(banner)
	b.WriteString("          PAYMENT RECEIPT\n")
	b.WriteString(banner)
	line("Receipt No:", fmt.Sprintf("%06d", payment.ID))
	if payment.PaidDate != nil {
		line("Date:", payment.PaidDate.Format("Jan 02, 2006 3:04 PM"))
	}
	if enrollment != nil {
		line("Student:", enrollment.StudentName)
		line("Parent:", enrollment.ParentName)
	}
	line("Email:", payment.ParentEmail)

	b.WriteString("\nPAYMENT DETAILS\n")
	b.WriteString(rule)
	line("Item:", payment.PaymentType.Label())
	if payment.Description != "" {
		line("Description:", payment.Description)
	}
	line("Method:", string(payment.PaymentMethod))
	line("Status:", string(payment.Status))
	b.WriteString(rule)
	line("TOTAL:", "$"+payment.Amount.StringFixed(2))
	if payment.RefundAmount != nil {
		line("Refunded:", "-$"+payment.RefundAmount.StringFixed(2))
		line("Net:", "$"+payment.Amount.Sub(*payment.RefundAmount).StringFixed(2))
	}

	b.WriteString("\n")
	b.WriteString(banner)
	b.WriteString("   Thank you for training with us!\n")
	b.WriteString(banner)

	return b.String()
}
