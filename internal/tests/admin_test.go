package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gympay/internal/domain"
	"gympay/internal/repository"
	"gympay/internal/service"
)

func addPayment(f *Fixture, id int64, status domain.PaymentStatus, amount string) *domain.Payment {
	return f.Payments.AddPayment(&domain.Payment{
		ID:            id,
		EnrollmentID:  7,
		Amount:        decimal.RequireFromString(amount),
		PaymentType:   domain.PaymentTypeTuition,
		Status:        status,
		PaymentMethod: domain.PaymentMethodCard,
		ParentEmail:   "lin@example.com",
	})
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestAdminUpdate_RefundDefaultsToFullAmount(t *testing.T) {
	f := NewFixture(false)
	addPayment(f, 1, domain.PaymentStatusCompleted, "95.00")

	updated, err := f.AdminService.Update(context.Background(), service.UpdateRequest{
		ID:      1,
		Status:  domain.PaymentStatusRefunded,
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated.Status != domain.PaymentStatusRefunded {
		t.Errorf("expected refunded, got %s", updated.Status)
	}
	if updated.RefundAmount == nil || !updated.RefundAmount.Equal(decimal.RequireFromString("95.00")) {
		t.Errorf("expected refund of 95.00, got %v", updated.RefundAmount)
	}
}

func TestAdminUpdate_RefundBounds(t *testing.T) {
	testCases := []struct {
		name   string
		refund string
		valid  bool
	}{
		{"partial", "40.50", true},
		{"full", "95.00", true},
		{"over amount", "95.01", false},
		{"zero", "0", false},
		{"negative", "-1", false},
		{"sub-cent", "10.005", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFixture(false)
			addPayment(f, 1, domain.PaymentStatusCompleted, "95.00")

			_, err := f.AdminService.Update(context.Background(), service.UpdateRequest{
				ID:           1,
				Status:       domain.PaymentStatusRefunded,
				RefundAmount: decimalPtr(tc.refund),
			})
			if tc.valid && err != nil {
				t.Errorf("expected refund %s to be accepted, got %v", tc.refund, err)
			}
			if !tc.valid {
				if !errors.Is(err, service.ErrRefundExceedsAmount) {
					t.Errorf("expected ErrRefundExceedsAmount, got %v", err)
				}
				if f.Payments.GetPayment(1).Status != domain.PaymentStatusCompleted {
					t.Error("expected payment to stay completed")
				}
			}
		})
	}
}

func TestAdminUpdate_RefundAmountRequiresRefundStatus(t *testing.T) {
	f := NewFixture(false)
	addPayment(f, 1, domain.PaymentStatusCompleted, "95.00")

	_, err := f.AdminService.Update(context.Background(), service.UpdateRequest{
		ID:           1,
		Status:       domain.PaymentStatusCompleted,
		RefundAmount: decimalPtr("10.00"),
	})
	if !errors.Is(err, service.ErrRefundWithoutRefundStatus) {
		t.Fatalf("expected ErrRefundWithoutRefundStatus, got %v", err)
	}
}

func TestAdminUpdate_Overrides(t *testing.T) {
	testCases := []struct {
		from    domain.PaymentStatus
		to      domain.PaymentStatus
		allowed bool
	}{
		{domain.PaymentStatusFailed, domain.PaymentStatusCompleted, true},
		{domain.PaymentStatusCancelled, domain.PaymentStatusCompleted, true},
		{domain.PaymentStatusFailed, domain.PaymentStatusCancelled, true},
		{domain.PaymentStatusPending, domain.PaymentStatusCompleted, true},
		{domain.PaymentStatusCompleted, domain.PaymentStatusPending, false},
		{domain.PaymentStatusCompleted, domain.PaymentStatusFailed, false},
		{domain.PaymentStatusRefunded, domain.PaymentStatusCompleted, false},
		{domain.PaymentStatusPending, domain.PaymentStatusRefunded, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			f := NewFixture(false)
			addPayment(f, 1, tc.from, "50.00")

			updated, err := f.AdminService.Update(context.Background(), service.UpdateRequest{
				ID:      1,
				Status:  tc.to,
				Notes:   "override",
				ActorID: "admin-1",
			})

			if tc.allowed {
				if err != nil {
					t.Fatalf("expected override to be allowed, got %v", err)
				}
				if updated.Status != tc.to {
					t.Errorf("expected %s, got %s", tc.to, updated.Status)
				}
				entries := f.Audit.ByAction(domain.AuditPaymentOverride)
				if len(entries) != 1 || entries[0].ActorID != "admin-1" {
					t.Errorf("expected one override audit entry by admin-1, got %v", entries)
				}
				return
			}

			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if f.Payments.GetPayment(1).Status != tc.from {
				t.Error("expected status to be unchanged")
			}
		})
	}
}

func TestAdminUpdate_AppendsNotes(t *testing.T) {
	f := NewFixture(false)
	p := addPayment(f, 1, domain.PaymentStatusFailed, "50.00")
	p.Notes = "first"
	f.Payments.AddPayment(p)

	updated, err := f.AdminService.Update(context.Background(), service.UpdateRequest{
		ID:     1,
		Status: domain.PaymentStatusCompleted,
		Notes:  "paid in cash at front desk",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Notes != "first\npaid in cash at front desk" {
		t.Errorf("unexpected notes %q", updated.Notes)
	}
	if updated.PaidDate == nil {
		t.Error("expected paid date on manual completion")
	}
}

func TestAdminUpdate_Validation(t *testing.T) {
	f := NewFixture(false)

	if _, err := f.AdminService.Update(context.Background(), service.UpdateRequest{ID: 0, Status: domain.PaymentStatusCompleted}); !errors.Is(err, service.ErrInvalidPaymentID) {
		t.Errorf("expected ErrInvalidPaymentID, got %v", err)
	}
	if _, err := f.AdminService.Update(context.Background(), service.UpdateRequest{ID: 1, Status: "settled"}); !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.AdminService.Update(context.Background(), service.UpdateRequest{ID: 99, Status: domain.PaymentStatusCompleted}); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminDelete_OnlyPending(t *testing.T) {
	f := NewFixture(false)
	addPayment(f, 42, domain.PaymentStatusCompleted, "95.00")
	addPayment(f, 43, domain.PaymentStatusPending, "95.00")

	err := f.AdminService.Delete(context.Background(), 42, "admin-1")
	if !errors.Is(err, service.ErrPaymentNotDeletable) {
		t.Fatalf("expected ErrPaymentNotDeletable, got %v", err)
	}
	if f.Payments.GetPayment(42) == nil {
		t.Error("completed payment must not be deleted")
	}

	if err := f.AdminService.Delete(context.Background(), 43, "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Payments.GetPayment(43) != nil {
		t.Error("expected pending payment to be deleted")
	}

	if err := f.AdminService.Delete(context.Background(), 43, "admin-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	entries := f.Audit.ByAction(domain.AuditPaymentDelete)
	if len(entries) != 2 {
		t.Fatalf("expected two delete audit entries, got %d", len(entries))
	}
	if entries[0].Success || !entries[1].Success {
		t.Error("expected the rejected delete to be audited as a failure")
	}
}

func TestAdminCreate(t *testing.T) {
	f := NewFixture(false)

	payment, err := f.AdminService.Create(context.Background(), service.CreateRequest{
		EnrollmentID: 7,
		Amount:       decimal.RequireFromString("120.00"),
		PaymentType:  domain.PaymentTypeEquipment,
		Status:       domain.PaymentStatusCompleted,
		Notes:        "cash",
		ActorID:      "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if payment.PaymentMethod != domain.PaymentMethodManual {
		t.Errorf("expected manual payment method, got %s", payment.PaymentMethod)
	}
	if payment.PaidDate == nil {
		t.Error("expected paid date for a completed manual payment")
	}
	if payment.ParentEmail != "lin@example.com" {
		t.Errorf("expected enrollment email, got %q", payment.ParentEmail)
	}

	_, err = f.AdminService.Create(context.Background(), service.CreateRequest{
		EnrollmentID: 7,
		Amount:       decimal.RequireFromString("120.00"),
		PaymentType:  domain.PaymentTypeEquipment,
		Status:       domain.PaymentStatusRefunded,
	})
	if !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus for a refunded initial status, got %v", err)
	}
}

func TestAdminList_FiltersAndPages(t *testing.T) {
	f := NewFixture(false)
	for i := int64(1); i <= 5; i++ {
		status := domain.PaymentStatusPending
		if i%2 == 0 {
			status = domain.PaymentStatusCompleted
		}
		addPayment(f, i, status, "10.00")
	}

	payments, err := f.AdminService.List(context.Background(), repository.PaymentFilter{
		Status: domain.PaymentStatusPending,
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 2 || payments[0].ID != 5 || payments[1].ID != 3 {
		t.Errorf("expected pending payments 5 and 3, got %d payments", len(payments))
	}

	if _, err := f.AdminService.List(context.Background(), repository.PaymentFilter{Status: "bogus"}); !errors.Is(err, service.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestAuditService_WritesInBackground(t *testing.T) {
	repo := &MockAuditRepository{}
	audit := service.NewAuditService(repo, nopLogger(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	audit.Record(ctx, domain.AuditEntry{Action: domain.AuditPaymentCreate, Resource: "payment:1", Success: true})
	cancel()
	audit.Wait()

	entries := repo.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be assigned")
	}
}

func TestAuditService_FailureDoesNotPropagate(t *testing.T) {
	repo := &MockAuditRepository{RecordError: errors.New("disk full")}
	audit := service.NewAuditService(repo, nopLogger(), 0)

	audit.Record(context.Background(), domain.AuditEntry{Action: domain.AuditPaymentCreate})
	audit.Wait()

	if len(repo.Entries()) != 0 {
		t.Error("expected nothing stored")
	}
}
