package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid payment status transition")

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// transitions lists the automated status changes. Re-applying the current
// status is handled separately and always allowed.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

// overrides extends transitions with the operator escape hatches.
var overrides = map[PaymentStatus][]PaymentStatus{
	PaymentStatusFailed:    {PaymentStatusCompleted, PaymentStatusCancelled},
	PaymentStatusCancelled: {PaymentStatusCompleted},
}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no automated transition leaves s.
// A completed payment can still be refunded by an operator.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// CanTransitionTo reports whether the automated paths may move s to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return true
	}
	return contains(transitions[s], next)
}

// CanOverrideTo reports whether an operator may move s to next.
func (s PaymentStatus) CanOverrideTo(next PaymentStatus) bool {
	if s.CanTransitionTo(next) {
		return true
	}
	return contains(overrides[s], next)
}

func contains(list []PaymentStatus, s PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PaymentType is the closed set of things a parent pays for.
type PaymentType string

const (
	PaymentTypeRegistration  PaymentType = "registration"
	PaymentTypeTuition       PaymentType = "tuition"
	PaymentTypeLateFee       PaymentType = "late_fee"
	PaymentTypeEquipment     PaymentType = "equipment"
	PaymentTypeBirthdayParty PaymentType = "birthday_party"
)

// PaymentTypes returns every valid payment type.
func PaymentTypes() []PaymentType {
	return []PaymentType{
		PaymentTypeRegistration,
		PaymentTypeTuition,
		PaymentTypeLateFee,
		PaymentTypeEquipment,
		PaymentTypeBirthdayParty,
	}
}

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	for _, v := range PaymentTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Label returns a human readable name, e.g. "Late fee".
func (t PaymentType) Label() string {
	s := strings.ReplaceAll(string(t), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// PaymentMethod records how the money was (or will be) collected.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodMock   PaymentMethod = "mock"
	PaymentMethodManual PaymentMethod = "manual"
)

// MockIntentPrefix is reserved for locally generated intent ids.
// Processor ids start with "pi_" and can never carry it.
const MockIntentPrefix = "mock_pi_"

// NewMockIntentID returns a synthetic intent id for mock mode.
func NewMockIntentID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", MockIntentPrefix, now.UnixMilli(), uuid.New().String()[:8])
}

// IsMockIntentID reports whether id was generated by NewMockIntentID.
func IsMockIntentID(id string) bool {
	return strings.HasPrefix(id, MockIntentPrefix)
}

// BillingAddress is descriptive metadata stored alongside a payment.
type BillingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Payment represents a single payment attempt for an enrollment.
type Payment struct {
	ID               int64
	ExternalIntentID string
	EnrollmentID     int64
	Amount           decimal.Decimal
	PaymentType      PaymentType
	Status           PaymentStatus
	PaymentMethod    PaymentMethod
	ParentEmail      string
	Description      string
	DueDate          *time.Time
	BillingAddress   *BillingAddress

	PaidDate      *time.Time
	FailureReason string
	ReceiptURL    string
	RefundAmount  *decimal.Decimal
	ProcessingFee *decimal.Decimal
	Notes         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsMock reports whether the payment never touched the processor.
func (p *Payment) IsMock() bool {
	return p.PaymentMethod == PaymentMethodMock || IsMockIntentID(p.ExternalIntentID)
}

// AmountMinorUnits returns the amount in cents.
func (p *Payment) AmountMinorUnits() int64 {
	return ToMinorUnits(p.Amount)
}

// ToMinorUnits converts a two-decimal amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a decimal amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PaymentUpdate describes a status write. Nil or empty metadata fields leave
// the stored value untouched; stored terminal metadata is never overwritten.
type PaymentUpdate struct {
	Status        PaymentStatus
	PaidDate      *time.Time
	FailureReason string
	ReceiptURL    string
	RefundAmount  *decimal.Decimal
	ProcessingFee *decimal.Decimal
	AppendNotes   string
}

// Apply returns a copy of p with the update merged the same way the store does.
func (u PaymentUpdate) Apply(p Payment) Payment {
	p.Status = u.Status
	if p.PaidDate == nil {
		p.PaidDate = u.PaidDate
	}
	if p.FailureReason == "" {
		p.FailureReason = u.FailureReason
	}
	if p.ReceiptURL == "" {
		p.ReceiptURL = u.ReceiptURL
	}
	if p.RefundAmount == nil {
		p.RefundAmount = u.RefundAmount
	}
	if p.ProcessingFee == nil {
		p.ProcessingFee = u.ProcessingFee
	}
	if u.AppendNotes != "" {
		if p.Notes == "" {
			p.Notes = u.AppendNotes
		} else {
			p.Notes = p.Notes + "\n" + u.AppendNotes
		}
	}
	return p
}
