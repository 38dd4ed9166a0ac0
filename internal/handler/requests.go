package handler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/thedevsaddam/govalidator"

	"gympay/internal/domain"
	"gympay/internal/service"
)

// ValidationError carries per-field validation messages.
type ValidationError struct {
	Errors url.Values
}

// Error returns the messages in field order.
func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, field := range fields {
		msgs = append(msgs, v.Errors[field]...)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap makes validation errors match service.ErrInvalidInput.
func (v ValidationError) Unwrap() error {
	return service.ErrInvalidInput
}

// validateStruct runs govalidator rules against the json names of data's fields.
func validateStruct(data interface{}, rules, messages govalidator.MapData) error {
	opts := govalidator.Options{
		Data:          data,
		Rules:         rules,
		Messages:      messages,
		TagIdentifier: "json",
	}

	if errs := govalidator.New(opts).ValidateStruct(); len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// bindJSON decodes the request body into req.
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("%w: malformed request body", service.ErrInvalidInput)
	}
	return nil
}

var paymentTypeRule = "in:" + joinPaymentTypes()

var paymentStatusRule = "in:" + strings.Join([]string{
	string(domain.PaymentStatusPending),
	string(domain.PaymentStatusProcessing),
	string(domain.PaymentStatusCompleted),
	string(domain.PaymentStatusFailed),
	string(domain.PaymentStatusCancelled),
	string(domain.PaymentStatusRefunded),
}, ",")

func joinPaymentTypes() string {
	types := domain.PaymentTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return strings.Join(names, ",")
}

// initiateFields are the scalar fields of POST /payments.
type initiateFields struct {
	EnrollmentID  int64       `json:"enrollmentId"`
	Amount        json.Number `json:"amount"`
	PaymentType   string      `json:"paymentType"`
	Description   string      `json:"description"`
	CustomerEmail string      `json:"customerEmail"`
	DueDate       string      `json:"dueDate"`
}

// InitiatePaymentRequest is the HTTP request body for starting a payment.
type InitiatePaymentRequest struct {
	initiateFields
	BillingAddress *domain.BillingAddress `json:"billingAddress"`
}

var initiateRules = govalidator.MapData{
	"enrollmentId":  []string{"required", "min:1"},
	"amount":        []string{"required"},
	"paymentType":   []string{"required", paymentTypeRule},
	"description":   []string{"max:500"},
	"customerEmail": []string{"email"},
}

var initiateMessages = govalidator.MapData{
	"enrollmentId":  []string{"required:enrollmentId is required", "min:enrollmentId must be a positive integer"},
	"amount":        []string{"required:amount is required"},
	"paymentType":   []string{"required:paymentType is required", "in:paymentType is not a known payment type"},
	"description":   []string{"max:description must be at most 500 characters"},
	"customerEmail": []string{"email:customerEmail must be a valid email address"},
}

// ConfirmPaymentRequest is the HTTP request body for PATCH /payments.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

var confirmRules = govalidator.MapData{
	"paymentIntentId": []string{"required", "max:255"},
	"paymentMethodId": []string{"max:255"},
}

var confirmMessages = govalidator.MapData{
	"paymentIntentId": []string{"required:paymentIntentId is required", "max:paymentIntentId is too long"},
	"paymentMethodId": []string{"max:paymentMethodId is too long"},
}

// CreatePaymentRequest is the HTTP request body for POST /admin/payments.
type CreatePaymentRequest struct {
	EnrollmentID int64       `json:"enrollmentId"`
	Amount       json.Number `json:"amount"`
	PaymentType  string      `json:"paymentType"`
	Status       string      `json:"status"`
	Description  string      `json:"description"`
	ParentEmail  string      `json:"parentEmail"`
	Notes        string      `json:"notes"`
	DueDate      string      `json:"dueDate"`
}

var createRules = govalidator.MapData{
	"enrollmentId": []string{"required", "min:1"},
	"amount":       []string{"required"},
	"paymentType":  []string{"required", paymentTypeRule},
	"status":       []string{"in:pending,completed"},
	"description":  []string{"max:500"},
	"parentEmail":  []string{"email"},
	"notes":        []string{"max:2000"},
}

var createMessages = govalidator.MapData{
	"enrollmentId": []string{"required:enrollmentId is required", "min:enrollmentId must be a positive integer"},
	"amount":       []string{"required:amount is required"},
	"paymentType":  []string{"required:paymentType is required", "in:paymentType is not a known payment type"},
	"status":       []string{"in:status must be pending or completed"},
	"description":  []string{"max:description must be at most 500 characters"},
	"parentEmail":  []string{"email:parentEmail must be a valid email address"},
	"notes":        []string{"max:notes must be at most 2000 characters"},
}

// UpdatePaymentRequest is the HTTP request body for PATCH /admin/payments.
type UpdatePaymentRequest struct {
	ID           int64       `json:"id"`
	Status       string      `json:"status"`
	Notes        string      `json:"notes"`
	RefundAmount json.Number `json:"refundAmount"`
}

var updateRules = govalidator.MapData{
	"id":     []string{"required", "min:1"},
	"status": []string{"required", paymentStatusRule},
	"notes":  []string{"max:2000"},
}

var updateMessages = govalidator.MapData{
	"id":     []string{"required:id is required", "min:id must be a positive integer"},
	"status": []string{"required:status is required", "in:status is not a known payment status"},
	"notes":  []string{"max:notes must be at most 2000 characters"},
}

// parseAmount converts a JSON number to a decimal amount.
func parseAmount(n json.Number, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a number", service.ErrInvalidInput, field)
	}
	return d, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s, field string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", service.ErrInvalidInput, field)
}

// queryInt64 reads an optional positive integer query parameter.
// Only plain decimal is accepted: "010" is 10 and "0x2A" is rejected.
func queryInt64(c *gin.Context, name string) (int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", service.ErrInvalidInput, name)
	}
	return v, nil
}

// queryInt reads an optional non-negative decimal query parameter, falling
// back to def when absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", service.ErrInvalidInput, name)
	}
	return v, nil
}
