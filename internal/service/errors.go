package service

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the parent of every validation error. Its messages are
// safe to show to callers.
var ErrInvalidInput = errors.New("invalid input")

var (
	// ErrInvalidEnrollmentID is returned when the enrollment id is missing or not positive.
	ErrInvalidEnrollmentID = fmt.Errorf("%w: enrollmentId must be a positive integer", ErrInvalidInput)

	// ErrInvalidAmount is returned when the amount is out of range or too precise.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be greater than 0 and at most 10000 with at most two decimal places", ErrInvalidInput)

	// ErrInvalidPaymentType is returned for payment types outside the closed set.
	ErrInvalidPaymentType = fmt.Errorf("%w: unknown paymentType", ErrInvalidInput)

	// ErrInvalidPaymentID is returned when the payment id is missing or not positive.
	ErrInvalidPaymentID = fmt.Errorf("%w: payment id must be a positive integer", ErrInvalidInput)

	// ErrInvalidIntentID is returned when the payment intent id is empty.
	ErrInvalidIntentID = fmt.Errorf("%w: paymentIntentId is required", ErrInvalidInput)

	// ErrInvalidStatus is returned for unknown statuses or statuses an operation cannot set.
	ErrInvalidStatus = fmt.Errorf("%w: invalid status", ErrInvalidInput)

	// ErrMissingEmail is returned when no email is available to bill.
	ErrMissingEmail = fmt.Errorf("%w: customerEmail is required when the enrollment has no parent email", ErrInvalidInput)

	// ErrMissingLookup is returned when a read names neither a payment nor an enrollment.
	ErrMissingLookup = fmt.Errorf("%w: paymentId or enrollmentId is required", ErrInvalidInput)

	// ErrRefundExceedsAmount is returned when a refund is larger than the payment.
	ErrRefundExceedsAmount = fmt.Errorf("%w: refundAmount must be greater than 0 and not exceed the payment amount", ErrInvalidInput)

	// ErrRefundWithoutRefundStatus is returned when a refund amount accompanies another status.
	ErrRefundWithoutRefundStatus = fmt.Errorf("%w: refundAmount is only allowed with status refunded", ErrInvalidInput)
)

var (
	// ErrPaymentNotDeletable is returned when deleting a payment that is no longer pending.
	ErrPaymentNotDeletable = errors.New("only pending payments can be deleted")

	// ErrPaymentNotSucceeded is returned when the processor did not report success.
	ErrPaymentNotSucceeded = errors.New("payment not successful")

	// ErrReceiptUnavailable is returned when a receipt is requested for an unpaid payment.
	ErrReceiptUnavailable = errors.New("receipt is only available for completed or refunded payments")

	// ErrPaymentsDisabled is returned when a live intent is confirmed while in mock mode.
	ErrPaymentsDisabled = errors.New("payment processing is disabled")

	// ErrUpstreamFailure is returned when the payment processor call fails.
	ErrUpstreamFailure = errors.New("payment processor unavailable")

	// ErrConcurrentModification is returned when a compare-and-set keeps losing.
	ErrConcurrentModification = errors.New("payment was modified concurrently")
)
