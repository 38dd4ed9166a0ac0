package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gympay/internal/domain"
	"gympay/internal/redis"
	"gympay/internal/service"
)

func succeededEvent(id, intentID string) domain.ProcessorEvent {
	return domain.ProcessorEvent{
		ID:         id,
		Type:       "payment_intent.succeeded",
		Kind:       domain.EventIntentSucceeded,
		Created:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		IntentID:   intentID,
		ReceiptURL: "https://pay.stripe.com/receipts/" + id,
	}
}

func TestWebhook_SucceededCompletesPayment(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	payload := f.Verifier.Register(succeededEvent("evt_1", payment.ExternalIntentID))
	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.Payments.GetPayment(payment.ID)
	if stored.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.PaidDate == nil || !stored.PaidDate.Equal(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected paid date from event, got %v", stored.PaidDate)
	}
	if stored.ReceiptURL != "https://pay.stripe.com/receipts/evt_1" {
		t.Errorf("unexpected receipt url %q", stored.ReceiptURL)
	}
	if !f.Events.Seen("evt_1") {
		t.Error("expected event to be marked processed")
	}
}

func TestWebhook_SucceededFetchesMissingReceipt(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	fee := decimal.RequireFromString("3.06")
	f.Processor.SetIntent(&domain.Intent{
		ID:            payment.ExternalIntentID,
		Status:        domain.IntentStatusSucceeded,
		ReceiptURL:    "https://pay.stripe.com/receipts/expanded",
		ProcessingFee: &fee,
	})

	event := succeededEvent("evt_2", payment.ExternalIntentID)
	event.ReceiptURL = ""
	payload := f.Verifier.Register(event)

	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.Payments.GetPayment(payment.ID)
	if stored.ReceiptURL != "https://pay.stripe.com/receipts/expanded" {
		t.Errorf("expected receipt from processor, got %q", stored.ReceiptURL)
	}
	if stored.ProcessingFee == nil || !stored.ProcessingFee.Equal(fee) {
		t.Errorf("expected fee 3.06, got %v", stored.ProcessingFee)
	}
}

func TestWebhook_EventFeeKeptWhenReceiptFetched(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	processorFee := decimal.RequireFromString("9.99")
	f.Processor.SetIntent(&domain.Intent{
		ID:            payment.ExternalIntentID,
		Status:        domain.IntentStatusSucceeded,
		ReceiptURL:    "https://pay.stripe.com/receipts/expanded",
		ProcessingFee: &processorFee,
	})

	eventFee := decimal.RequireFromString("3.06")
	event := succeededEvent("evt_fee", payment.ExternalIntentID)
	event.ReceiptURL = ""
	event.ProcessingFee = &eventFee
	payload := f.Verifier.Register(event)

	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.Payments.GetPayment(payment.ID)
	if stored.ReceiptURL != "https://pay.stripe.com/receipts/expanded" {
		t.Errorf("expected receipt from processor, got %q", stored.ReceiptURL)
	}
	if stored.ProcessingFee == nil || !stored.ProcessingFee.Equal(eventFee) {
		t.Errorf("expected the event's fee 3.06, got %v", stored.ProcessingFee)
	}
}

func TestWebhook_ClaimExtendedOnlyAfterCommit(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	var claimTTL time.Duration
	f.Payments.BeforeTransition = func(int64) {
		claimTTL = f.Events.TTL("evt_claim")
	}

	payload := f.Verifier.Register(succeededEvent("evt_claim", payment.ExternalIntentID))
	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if claimTTL != redis.EventClaimTTL {
		t.Errorf("expected a short claim of %v while dispatching, got %v", redis.EventClaimTTL, claimTTL)
	}
	if ttl := f.Events.TTL("evt_claim"); ttl != redis.EventTTL {
		t.Errorf("expected retention of %v after commit, got %v", redis.EventTTL, ttl)
	}
}

func TestWebhook_DuplicateDeliveryIsIgnored(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")
	payload := f.Verifier.Register(succeededEvent("evt_dup", payment.ExternalIntentID))

	for i := 0; i < 3; i++ {
		if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
			t.Fatalf("delivery %d failed: %v", i, err)
		}
	}

	if f.Payments.TransitionCallCount != 1 {
		t.Errorf("expected one transition, got %d", f.Payments.TransitionCallCount)
	}
	if n := len(f.Audit.ByAction(domain.AuditPaymentTransition)); n != 1 {
		t.Errorf("expected one transition audit entry, got %d", n)
	}
}

func TestWebhook_DedupeOutageStillProcesses(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")
	f.Events.MarkError = errors.New("redis down")

	payload := f.Verifier.Register(succeededEvent("evt_3", payment.ExternalIntentID))
	for i := 0; i < 2; i++ {
		if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.Payments.GetPayment(payment.ID).Status != domain.PaymentStatusCompleted {
		t.Error("expected completed")
	}
}

func TestWebhook_InvalidSignatureRejectedWithoutChanges(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")
	payload := f.Verifier.Register(succeededEvent("evt_forged", payment.ExternalIntentID))

	err := f.WebhookService.Handle(context.Background(), payload, "t=1,v1=forged", "203.0.113.9")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if f.Payments.GetPayment(payment.ID).Status != domain.PaymentStatusPending {
		t.Error("expected payment to stay pending")
	}
	if f.Payments.TransitionCallCount != 0 {
		t.Error("expected no transitions")
	}
	if f.Events.Seen("evt_forged") {
		t.Error("forged event must not be marked processed")
	}

	entries := f.Audit.ByAction(domain.AuditWebhookSignature)
	if len(entries) != 1 {
		t.Fatalf("expected one signature audit entry, got %d", len(entries))
	}
	if entries[0].Success {
		t.Error("expected signature audit entry to record failure")
	}
	if entries[0].Details["ip"] != "203.0.113.9" {
		t.Errorf("expected source ip in audit details, got %v", entries[0].Details["ip"])
	}
}

func TestWebhook_UnknownIntentIsAcknowledged(t *testing.T) {
	f := NewFixture(true)
	payload := f.Verifier.Register(succeededEvent("evt_unknown", "pi_not_ours"))

	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("expected acknowledgement, got %v", err)
	}
	if f.Payments.TransitionCallCount != 0 {
		t.Error("expected no transitions")
	}
}

func TestWebhook_LateFailureAfterCompletion(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	succeeded := f.Verifier.Register(succeededEvent("evt_ok", payment.ExternalIntentID))
	failed := f.Verifier.Register(domain.ProcessorEvent{
		ID:           "evt_late_fail",
		Type:         "payment_intent.payment_failed",
		Kind:         domain.EventIntentFailed,
		IntentID:     payment.ExternalIntentID,
		ErrorType:    "card_error",
		ErrorMessage: "insufficient funds",
	})

	if err := f.WebhookService.Handle(context.Background(), succeeded, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.WebhookService.Handle(context.Background(), failed, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("expected late failure to be acknowledged, got %v", err)
	}

	stored := f.Payments.GetPayment(payment.ID)
	if stored.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
	if stored.FailureReason != "" {
		t.Errorf("expected no failure reason, got %q", stored.FailureReason)
	}
}

func TestWebhook_FailedRecordsReason(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")

	payload := f.Verifier.Register(domain.ProcessorEvent{
		ID:           "evt_fail",
		Type:         "payment_intent.payment_failed",
		Kind:         domain.EventIntentFailed,
		IntentID:     payment.ExternalIntentID,
		ErrorType:    "card_error",
		ErrorMessage: "Your card was declined.",
	})

	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := f.Payments.GetPayment(payment.ID)
	if stored.Status != domain.PaymentStatusFailed {
		t.Errorf("expected failed, got %s", stored.Status)
	}
	if stored.FailureReason != "card_error: Your card was declined." {
		t.Errorf("unexpected failure reason %q", stored.FailureReason)
	}
}

func TestWebhook_StorageFailureReleasesEvent(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")
	f.Payments.TransitionError = errors.New("connection refused")

	payload := f.Verifier.Register(succeededEvent("evt_retry", payment.ExternalIntentID))
	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err == nil {
		t.Fatal("expected storage error to be returned")
	}
	if f.Events.Seen("evt_retry") {
		t.Fatal("expected event to be released for redelivery")
	}

	f.Payments.TransitionError = nil
	if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if f.Payments.GetPayment(payment.ID).Status != domain.PaymentStatusCompleted {
		t.Error("expected completed after redelivery")
	}
}

func TestWebhook_AuditOnlyEvents(t *testing.T) {
	f := NewFixture(true)
	amount := decimal.RequireFromString("95.00")

	testCases := []struct {
		event  domain.ProcessorEvent
		action string
	}{
		{domain.ProcessorEvent{ID: "evt_d", Kind: domain.EventDisputeCreated, ObjectID: "dp_1", Amount: &amount, Reason: "fraudulent"}, domain.AuditWebhookDispute},
		{domain.ProcessorEvent{ID: "evt_c", Kind: domain.EventCustomerCreated, ObjectID: "cus_1", Email: "lin@example.com"}, domain.AuditWebhookCustomer},
		{domain.ProcessorEvent{ID: "evt_i", Kind: domain.EventInvoiceSucceeded, ObjectID: "in_1"}, domain.AuditWebhookInvoicePaid},
		{domain.ProcessorEvent{ID: "evt_f", Kind: domain.EventInvoiceFailed, ObjectID: "in_2"}, domain.AuditWebhookInvoiceFailure},
	}

	for _, tc := range testCases {
		payload := f.Verifier.Register(tc.event)
		if err := f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1"); err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.action, err)
		}
		if len(f.Audit.ByAction(tc.action)) != 1 {
			t.Errorf("expected one %s audit entry", tc.action)
		}
	}

	if f.Payments.TransitionCallCount != 0 {
		t.Error("audit-only events must not touch payments")
	}
}

func TestWebhook_RacesWithConfirm(t *testing.T) {
	f := NewFixture(true)
	payment := initiate(t, f, "95.00")
	f.Processor.SetIntent(&domain.Intent{
		ID:         payment.ExternalIntentID,
		Status:     domain.IntentStatusSucceeded,
		ReceiptURL: "https://pay.stripe.com/receipts/race",
	})
	payload := f.Verifier.Register(succeededEvent("evt_race", payment.ExternalIntentID))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.PaymentService.Confirm(context.Background(), service.ConfirmRequest{IntentID: payment.ExternalIntentID})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		errs <- f.WebhookService.Handle(context.Background(), payload, ValidSignature, "127.0.0.1")
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	if f.Payments.GetPayment(payment.ID).Status != domain.PaymentStatusCompleted {
		t.Fatal("expected completed")
	}

	changes := 0
	for _, action := range []string{domain.AuditPaymentConfirm, domain.AuditPaymentTransition} {
		for _, e := range f.Audit.ByAction(action) {
			if e.Details["changed"] == true {
				changes++
			}
		}
	}
	if changes != 1 {
		t.Errorf("expected exactly one effective transition, got %d", changes)
	}
}
