// Package processor talks to Stripe on behalf of the payment services.
package processor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gympay/internal/domain"
)

const expandChargeFee = "latest_charge.balance_transaction"

// Config holds client limits for outbound calls.
type Config struct {
	SecretKey         string
	Timeout           time.Duration
	MaxNetworkRetries int64
	RequestsPerSecond float64
	Burst             int
}

// Stripe is the live payment processor.
type Stripe struct {
	api     *client.API
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewStripe creates a Stripe client with bounded retries, a per-call timeout
// and a client-side request throttle.
func NewStripe(cfg Config, logger *zap.Logger) *Stripe {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendConfig := func() *stripe.BackendConfig {
		return &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
			LeveledLogger:     logger.Named("stripe").Sugar(),
		}
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig()),
	})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Stripe{
		api:     api,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// call bounds ctx with the configured timeout and waits for a throttle token.
func (s *Stripe) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	if err := s.limiter.Wait(callCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("stripe throttle: %w", err)
	}
	return callCtx, cancel, nil
}

// FindOrCreateCustomer returns the customer bound to email, creating one only
// when the search finds nothing.
func (s *Stripe) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	callCtx, cancel, err := s.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = callCtx
	params.Limit = stripe.Int64(1)

	iter := s.api.Customers.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search customer: %w", err)
	}

	createCtx, cancelCreate, err := s.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancelCreate()

	createParams := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	if name != "" {
		createParams.Name = stripe.String(name)
	}
	createParams.Context = createCtx

	customer, err := s.api.Customers.New(createParams)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	s.logger.Info("stripe customer created", zap.String("customer_id", customer.ID))
	return customer.ID, nil
}

// CreateIntent creates a payment intent for req.
func (s *Stripe) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	callCtx, cancel, err := s.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = callCtx

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return toIntent(pi), nil
}

// GetIntent re-fetches an intent with its latest charge expanded.
func (s *Stripe) GetIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	callCtx, cancel, err := s.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.AddExpand(expandChargeFee)
	params.Context = callCtx

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *domain.Intent {
	intent := &domain.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}

	if charge := pi.LatestCharge; charge != nil {
		intent.ReceiptURL = charge.ReceiptURL
		if bt := charge.BalanceTransaction; bt != nil && bt.Fee > 0 {
			fee := domain.FromMinorUnits(bt.Fee)
			intent.ProcessingFee = &fee
		}
	}
	if perr := pi.LastPaymentError; perr != nil {
		intent.ErrorType = string(perr.Type)
		intent.ErrorMessage = perr.Msg
	}

	return intent
}

func minorToDecimal(cents int64) *decimal.Decimal {
	if cents == 0 {
		return nil
	}
	d := domain.FromMinorUnits(cents)
	return &d
}
