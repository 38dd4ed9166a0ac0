package tests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gympay/internal/domain"
	"gympay/internal/repository"
	"gympay/internal/service"
)

// ──────────────────────────────────────────────
// MOCK PAYMENT REPOSITORY
// ──────────────────────────────────────────────

// MockPaymentRepository is an in-memory PaymentRepository with the same
// compare-and-set semantics as the PostgreSQL implementation.
type MockPaymentRepository struct {
	mu       sync.RWMutex
	payments map[int64]*domain.Payment
	nextID   int64

	// Counters for verification
	CreateCallCount     int32
	TransitionCallCount int32
	ConflictCount       int32

	// Error injection
	CreateError     error
	TransitionError error

	// BeforeTransition runs once per Transition call, outside the lock.
	BeforeTransition func(id int64)
}

// NewMockPaymentRepository creates a new mock payment repository.
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[int64]*domain.Payment),
		nextID:   1,
	}
}

// AddPayment stores payment as is. A zero ID is assigned the next free one.
func (m *MockPaymentRepository) AddPayment(payment *domain.Payment) *domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment.ID == 0 {
		payment.ID = m.nextID
	}
	if payment.ID >= m.nextID {
		m.nextID = payment.ID + 1
	}
	copy := *payment
	m.payments[payment.ID] = &copy
	return payment
}

// GetPayment returns a copy of the stored payment for assertions.
func (m *MockPaymentRepository) GetPayment(id int64) *domain.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil
	}
	copy := *p
	return &copy
}

// Count returns the number of stored payments.
func (m *MockPaymentRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payments)
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if payment.ExternalIntentID != "" && p.ExternalIntentID == payment.ExternalIntentID {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	payment.ID = m.nextID
	payment.CreatedAt = now
	payment.UpdatedAt = now
	m.nextID++
	copy := *payment
	m.payments[payment.ID] = &copy
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *p
	return &copy, nil
}

func (m *MockPaymentRepository) GetByExternalIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.ExternalIntentID == intentID {
			copy := *p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockPaymentRepository) ListByEnrollmentID(ctx context.Context, enrollmentID int64) ([]*domain.Payment, error) {
	return m.List(ctx, repository.PaymentFilter{EnrollmentID: enrollmentID, Limit: -1})
}

// List sorts newest first unless Limit is negative, which the enrollment
// listing uses to ask for everything oldest first.
func (m *MockPaymentRepository) List(ctx context.Context, filter repository.PaymentFilter) ([]*domain.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.EnrollmentID > 0 && p.EnrollmentID != filter.EnrollmentID {
			continue
		}
		copy := *p
		result = append(result, &copy)
	}

	if filter.Limit < 0 {
		sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
		return result, nil
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if filter.Offset >= len(result) {
		return []*domain.Payment{}, nil
	}
	result = result[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *MockPaymentRepository) Transition(ctx context.Context, id int64, expected domain.PaymentStatus, update domain.PaymentUpdate) (*domain.Payment, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return nil, m.TransitionError
	}
	if m.BeforeTransition != nil {
		m.BeforeTransition(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != expected {
		atomic.AddInt32(&m.ConflictCount, 1)
		return nil, repository.ErrConflict
	}

	updated := update.Apply(*p)
	updated.UpdatedAt = time.Now().UTC()
	m.payments[id] = &updated

	copy := updated
	return &copy, nil
}

func (m *MockPaymentRepository) DeletePending(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	if p.Status != domain.PaymentStatusPending {
		return repository.ErrConflict
	}
	delete(m.payments, id)
	return nil
}

// SetStatus forces a stored status, simulating a concurrent writer.
func (m *MockPaymentRepository) SetStatus(id int64, status domain.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		p.Status = status
	}
}

// ──────────────────────────────────────────────
// MOCK ENROLLMENT REPOSITORY
// ──────────────────────────────────────────────

// MockEnrollmentRepository is a mock implementation of EnrollmentRepository.
type MockEnrollmentRepository struct {
	mu          sync.RWMutex
	enrollments map[int64]*domain.Enrollment

	GetCallCount int32
}

// NewMockEnrollmentRepository creates a new mock enrollment repository.
func NewMockEnrollmentRepository() *MockEnrollmentRepository {
	return &MockEnrollmentRepository{
		enrollments: make(map[int64]*domain.Enrollment),
	}
}

// AddEnrollment adds an enrollment to the mock repository.
func (m *MockEnrollmentRepository) AddEnrollment(enrollment *domain.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments[enrollment.ID] = enrollment
}

func (m *MockEnrollmentRepository) GetByID(ctx context.Context, id int64) (*domain.Enrollment, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *e
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK ENROLLMENT CACHE
// ──────────────────────────────────────────────

// MockEnrollmentCache implements EnrollmentCacheInterface in memory.
type MockEnrollmentCache struct {
	mu    sync.Mutex
	items map[int64]domain.Enrollment

	Hits   int32
	Misses int32

	GetError error
}

// NewMockEnrollmentCache creates an empty cache.
func NewMockEnrollmentCache() *MockEnrollmentCache {
	return &MockEnrollmentCache{items: make(map[int64]domain.Enrollment)}
}

func (m *MockEnrollmentCache) GetEnrollment(ctx context.Context, id int64) (*domain.Enrollment, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[id]
	if !ok {
		atomic.AddInt32(&m.Misses, 1)
		return nil, nil
	}
	atomic.AddInt32(&m.Hits, 1)
	return &e, nil
}

func (m *MockEnrollmentCache) SetEnrollment(ctx context.Context, enrollment *domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[enrollment.ID] = *enrollment
	return nil
}

func (m *MockEnrollmentCache) InvalidateEnrollment(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// ──────────────────────────────────────────────
// MOCK PROCESSOR
// ──────────────────────────────────────────────

// MockProcessor is a scripted payment processor.
type MockProcessor struct {
	mu      sync.Mutex
	intents map[string]*domain.Intent
	seq     int

	FindOrCreateCustomerCallCount int32
	CreateIntentCallCount         int32
	GetIntentCallCount            int32

	LastIntentRequest domain.IntentRequest

	// Error injection
	CustomerError     error
	CreateIntentError error
	GetIntentError    error
}

// NewMockProcessor creates a new mock processor.
func NewMockProcessor() *MockProcessor {
	return &MockProcessor{intents: make(map[string]*domain.Intent)}
}

// SetIntent scripts what GetIntent returns for intent.ID.
func (m *MockProcessor) SetIntent(intent *domain.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.ID] = intent
}

func (m *MockProcessor) FindOrCreateCustomer(ctx context.Context, email, name string) (string, error) {
	atomic.AddInt32(&m.FindOrCreateCustomerCallCount, 1)
	if m.CustomerError != nil {
		return "", m.CustomerError
	}
	return "cus_" + email, nil
}

func (m *MockProcessor) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	atomic.AddInt32(&m.CreateIntentCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastIntentRequest = req
	if m.CreateIntentError != nil {
		return nil, m.CreateIntentError
	}
	m.seq++
	id := fmt.Sprintf("pi_test_%d", m.seq)
	intent := &domain.Intent{
		ID:           id,
		ClientSecret: id + "_secret_abc",
		Status:       "requires_payment_method",
	}
	m.intents[id] = intent
	copy := *intent
	return &copy, nil
}

func (m *MockProcessor) GetIntent(ctx context.Context, intentID string) (*domain.Intent, error) {
	atomic.AddInt32(&m.GetIntentCallCount, 1)
	if m.GetIntentError != nil {
		return nil, m.GetIntentError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: %s", intentID)
	}
	copy := *intent
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK AUDIT RECORDER
// ──────────────────────────────────────────────

// MockAuditRecorder collects entries synchronously.
type MockAuditRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewMockAuditRecorder creates a new mock audit recorder.
func NewMockAuditRecorder() *MockAuditRecorder {
	return &MockAuditRecorder{}
}

func (m *MockAuditRecorder) Record(ctx context.Context, entry domain.AuditEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// ByAction returns the recorded entries with the given action.
func (m *MockAuditRecorder) ByAction(action string) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded entries.
func (m *MockAuditRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

// MockAuditRepository stores audit entries written by the real AuditService.
type MockAuditRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry

	RecordError error
}

func (m *MockAuditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	if m.RecordError != nil {
		return m.RecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns a snapshot of the stored entries.
func (m *MockAuditRepository) Entries() []*domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditEntry(nil), m.entries...)
}

// ──────────────────────────────────────────────
// MOCK EVENT STORE
// ──────────────────────────────────────────────

// MockEventStore implements EventStoreInterface in memory.
type MockEventStore struct {
	mu   sync.Mutex
	seen map[string]time.Duration

	MarkError error
}

// NewMockEventStore creates an empty event store.
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{seen: make(map[string]time.Duration)}
}

func (m *MockEventStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if m.MarkError != nil {
		return false, m.MarkError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = ttl
	return true, nil
}

func (m *MockEventStore) Commit(ctx context.Context, eventID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = ttl
	return nil
}

func (m *MockEventStore) Release(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

// Seen reports whether eventID is marked as processed.
func (m *MockEventStore) Seen(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[eventID]
	return ok
}

// TTL returns the retention last set for eventID.
func (m *MockEventStore) TTL(eventID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID]
}

// ──────────────────────────────────────────────
// MOCK WEBHOOK VERIFIER
// ──────────────────────────────────────────────

// ValidSignature is the only header MockVerifier accepts.
const ValidSignature = "t=1,v1=valid"

// MockVerifier returns the scripted event registered for a payload.
type MockVerifier struct {
	mu     sync.Mutex
	events map[string]domain.ProcessorEvent
}

// NewMockVerifier creates a new mock verifier.
func NewMockVerifier() *MockVerifier {
	return &MockVerifier{events: make(map[string]domain.ProcessorEvent)}
}

// Register makes payload verify to event and returns the payload.
func (m *MockVerifier) Register(event domain.ProcessorEvent) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload := `{"id":"` + event.ID + `"}`
	m.events[payload] = event
	return []byte(payload)
}

func (m *MockVerifier) Verify(payload []byte, header string) (*domain.ProcessorEvent, error) {
	if header != ValidSignature {
		return nil, fmt.Errorf("%w: signature mismatch", domain.ErrInvalidSignature)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[string(payload)]
	if !ok {
		return &domain.ProcessorEvent{ID: "evt_unregistered", Type: "unknown.event"}, nil
	}
	return &event, nil
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

// Fixture wires the services over the mocks. Processor is nil in mock mode.
type Fixture struct {
	Payments    *MockPaymentRepository
	Enrollments *MockEnrollmentRepository
	Processor   *MockProcessor
	Audit       *MockAuditRecorder
	Events      *MockEventStore
	Verifier    *MockVerifier

	EnrollmentService *service.EnrollmentService
	ReceiptService    *service.ReceiptService
	PaymentService    *service.PaymentService
	WebhookService    *service.WebhookService
	AdminService      *service.AdminService
}

// NewFixture builds a fixture in mock mode, or with a scripted processor when live is true.
func NewFixture(live bool) *Fixture {
	f := &Fixture{
		Payments:    NewMockPaymentRepository(),
		Enrollments: NewMockEnrollmentRepository(),
		Audit:       NewMockAuditRecorder(),
		Events:      NewMockEventStore(),
		Verifier:    NewMockVerifier(),
	}

	f.Enrollments.AddEnrollment(&domain.Enrollment{
		ID:          7,
		StudentName: "Maya Chen",
		ParentName:  "Lin Chen",
		ParentEmail: "lin@example.com",
	})

	logger := nopLogger()
	notifications := service.NewNotificationService(logger)

	var processor service.Processor
	if live {
		f.Processor = NewMockProcessor()
		processor = f.Processor
	}

	f.EnrollmentService = service.NewEnrollmentService(f.Enrollments, nil, logger)
	f.ReceiptService = service.NewReceiptService(f.Payments, f.EnrollmentService)
	f.PaymentService = service.NewPaymentService(f.Payments, f.EnrollmentService, processor,
		f.ReceiptService, notifications, f.Audit, logger, "usd")
	f.WebhookService = service.NewWebhookService(f.Payments, f.Verifier, f.Events, processor,
		notifications, f.Audit, logger)
	f.AdminService = service.NewAdminService(f.Payments, f.EnrollmentService, notifications, f.Audit, logger)

	return f
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
