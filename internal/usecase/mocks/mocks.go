package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

// InMemoryEventStore is an in-memory mock implementation of EventStore with
// optimistic concurrency semantics matching the postgres adapter.
type InMemoryEventStore struct {
	mu   sync.RWMutex
	logs map[string][]domain.FacilityEvent

	LoadFunc   func(ctx context.Context, facilityID string) ([]domain.FacilityEvent, error)
	AppendFunc func(ctx context.Context, facilityID string, expectedVersion int, events []domain.FacilityEvent) error
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		logs: make(map[string][]domain.FacilityEvent),
	}
}

func (m *InMemoryEventStore) Load(ctx context.Context, facilityID string) ([]domain.FacilityEvent, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, facilityID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.logs[facilityID]
	out := make([]domain.FacilityEvent, len(events))
	copy(out, events)
	return out, nil
}

func (m *InMemoryEventStore) Append(ctx context.Context, facilityID string, expectedVersion int, events []domain.FacilityEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, facilityID, expectedVersion, events)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.logs[facilityID]) != expectedVersion {
		return usecase.ErrVersionConflict
	}
	m.logs[facilityID] = append(m.logs[facilityID], events...)
	return nil
}

func (m *InMemoryEventStore) ListFacilityIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.logs))
	for id := range m.logs {
		ids = append(ids, id)
	}
	return ids, nil
}

// Seed installs an already-persisted event log for a facility.
func (m *InMemoryEventStore) Seed(facilityID string, events []domain.FacilityEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[facilityID] = append([]domain.FacilityEvent(nil), events...)
}

// Events returns the current log for a facility.
func (m *InMemoryEventStore) Events(facilityID string) []domain.FacilityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.FacilityEvent(nil), m.logs[facilityID]...)
}

// Posting records one ledger call observed by RecordingLedgerService.
type Posting struct {
	Kind       string
	FacilityID string
	TxID       string
}

// RecordingLedgerService records postings instead of talking to a ledger.
type RecordingLedgerService struct {
	mu       sync.Mutex
	postings []Posting

	PostActivationFunc func(ctx context.Context, facilityID string, data domain.ActivationPostingData) (time.Time, error)
	PostRepaymentFunc  func(ctx context.Context, facilityID string, data domain.RepaymentPostingData) (time.Time, error)
}

func NewRecordingLedgerService() *RecordingLedgerService {
	return &RecordingLedgerService{}
}

func (m *RecordingLedgerService) record(kind, facilityID, txID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = append(m.postings, Posting{Kind: kind, FacilityID: facilityID, TxID: txID})
	return time.Now().UTC(), nil
}

func (m *RecordingLedgerService) PostActivation(ctx context.Context, facilityID string, data domain.ActivationPostingData) (time.Time, error) {
	if m.PostActivationFunc != nil {
		return m.PostActivationFunc(ctx, facilityID, data)
	}
	return m.record("activation", facilityID, data.TxID)
}

func (m *RecordingLedgerService) PostDisbursal(ctx context.Context, facilityID string, data domain.DisbursalPostingData) (time.Time, error) {
	return m.record("disbursal", facilityID, data.TxID)
}

func (m *RecordingLedgerService) PostInterestAccrualCycle(ctx context.Context, facilityID string, data domain.InterestPostingData) (time.Time, error) {
	return m.record("interest", facilityID, data.TxID)
}

func (m *RecordingLedgerService) PostCollateralUpdate(ctx context.Context, facilityID string, data domain.CollateralPostingData) (time.Time, error) {
	return m.record("collateral", facilityID, data.TxID)
}

func (m *RecordingLedgerService) PostRepayment(ctx context.Context, facilityID string, data domain.RepaymentPostingData) (time.Time, error) {
	if m.PostRepaymentFunc != nil {
		return m.PostRepaymentFunc(ctx, facilityID, data)
	}
	return m.record("repayment", facilityID, data.TxID)
}

func (m *RecordingLedgerService) PostCompletion(ctx context.Context, facilityID string, data domain.CompletionPostingData) (time.Time, error) {
	return m.record("completion", facilityID, data.TxID)
}

func (m *RecordingLedgerService) GetBalance(ctx context.Context, accountID string) (usecase.LedgerBalance, error) {
	return usecase.LedgerBalance{AccountID: accountID}, nil
}

// Postings returns every recorded posting in order.
func (m *RecordingLedgerService) Postings() []Posting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Posting(nil), m.postings...)
}

// StaticPriceService returns a fixed BTC price.
type StaticPriceService struct {
	Price domain.PriceOfOneBTC
	Err   error
}

func (m *StaticPriceService) BTCPrice(ctx context.Context) (domain.PriceOfOneBTC, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Price, nil
}

// SequenceIDGenerator hands out deterministic sequential ids.
type SequenceIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (m *SequenceIDGenerator) Generate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("id-%04d", m.n)
}

// FixedClock returns a settable fixed time.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (m *FixedClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock.
func (m *FixedClock) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
