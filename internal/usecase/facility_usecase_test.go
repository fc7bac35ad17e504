package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
	"github.com/iho/creditledger/internal/usecase"
	"github.com/iho/creditledger/internal/usecase/mocks"
)

const (
	testPrice    = domain.PriceOfOneBTC(5_000_000) // $50,000 per BTC
	testFacility = domain.UsdCents(100_000)        // $1,000
	testSats     = domain.Satoshis(2_800_000)      // worth $1,400 at testPrice
)

func testTerms() domain.TermValues {
	return domain.TermValues{
		AnnualRate:           domain.NewAnnualRatePct(12),
		DurationMonths:       12,
		AccrualCycleInterval: domain.IntervalEndOfMonth,
		AccrualInterval:      domain.IntervalEndOfDay,
		OneTimeFeeRate:       domain.NewOneTimeFeeRatePct(1),
		LiquidationCVL:       domain.NewCVLPct(105),
		MarginCallCVL:        domain.NewCVLPct(125),
		InitialCVL:           domain.NewCVLPct(140),
	}
}

type fixture struct {
	store  *mocks.InMemoryEventStore
	ledger *mocks.RecordingLedgerService
	clock  *mocks.FixedClock
	uc     *usecase.CreditFacilityUseCase
}

func newFixture(now time.Time) *fixture {
	store := mocks.NewInMemoryEventStore()
	ledger := mocks.NewRecordingLedgerService()
	clock := mocks.NewFixedClock(now)
	uc := usecase.NewCreditFacilityUseCase(
		store,
		ledger,
		&mocks.StaticPriceService{Price: testPrice},
		&mocks.SequenceIDGenerator{},
		clock,
		nil,
	)
	return &fixture{store: store, ledger: ledger, clock: clock, uc: uc}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestCreditFacilityUseCase_CreateFacility(t *testing.T) {
	tests := []struct {
		name        string
		terms       func() domain.TermValues
		amount      domain.UsdCents
		expectError error
	}{
		{
			name:   "valid facility",
			terms:  testTerms,
			amount: testFacility,
		},
		{
			name: "invalid cvl ordering",
			terms: func() domain.TermValues {
				tv := testTerms()
				tv.LiquidationCVL = domain.NewCVLPct(130)
				return tv
			},
			amount:      testFacility,
			expectError: domain.ErrInvalidCVLOrdering,
		},
		{
			name:        "zero amount",
			terms:       testTerms,
			amount:      0,
			expectError: domain.ErrZeroAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newFixture(mustTime("2024-01-01T00:00:00Z"))

			f, err := fix.uc.CreateFacility(context.Background(), usecase.CreateFacilityInput{
				CustomerID: "cust-1",
				Terms:      tt.terms(),
				Amount:     tt.amount,
				SubjectID:  "admin",
			})

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Fatalf("expected error %v, got %v", tt.expectError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.ID == "" {
				t.Error("expected generated facility id")
			}
			if got := len(fix.store.Events(f.ID)); got != 1 {
				t.Errorf("expected 1 persisted event, got %d", got)
			}
			if status := f.Status(fix.clock.Now()); status != domain.StatusPendingCollateralization {
				t.Errorf("expected pending_collateralization, got %s", status)
			}
		})
	}
}

func TestCreditFacilityUseCase_GetFacility_NotFound(t *testing.T) {
	fix := newFixture(mustTime("2024-01-01T00:00:00Z"))

	_, err := fix.uc.GetFacility(context.Background(), "missing")
	if !errors.Is(err, usecase.ErrFacilityNotFound) {
		t.Fatalf("expected ErrFacilityNotFound, got %v", err)
	}
}

func TestCreditFacilityUseCase_Activate_Preconditions(t *testing.T) {
	tests := []struct {
		name        string
		prepare     func(t *testing.T, fix *fixture, id string)
		expectError error
	}{
		{
			name:        "before approval",
			prepare:     func(t *testing.T, fix *fixture, id string) {},
			expectError: domain.ErrApprovalInProgress,
		},
		{
			name: "approval denied",
			prepare: func(t *testing.T, fix *fixture, id string) {
				if _, err := fix.uc.ConcludeApproval(context.Background(), id, false, "admin"); err != nil {
					t.Fatal(err)
				}
			},
			expectError: domain.ErrApprovalDenied,
		},
		{
			name: "approved without collateral",
			prepare: func(t *testing.T, fix *fixture, id string) {
				if _, err := fix.uc.ConcludeApproval(context.Background(), id, true, "admin"); err != nil {
					t.Fatal(err)
				}
			},
			expectError: domain.ErrNoCollateral,
		},
		{
			name: "collateral below margin limit",
			prepare: func(t *testing.T, fix *fixture, id string) {
				if _, err := fix.uc.ConcludeApproval(context.Background(), id, true, "admin"); err != nil {
					t.Fatal(err)
				}
				// 2,000,000 sats is $1,000, a CVL of exactly 100%.
				if _, err := fix.uc.UpdateCollateral(context.Background(), id, 2_000_000, "admin"); err != nil {
					t.Fatal(err)
				}
			},
			expectError: domain.ErrBelowMarginLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fix := newFixture(mustTime("2024-01-15T00:00:00Z"))
			f, err := fix.uc.CreateFacility(context.Background(), usecase.CreateFacilityInput{
				CustomerID: "cust-1",
				Terms:      testTerms(),
				Amount:     testFacility,
				SubjectID:  "admin",
			})
			if err != nil {
				t.Fatal(err)
			}

			tt.prepare(t, fix, f.ID)

			_, err = fix.uc.Activate(context.Background(), f.ID, "admin")
			if !errors.Is(err, tt.expectError) {
				t.Fatalf("expected error %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestCreditFacilityUseCase_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	fix := newFixture(mustTime("2024-01-15T00:00:00Z"))

	f, err := fix.uc.CreateFacility(ctx, usecase.CreateFacilityInput{
		CustomerID: "cust-1",
		Terms:      testTerms(),
		Amount:     testFacility,
		SubjectID:  "admin",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := f.ID

	if _, err := fix.uc.ConcludeApproval(ctx, id, true, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.UpdateCollateral(ctx, id, testSats, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.Activate(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}

	// Re-activating is a no-op, not an error, and posts nothing new.
	postingsBefore := len(fix.ledger.Postings())
	if _, err := fix.uc.Activate(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}
	if got := len(fix.ledger.Postings()); got != postingsBefore {
		t.Errorf("idempotent activate posted %d extra transactions", got-postingsBefore)
	}

	if _, err := fix.uc.InitiateDisbursal(ctx, id, 60_000, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.ConcludeDisbursal(ctx, id, 0, true, "admin"); err != nil {
		t.Fatal(err)
	}

	got, err := fix.uc.GetFacility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	summary := got.BalanceSummary()
	if summary.DisbursedOutstanding != 60_000 {
		t.Errorf("expected 60000 outstanding, got %d", summary.DisbursedOutstanding)
	}

	// Principal falls due at maturity; settle and close past it.
	fix.clock.Set(mustTime("2025-01-16T00:00:00Z"))
	if _, err := fix.uc.RecordRepayment(ctx, id, 60_000, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.Complete(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}

	got, err = fix.uc.GetFacility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if status := got.Status(fix.clock.Now()); status != domain.StatusClosed {
		t.Errorf("expected closed, got %s", status)
	}
	if !got.Collateral().IsZero() {
		t.Errorf("expected collateral returned, got %d sats", got.Collateral())
	}

	kinds := make([]string, 0)
	for _, p := range fix.ledger.Postings() {
		kinds = append(kinds, p.Kind)
	}
	expected := []string{"collateral", "activation", "disbursal", "repayment", "completion"}
	if len(kinds) != len(expected) {
		t.Fatalf("expected postings %v, got %v", expected, kinds)
	}
	for i := range expected {
		if kinds[i] != expected[i] {
			t.Errorf("posting %d: expected %s, got %s", i, expected[i], kinds[i])
		}
	}
}

func TestCreditFacilityUseCase_InterestAccrualCycle(t *testing.T) {
	ctx := context.Background()
	fix := newFixture(mustTime("2024-01-15T00:00:00Z"))

	f, err := fix.uc.CreateFacility(ctx, usecase.CreateFacilityInput{
		CustomerID: "cust-1",
		Terms:      testTerms(),
		Amount:     testFacility,
		SubjectID:  "admin",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := f.ID

	if _, err := fix.uc.ConcludeApproval(ctx, id, true, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.UpdateCollateral(ctx, id, testSats, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.Activate(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.InitiateDisbursal(ctx, id, 60_000, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := fix.uc.ConcludeDisbursal(ctx, id, 0, true, "admin"); err != nil {
		t.Fatal(err)
	}

	// Concluding the cycle before every daily period has accrued is rejected.
	fix.clock.Set(mustTime("2024-02-01T00:00:00Z"))
	if _, err := fix.uc.RecordInterestAccrualCycle(ctx, id, "scheduler"); !errors.Is(err, domain.ErrInterestAccrualNotCompletedYet) {
		t.Fatalf("expected ErrInterestAccrualNotCompletedYet, got %v", err)
	}

	// Jan 15 through Jan 31 is 17 daily accrual periods.
	for i := 0; i < 17; i++ {
		if _, err := fix.uc.RecordInterestAccrual(ctx, id, "scheduler"); err != nil {
			t.Fatalf("accrual %d: %v", i, err)
		}
	}

	if _, err := fix.uc.RecordInterestAccrualCycle(ctx, id, "scheduler"); err != nil {
		t.Fatal(err)
	}

	got, err := fix.uc.GetFacility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	// $600 at 12% accrues 19.7 cents per day, rounded up to 20, for 17 days.
	if interest := got.BalanceSummary().InterestOutstanding; interest != 340 {
		t.Errorf("expected 340 cents interest outstanding, got %d", interest)
	}

	if _, err := fix.uc.StartInterestAccrualCycle(ctx, id, "scheduler"); err != nil {
		t.Fatal(err)
	}
	got, err = fix.uc.GetFacility(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(got.AccrualCycles()); n != 2 {
		t.Errorf("expected 2 accrual cycles, got %d", n)
	}

	var sawInterest bool
	for _, p := range fix.ledger.Postings() {
		if p.Kind == "interest" {
			sawInterest = true
		}
	}
	if !sawInterest {
		t.Error("expected an interest posting")
	}
}

func TestCreditFacilityUseCase_VersionConflictRetries(t *testing.T) {
	ctx := context.Background()
	fix := newFixture(mustTime("2024-01-15T00:00:00Z"))

	f, err := fix.uc.CreateFacility(ctx, usecase.CreateFacilityInput{
		CustomerID: "cust-1",
		Terms:      testTerms(),
		Amount:     testFacility,
		SubjectID:  "admin",
	})
	if err != nil {
		t.Fatal(err)
	}

	var appends int
	fix.store.AppendFunc = func(ctx context.Context, facilityID string, expectedVersion int, events []domain.FacilityEvent) error {
		appends++
		if appends == 1 {
			return usecase.ErrVersionConflict
		}
		return nil
	}

	if _, err := fix.uc.ConcludeApproval(ctx, f.ID, true, "admin"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if appends != 2 {
		t.Errorf("expected 2 append attempts, got %d", appends)
	}
}

func TestCreditFacilityUseCase_PriceUnavailable(t *testing.T) {
	ctx := context.Background()
	uc := usecase.NewCreditFacilityUseCase(
		mocks.NewInMemoryEventStore(),
		mocks.NewRecordingLedgerService(),
		&mocks.StaticPriceService{Err: usecase.ErrPriceUnavailable},
		&mocks.SequenceIDGenerator{},
		mocks.NewFixedClock(mustTime("2024-01-15T00:00:00Z")),
		nil,
	)

	_, err := uc.Activate(ctx, "fac-1", "admin")
	if !errors.Is(err, usecase.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

// steppingClock advances on every read, so any command reading the clock
// twice produces two different timestamps.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestCreditFacilityUseCase_CommandTimestampsAgree(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewInMemoryEventStore()
	uc := usecase.NewCreditFacilityUseCase(
		store,
		mocks.NewRecordingLedgerService(),
		&mocks.StaticPriceService{Price: testPrice},
		&mocks.SequenceIDGenerator{},
		&steppingClock{now: mustTime("2024-01-15T00:00:00Z")},
		nil,
	)

	f, err := uc.CreateFacility(ctx, usecase.CreateFacilityInput{
		CustomerID: "cust-1",
		Terms:      testTerms(),
		Amount:     testFacility,
		SubjectID:  "admin",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := f.ID

	if _, err := uc.ConcludeApproval(ctx, id, true, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.UpdateCollateral(ctx, id, testSats, "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := uc.Activate(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}

	var activated *domain.FacilityActivated
	for _, e := range store.Events(id) {
		if ev, ok := e.(domain.FacilityActivated); ok {
			activated = &ev
		}
	}
	if activated == nil {
		t.Fatal("expected a FacilityActivated event")
	}
	if !activated.ActivatedAt.Equal(activated.Audit.RecordedAt) {
		t.Errorf("activation time %s disagrees with audit stamp %s",
			activated.ActivatedAt, activated.Audit.RecordedAt)
	}
}

// failingCollateralLedger rejects collateral postings, everything else records.
type failingCollateralLedger struct {
	*mocks.RecordingLedgerService
}

func (f *failingCollateralLedger) PostCollateralUpdate(ctx context.Context, facilityID string, data domain.CollateralPostingData) (time.Time, error) {
	return time.Time{}, errors.New("ledger unavailable")
}

func TestCreditFacilityUseCase_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = registry
	defer func() { prometheus.DefaultRegisterer = orig }()
	m := metrics.New()

	ctx := context.Background()
	newUC := func(ledger usecase.LedgerService) *usecase.CreditFacilityUseCase {
		return usecase.NewCreditFacilityUseCase(
			mocks.NewInMemoryEventStore(),
			ledger,
			&mocks.StaticPriceService{Price: testPrice},
			&mocks.SequenceIDGenerator{},
			mocks.NewFixedClock(mustTime("2024-01-15T00:00:00Z")),
			nil,
			usecase.WithMetrics(m),
		)
	}
	create := func(t *testing.T, uc *usecase.CreditFacilityUseCase) string {
		t.Helper()
		f, err := uc.CreateFacility(ctx, usecase.CreateFacilityInput{
			CustomerID: "cust-1",
			Terms:      testTerms(),
			Amount:     testFacility,
			SubjectID:  "admin",
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := uc.ConcludeApproval(ctx, f.ID, true, "admin"); err != nil {
			t.Fatal(err)
		}
		return f.ID
	}

	uc := newUC(mocks.NewRecordingLedgerService())
	id := create(t, uc)
	if _, err := uc.UpdateCollateral(ctx, id, testSats, "admin"); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.LedgerPostings.WithLabelValues("collateral_update")); got != 1 {
		t.Errorf("expected 1 collateral_update posting, got %v", got)
	}
	if got := testutil.ToFloat64(m.CollateralizationChanges.WithLabelValues("fully_collateralized")); got != 1 {
		t.Errorf("expected 1 fully_collateralized transition, got %v", got)
	}

	failing := newUC(&failingCollateralLedger{mocks.NewRecordingLedgerService()})
	id = create(t, failing)
	if _, err := failing.UpdateCollateral(ctx, id, testSats, "admin"); err == nil {
		t.Fatal("expected ledger posting error")
	}

	if got := testutil.ToFloat64(m.LedgerErrors.WithLabelValues("collateral_update")); got != 1 {
		t.Errorf("expected 1 collateral_update ledger error, got %v", got)
	}
}
