package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
)

const conflictRetries = 3

// CreditFacilityUseCase orchestrates facility commands: load the event log,
// fold it, apply the command, append the new events under optimistic
// concurrency, then hand the resulting posting instruction to the ledger.
//
// Event persistence and ledger posting are two systems; the contract is
// persist-then-post with deterministic tx ids, so a crash between the two is
// healed by retrying the posting (idempotent at the ledger) rather than by a
// cross-system transaction.
type CreditFacilityUseCase struct {
	store         EventStore
	ledger        LedgerService
	price         PriceService
	idGen         IDGenerator
	clock         Clock
	upgradeBuffer *domain.CVLPct
	metrics       *metrics.Metrics
}

// Option configures optional usecase collaborators.
type Option func(*CreditFacilityUseCase)

// WithMetrics records ledger posting outcomes and collateralization state
// transitions on the service metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(uc *CreditFacilityUseCase) { uc.metrics = m }
}

// NewCreditFacilityUseCase creates a new CreditFacilityUseCase. upgradeBuffer
// may be nil to disable collateralization upgrade damping.
func NewCreditFacilityUseCase(
	store EventStore,
	ledger LedgerService,
	price PriceService,
	idGen IDGenerator,
	clock Clock,
	upgradeBuffer *domain.CVLPct,
	opts ...Option,
) *CreditFacilityUseCase {
	uc := &CreditFacilityUseCase{
		store:         store,
		ledger:        ledger,
		price:         price,
		idGen:         idGen,
		clock:         clock,
		upgradeBuffer: upgradeBuffer,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// CreateFacilityInput represents input for initiating a facility.
type CreateFacilityInput struct {
	CustomerID string
	Terms      domain.TermValues
	Amount     domain.UsdCents
	SubjectID  string
}

// CreateFacility initiates a facility in PendingCollateralization, allocating
// its ledger account bundle.
func (uc *CreditFacilityUseCase) CreateFacility(ctx context.Context, input CreateFacilityInput) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	f, err := domain.NewCreditFacility(domain.NewFacilityParams{
		ID:         uc.idGen.Generate(),
		CustomerID: input.CustomerID,
		Terms:      input.Terms,
		Amount:     input.Amount,
		Accounts: domain.FacilityAccountIDs{
			CollateralAccountID:          uc.idGen.Generate(),
			FacilityAccountID:            uc.idGen.Generate(),
			DisbursedReceivableAccountID: uc.idGen.Generate(),
			InterestReceivableAccountID:  uc.idGen.Generate(),
			InterestIncomeAccountID:      uc.idGen.Generate(),
			FeeIncomeAccountID:           uc.idGen.Generate(),
		},
		Audit: domain.AuditInfo{SubjectID: input.SubjectID, RecordedAt: now},
	})
	if err != nil {
		return nil, err
	}

	if err := uc.store.Append(ctx, f.ID, 0, f.NewEvents()); err != nil {
		return nil, err
	}
	f.MarkPersisted()
	return f, nil
}

// GetFacility loads and folds a facility's event log.
func (uc *CreditFacilityUseCase) GetFacility(ctx context.Context, facilityID string) (*domain.CreditFacility, error) {
	events, err := uc.store.Load(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrFacilityNotFound
	}
	return domain.CreditFacilityFromEvents(events), nil
}

// ListFacilityIDs lists every facility id with at least one event.
func (uc *CreditFacilityUseCase) ListFacilityIDs(ctx context.Context) ([]string, error) {
	return uc.store.ListFacilityIDs(ctx)
}

// ConcludeApproval records the approval process outcome.
func (uc *CreditFacilityUseCase) ConcludeApproval(ctx context.Context, facilityID string, approved bool, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		f.ApprovalProcessConcluded(approved, uc.audit(subjectID, now))
		return nil, nil
	})
}

// Activate activates an approved, collateralized facility and posts the
// activation transaction (facility amount plus structuring fee).
func (uc *CreditFacilityUseCase) Activate(ctx context.Context, facilityID string, subjectID string) (*domain.CreditFacility, error) {
	price, err := uc.price.BTCPrice(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		res, err := f.Activate(now, price, uc.idGen.Generate(), uc.idGen.Generate(), uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		if res.Ignored {
			return nil, nil
		}
		data := *res.Value
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostActivation(ctx, f.ID, data)
			uc.observeLedger("activation", err)
			return err
		}, nil
	})
}

// InitiateDisbursal opens a drawdown request.
func (uc *CreditFacilityUseCase) InitiateDisbursal(ctx context.Context, facilityID string, amount domain.UsdCents, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		_, err := f.InitiateDisbursal(uc.idGen.Generate(), amount, now, uc.audit(subjectID, now))
		return nil, err
	})
}

// ConcludeDisbursal settles or cancels a disbursal by index, posting the
// settlement transaction when settled.
func (uc *CreditFacilityUseCase) ConcludeDisbursal(ctx context.Context, facilityID string, idx int, settled bool, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		var txID *string
		if settled {
			id := uc.idGen.Generate()
			txID = &id
		}
		res, err := f.DisbursalConcluded(idx, txID, now, uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		if res.Ignored || res.Value == nil {
			return nil, nil
		}
		data := *res.Value
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostDisbursal(ctx, f.ID, data)
			uc.observeLedger("disbursal", err)
			return err
		}, nil
	})
}

// StartInterestAccrualCycle opens the next accrual cycle if one fits before
// maturity.
func (uc *CreditFacilityUseCase) StartInterestAccrualCycle(ctx context.Context, facilityID string, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		_, err := f.StartInterestAccrualCycle(uc.idGen.Generate(), now, uc.audit(subjectID, now))
		return nil, err
	})
}

// RecordInterestAccrual accrues the next due period of the in-progress cycle.
func (uc *CreditFacilityUseCase) RecordInterestAccrual(ctx context.Context, facilityID string, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		_, err := f.RecordInterestAccrual(now, uc.audit(subjectID, now))
		return nil, err
	})
}

// RecordInterestAccrualCycle concludes the in-progress cycle and posts its
// interest obligation. Zero-interest cycles conclude without a posting.
func (uc *CreditFacilityUseCase) RecordInterestAccrualCycle(ctx context.Context, facilityID string, subjectID string) (*domain.CreditFacility, error) {
	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		data, err := f.RecordInterestAccrualCycle(uc.idGen.Generate(), uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		if data.Interest.IsZero() {
			return nil, nil
		}
		posting := *data
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostInterestAccrualCycle(ctx, f.ID, posting)
			uc.observeLedger("interest_accrual_cycle", err)
			return err
		}, nil
	})
}

// UpdateCollateral sets the facility's collateral balance and posts the
// collateral movement.
func (uc *CreditFacilityUseCase) UpdateCollateral(ctx context.Context, facilityID string, collateral domain.Satoshis, subjectID string) (*domain.CreditFacility, error) {
	price, err := uc.price.BTCPrice(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		data, err := f.RecordCollateralUpdate(uc.idGen.Generate(), collateral, price, uc.upgradeBuffer, uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		posting := *data
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostCollateralUpdate(ctx, f.ID, posting)
			uc.observeLedger("collateral_update", err)
			return err
		}, nil
	})
}

// RecordRepayment allocates a payment interest-first and posts it.
func (uc *CreditFacilityUseCase) RecordRepayment(ctx context.Context, facilityID string, amount domain.UsdCents, subjectID string) (*domain.CreditFacility, error) {
	price, err := uc.price.BTCPrice(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		data, err := f.InitiateRepayment(uc.idGen.Generate(), uc.idGen.Generate(), amount, price, uc.upgradeBuffer, now, uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		posting := *data
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostRepayment(ctx, f.ID, posting)
			uc.observeLedger("repayment", err)
			return err
		}, nil
	})
}

// Complete closes a fully repaid facility and posts the collateral return.
func (uc *CreditFacilityUseCase) Complete(ctx context.Context, facilityID string, subjectID string) (*domain.CreditFacility, error) {
	price, err := uc.price.BTCPrice(ctx)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	return uc.mutate(ctx, facilityID, func(f *domain.CreditFacility) (postFn, error) {
		res, err := f.Complete(uc.idGen.Generate(), price, uc.upgradeBuffer, now, uc.audit(subjectID, now))
		if err != nil {
			return nil, err
		}
		if res.Ignored {
			return nil, nil
		}
		data := *res.Value
		return func(ctx context.Context) error {
			_, err := uc.ledger.PostCompletion(ctx, f.ID, data)
			uc.observeLedger("completion", err)
			return err
		}, nil
	})
}

// postFn posts the ledger transaction for a just-persisted command.
type postFn func(ctx context.Context) error

// mutate runs one command against the facility: load, fold, apply, append.
// A version conflict means another command won the race; the aggregate is
// replayable, so the whole command retries from a fresh load.
func (uc *CreditFacilityUseCase) mutate(ctx context.Context, facilityID string, fn func(*domain.CreditFacility) (postFn, error)) (*domain.CreditFacility, error) {
	var (
		facility *domain.CreditFacility
		post     postFn
	)

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), conflictRetries), ctx)
	err := backoff.Retry(func() error {
		events, err := uc.store.Load(ctx, facilityID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if len(events) == 0 {
			return backoff.Permanent(ErrFacilityNotFound)
		}

		f := domain.CreditFacilityFromEvents(events)
		p, err := fn(f)
		if err != nil {
			return backoff.Permanent(err)
		}

		newEvents := f.NewEvents()
		if len(newEvents) > 0 {
			if err := uc.store.Append(ctx, facilityID, f.Version(), newEvents); err != nil {
				if errors.Is(err, ErrVersionConflict) {
					return err
				}
				return backoff.Permanent(err)
			}
			f.MarkPersisted()
			uc.observeEvents(newEvents)
		}

		facility = f
		post = p
		return nil
	}, b)
	if err != nil {
		return nil, err
	}

	if post != nil {
		if err := post(ctx); err != nil {
			return facility, err
		}
	}
	return facility, nil
}

// audit stamps an event with the command's single clock reading, so every
// timestamp inside one command agrees.
func (uc *CreditFacilityUseCase) audit(subjectID string, now time.Time) domain.AuditInfo {
	return domain.AuditInfo{SubjectID: subjectID, RecordedAt: now}
}

func (uc *CreditFacilityUseCase) observeLedger(kind string, err error) {
	if uc.metrics == nil {
		return
	}
	if err != nil {
		uc.metrics.LedgerErrors.WithLabelValues(kind).Inc()
		return
	}
	uc.metrics.LedgerPostings.WithLabelValues(kind).Inc()
}

// observeEvents counts collateralization state transitions among the events
// just persisted.
func (uc *CreditFacilityUseCase) observeEvents(events []domain.FacilityEvent) {
	if uc.metrics == nil {
		return
	}
	for _, e := range events {
		if ch, ok := e.(domain.CollateralizationChanged); ok {
			uc.metrics.CollateralizationChanges.WithLabelValues(string(ch.State)).Inc()
		}
	}
}

// realClock reads the wall clock.
type realClock struct{}

// NewClock returns a Clock backed by time.Now in UTC.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }
