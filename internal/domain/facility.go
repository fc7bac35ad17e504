package domain

import "time"

// CreditFacilityStatus is derived from the event log, never stored.
type CreditFacilityStatus string

const (
	StatusPendingCollateralization CreditFacilityStatus = "pending_collateralization"
	StatusPendingApproval          CreditFacilityStatus = "pending_approval"
	StatusActive                   CreditFacilityStatus = "active"
	StatusMatured                  CreditFacilityStatus = "matured"
	StatusClosed                   CreditFacilityStatus = "closed"
)

// FacilityBalanceSummary is the aggregate's own view of its balances, folded
// from the event log.
type FacilityBalanceSummary struct {
	Collateral           Satoshis
	Facility             UsdCents
	FacilityRemaining    UsdCents
	TotalDisbursed       UsdCents
	DisbursedOutstanding UsdCents
	InterestAccrued      UsdCents
	InterestOutstanding  UsdCents
}

// TotalOutstanding is every receivable currently owed on the facility.
func (s FacilityBalanceSummary) TotalOutstanding() UsdCents {
	return s.DisbursedOutstanding.Add(s.InterestOutstanding)
}

// InterestAccrualData is the outcome of recording one accrual period.
type InterestAccrualData struct {
	CycleIdx int
	Amount   UsdCents
	Period   Period
}

// CreditFacility is the root aggregate governing a secured lending facility
// from creation through collateralization, activation, disbursal, interest
// accrual, repayment and closure.
//
// Every field below the event log is a pure fold over it: state changes only
// by pushing a new event through apply. Commands validate against current
// state, emit events, and hand back posting instructions for the external
// ledger.
type CreditFacility struct {
	ID         string
	CustomerID string
	Terms      TermValues
	Accounts   FacilityAccountIDs
	Amount     UsdCents

	ActivatedAt *time.Time
	MaturesAt   *time.Time
	DefaultsAt  *time.Time

	events    []FacilityEvent
	persisted int

	approved              *bool
	collateral            Satoshis
	lastCollateralization CollateralizationState
	totalDisbursed        UsdCents
	disbursedOutstanding  UsdCents
	interestAccrued       UsdCents
	interestOutstanding   UsdCents
	completedAt           *time.Time

	disbursals    []*Disbursal
	accrualCycles []*InterestAccrualCycle
}

// NewFacilityParams carries everything needed to initialize a facility.
type NewFacilityParams struct {
	ID         string
	CustomerID string
	Terms      TermValues
	Amount     UsdCents
	Accounts   FacilityAccountIDs
	Audit      AuditInfo
}

// NewCreditFacility initializes a facility in PendingCollateralization.
func NewCreditFacility(p NewFacilityParams) (*CreditFacility, error) {
	if err := p.Terms.Validate(); err != nil {
		return nil, err
	}
	if p.Amount.IsZero() {
		return nil, ErrZeroAmount
	}

	f := &CreditFacility{}
	f.push(FacilityInitialized{
		FacilityID: p.ID,
		CustomerID: p.CustomerID,
		Terms:      p.Terms,
		Amount:     p.Amount,
		Accounts:   p.Accounts,
		Audit:      p.Audit,
	})
	return f, nil
}

// CreditFacilityFromEvents replays a persisted log. Bit-for-bit replay of the
// same log reproduces identical derived state.
func CreditFacilityFromEvents(events []FacilityEvent) *CreditFacility {
	f := &CreditFacility{}
	for _, e := range events {
		f.apply(e)
	}
	f.events = events
	f.persisted = len(events)
	return f
}

// Events returns the full ordered log.
func (f *CreditFacility) Events() []FacilityEvent { return f.events }

// NewEvents returns events pushed since load, pending persistence.
func (f *CreditFacility) NewEvents() []FacilityEvent { return f.events[f.persisted:] }

// Version is the number of already-persisted events, used as the expected
// version for optimistic-concurrency appends.
func (f *CreditFacility) Version() int { return f.persisted }

// MarkPersisted advances the persistence watermark after a successful append.
func (f *CreditFacility) MarkPersisted() { f.persisted = len(f.events) }

func (f *CreditFacility) push(e FacilityEvent) {
	f.apply(e)
	f.events = append(f.events, e)
}

func (f *CreditFacility) apply(e FacilityEvent) {
	switch ev := e.(type) {
	case FacilityInitialized:
		f.ID = ev.FacilityID
		f.CustomerID = ev.CustomerID
		f.Terms = ev.Terms
		f.Accounts = ev.Accounts
		f.Amount = ev.Amount
		f.lastCollateralization = CollateralizationNoCollateral
	case ApprovalProcessConcluded:
		approved := ev.Approved
		f.approved = &approved
	case FacilityActivated:
		at := ev.ActivatedAt
		matures := ev.MaturesAt
		f.ActivatedAt = &at
		f.MaturesAt = &matures
		f.DefaultsAt = ev.DefaultsAt
	case DisbursalInitiated:
		f.disbursals = append(f.disbursals, &Disbursal{
			ID:         ev.DisbursalID,
			FacilityID: f.ID,
			Idx:        ev.Idx,
			Amount:     ev.Amount,
			Status:     DisbursalStatusInitiated,
		})
	case DisbursalConcluded:
		if d := f.disbursal(ev.Idx); d != nil && !d.Concluded() {
			d.conclude(ev.LedgerTxID, ev.RecordedAt)
			if ev.LedgerTxID != nil {
				f.totalDisbursed = f.totalDisbursed.Add(d.Amount)
				f.disbursedOutstanding = f.disbursedOutstanding.Add(d.Amount)
			}
		}
	case InterestAccrualCycleStarted:
		f.accrualCycles = append(f.accrualCycles, &InterestAccrualCycle{
			ID:         ev.CycleID,
			FacilityID: f.ID,
			Idx:        ev.Idx,
			Terms:      f.Terms,
			Period:     ev.Period,
		})
	case InterestAccrualRecorded:
		if c := f.accrualCycle(ev.CycleIdx); c != nil {
			c.recordAccrual(ev.Amount, ev.Period)
		}
	case InterestAccrualCycleConcluded:
		if c := f.accrualCycle(ev.Idx); c != nil && !c.Concluded() {
			c.conclude()
			f.interestAccrued = f.interestAccrued.Add(ev.Interest)
			f.interestOutstanding = f.interestOutstanding.Add(ev.Interest)
		}
	case CollateralUpdated:
		f.collateral = ev.TotalCollateral
	case CollateralizationChanged:
		f.lastCollateralization = ev.State
	case PaymentRecorded:
		f.interestOutstanding, _ = f.interestOutstanding.Sub(ev.InterestPaid)
		f.disbursedOutstanding, _ = f.disbursedOutstanding.Sub(ev.DisbursalPaid)
	case FacilityCompleted:
		at := ev.CompletedAt
		f.completedAt = &at
	}
}

func (f *CreditFacility) disbursal(idx int) *Disbursal {
	for _, d := range f.disbursals {
		if d.Idx == idx {
			return d
		}
	}
	return nil
}

func (f *CreditFacility) accrualCycle(idx int) *InterestAccrualCycle {
	for _, c := range f.accrualCycles {
		if c.Idx == idx {
			return c
		}
	}
	return nil
}

func (f *CreditFacility) inProgressAccrualCycle() *InterestAccrualCycle {
	if n := len(f.accrualCycles); n > 0 && !f.accrualCycles[n-1].Concluded() {
		return f.accrualCycles[n-1]
	}
	return nil
}

// IsActivated reports whether an Activated event exists.
func (f *CreditFacility) IsActivated() bool { return f.ActivatedAt != nil }

// IsCompleted reports whether the facility has closed.
func (f *CreditFacility) IsCompleted() bool { return f.completedAt != nil }

// Collateral is the current collateral balance in satoshis.
func (f *CreditFacility) Collateral() Satoshis { return f.collateral }

// CollateralizationState is the last recorded collateralization state.
func (f *CreditFacility) CollateralizationState() CollateralizationState {
	return f.lastCollateralization
}

// Disbursals returns the facility's drawdown children in initiation order.
func (f *CreditFacility) Disbursals() []*Disbursal { return f.disbursals }

// AccrualCycles returns the interest accrual cycle children in start order.
func (f *CreditFacility) AccrualCycles() []*InterestAccrualCycle { return f.accrualCycles }

// Status derives the lifecycle status at the given time, in strict priority
// order: Closed, Matured, Active, PendingApproval, PendingCollateralization.
func (f *CreditFacility) Status(now time.Time) CreditFacilityStatus {
	switch {
	case f.completedAt != nil:
		return StatusClosed
	case f.MaturesAt != nil && now.After(*f.MaturesAt):
		return StatusMatured
	case f.IsActivated():
		return StatusActive
	case f.lastCollateralization == CollateralizationFullyCollateralized:
		return StatusPendingApproval
	default:
		return StatusPendingCollateralization
	}
}

// BalanceSummary folds the facility's balances out of the event-derived state.
func (f *CreditFacility) BalanceSummary() FacilityBalanceSummary {
	return FacilityBalanceSummary{
		Collateral:           f.collateral,
		Facility:             f.Amount,
		FacilityRemaining:    f.facilityRemaining(),
		TotalDisbursed:       f.totalDisbursed,
		DisbursedOutstanding: f.disbursedOutstanding,
		InterestAccrued:      f.interestAccrued,
		InterestOutstanding:  f.interestOutstanding,
	}
}

// facilityRemaining is the undrawn facility. Initiated but unconcluded
// disbursals are reserved so concurrent drawdowns cannot oversubscribe.
func (f *CreditFacility) facilityRemaining() UsdCents {
	reserved := UsdCents(0)
	for _, d := range f.disbursals {
		if d.Status != DisbursalStatusCancelled {
			reserved = reserved.Add(d.Amount)
		}
	}
	remaining, err := f.Amount.Sub(reserved)
	if err != nil {
		return 0
	}
	return remaining
}

// CurrentCVL computes both CVL tracks at the given price.
func (f *CreditFacility) CurrentCVL(price PriceOfOneBTC) FacilityCVL {
	collateralValue := price.CentsFromSats(f.collateral)
	outstanding := f.BalanceSummary().TotalOutstanding()
	return FacilityCVL{
		Total:     CVLFromRatio(collateralValue, outstanding.Add(f.facilityRemaining())),
		Disbursed: CVLFromRatio(collateralValue, outstanding),
	}
}

// ApprovalProcessConcluded records the outcome of the external approval
// process. Idempotent: a second conclusion is ignored.
func (f *CreditFacility) ApprovalProcessConcluded(approved bool, audit AuditInfo) Idempotent[bool] {
	already := eventExists(f.events, func(e FacilityEvent) bool {
		_, ok := e.(ApprovalProcessConcluded)
		return ok
	})
	if already {
		return IdempotentIgnored[bool]()
	}
	f.push(ApprovalProcessConcluded{Approved: approved, Audit: audit})
	return IdempotentApplied(approved)
}

// Activate moves an approved, collateralized facility into Active, starts the
// first interest accrual cycle, and returns the one-time activation posting
// instruction (facility amount plus structuring fee).
func (f *CreditFacility) Activate(
	activatedAt time.Time,
	price PriceOfOneBTC,
	txID, cycleID string,
	audit AuditInfo,
) (Idempotent[*ActivationPostingData], error) {
	if f.IsActivated() {
		return IdempotentIgnored[*ActivationPostingData](), nil
	}
	if f.approved == nil {
		return Idempotent[*ActivationPostingData]{}, ErrApprovalInProgress
	}
	if !*f.approved {
		return Idempotent[*ActivationPostingData]{}, ErrApprovalDenied
	}
	if f.collateral.IsZero() {
		return Idempotent[*ActivationPostingData]{}, ErrNoCollateral
	}

	collateralValue := price.CentsFromSats(f.collateral)
	facilityCVL := CVLFromRatio(collateralValue, f.Amount)
	if facilityCVL.LessThan(f.Terms.MarginCallCVL.Decimal) {
		return Idempotent[*ActivationPostingData]{}, ErrBelowMarginLimit
	}

	maturesAt := f.Terms.MaturesAt(activatedAt)
	fee := f.Terms.OneTimeFeeRate.Apply(f.Amount)
	f.push(FacilityActivated{
		ActivatedAt:    activatedAt,
		MaturesAt:      maturesAt,
		DefaultsAt:     f.Terms.DefaultsAt(activatedAt),
		StructuringFee: fee,
		LedgerTxID:     txID,
		Audit:          audit,
	})

	// Activation always opens the first accrual cycle in the same command.
	period := f.Terms.AccrualCycleInterval.PeriodFrom(activatedAt)
	if truncated := period.Truncate(maturesAt); truncated != nil {
		f.push(InterestAccrualCycleStarted{
			CycleID: cycleID,
			Idx:     0,
			Period:  *truncated,
			Audit:   audit,
		})
	}

	return IdempotentApplied(&ActivationPostingData{
		TxID:           txID,
		Facility:       f.Amount,
		StructuringFee: fee,
		Accounts:       f.Accounts,
	}), nil
}

// InitiateDisbursal opens a drawdown request with the next monotonic index.
func (f *CreditFacility) InitiateDisbursal(
	disbursalID string,
	amount UsdCents,
	now time.Time,
	audit AuditInfo,
) (*Disbursal, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	if !f.IsActivated() {
		return nil, ErrNotActivatedYet
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if f.MaturesAt != nil && now.After(*f.MaturesAt) {
		return nil, ErrDisbursalPastMaturityDate
	}
	if amount > f.facilityRemaining() {
		return nil, ErrDisbursalExceedsFacility
	}

	idx := len(f.disbursals)
	f.push(DisbursalInitiated{
		DisbursalID: disbursalID,
		Idx:         idx,
		Amount:      amount,
		Audit:       audit,
	})
	return f.disbursal(idx), nil
}

// DisbursalConcluded records the settlement (txID set) or cancellation (txID
// nil) of a disbursal. Idempotent per disbursal index.
func (f *CreditFacility) DisbursalConcluded(
	idx int,
	txID *string,
	recordedAt time.Time,
	audit AuditInfo,
) (Idempotent[*DisbursalPostingData], error) {
	d := f.disbursal(idx)
	if d == nil {
		return Idempotent[*DisbursalPostingData]{}, ErrDisbursalNotFound
	}
	if d.Concluded() {
		return IdempotentIgnored[*DisbursalPostingData](), nil
	}
	if f.IsCompleted() {
		return Idempotent[*DisbursalPostingData]{}, ErrFacilityCompleted
	}

	f.push(DisbursalConcluded{
		Idx:        idx,
		LedgerTxID: txID,
		RecordedAt: recordedAt,
		Audit:      audit,
	})

	if txID == nil {
		return IdempotentApplied[*DisbursalPostingData](nil), nil
	}
	return IdempotentApplied(&DisbursalPostingData{
		TxID:     *txID,
		Amount:   d.Amount,
		Accounts: f.Accounts,
	}), nil
}

// StartInterestAccrualCycle opens the next accrual cycle, continuing from the
// last one or from activation. Returns nil when the facility is past maturity
// and accrual naturally stops.
func (f *CreditFacility) StartInterestAccrualCycle(
	cycleID string,
	now time.Time,
	audit AuditInfo,
) (*InterestAccrualCycle, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	if !f.IsActivated() {
		return nil, ErrNotActivatedYet
	}
	if f.inProgressAccrualCycle() != nil {
		return nil, ErrAccrualCycleAlreadyInProgress
	}

	var period Period
	if n := len(f.accrualCycles); n == 0 {
		period = f.Terms.AccrualCycleInterval.PeriodFrom(*f.ActivatedAt)
	} else {
		period = f.accrualCycles[n-1].Period.Next()
	}

	truncated := period.Truncate(*f.MaturesAt)
	if truncated == nil {
		return nil, nil
	}
	// Guards against scheduler clock skew; a future start is a logic bug.
	if truncated.Start.After(now) {
		return nil, ErrAccrualCycleFutureStartDate
	}

	idx := len(f.accrualCycles)
	f.push(InterestAccrualCycleStarted{
		CycleID: cycleID,
		Idx:     idx,
		Period:  *truncated,
		Audit:   audit,
	})
	return f.accrualCycle(idx), nil
}

// RecordInterestAccrual accrues the next due period of the in-progress cycle
// against the disbursed outstanding balance.
func (f *CreditFacility) RecordInterestAccrual(now time.Time, audit AuditInfo) (*InterestAccrualData, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	cycle := f.inProgressAccrualCycle()
	if cycle == nil {
		return nil, ErrNoAccrualCycleInProgress
	}
	period := cycle.NextAccrualPeriod()
	if period == nil {
		return nil, nil
	}
	if period.End.After(now) {
		return nil, ErrInterestAccrualPeriodNotEndedYet
	}

	amount := f.Terms.AnnualRate.InterestForPeriod(f.disbursedOutstanding, period.Days())
	f.push(InterestAccrualRecorded{
		CycleIdx: cycle.Idx,
		Amount:   amount,
		Period:   *period,
		Audit:    audit,
	})
	return &InterestAccrualData{CycleIdx: cycle.Idx, Amount: amount, Period: *period}, nil
}

// RecordInterestAccrualCycle concludes the in-progress cycle once every period
// has been accrued, raising the interest obligation and returning the posting
// instruction for it.
func (f *CreditFacility) RecordInterestAccrualCycle(txID string, audit AuditInfo) (*InterestPostingData, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	cycle := f.inProgressAccrualCycle()
	if cycle == nil {
		return nil, ErrNoAccrualCycleInProgress
	}
	if !cycle.FullyAccrued() {
		return nil, ErrInterestAccrualNotCompletedYet
	}

	f.push(InterestAccrualCycleConcluded{
		Idx:        cycle.Idx,
		Interest:   cycle.Accrued(),
		LedgerTxID: txID,
		Audit:      audit,
	})
	return &InterestPostingData{
		TxID:     txID,
		Interest: cycle.Accrued(),
		Accounts: f.Accounts,
	}, nil
}

// RecordCollateralUpdate sets the collateral balance to newCollateral,
// emitting the collateral posting and re-deriving collateralization.
func (f *CreditFacility) RecordCollateralUpdate(
	txID string,
	newCollateral Satoshis,
	price PriceOfOneBTC,
	upgradeBuffer *CVLPct,
	audit AuditInfo,
) (*CollateralPostingData, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	diff := newCollateral.Sub(f.collateral)
	if diff.IsZero() {
		return nil, ErrCollateralNotUpdated
	}

	action := CollateralActionAdd
	if diff.IsNegative() {
		action = CollateralActionRemove
	}
	f.push(CollateralUpdated{
		TotalCollateral: newCollateral,
		Diff:            diff,
		Action:          action,
		LedgerTxID:      txID,
		Audit:           audit,
	})
	f.maybeUpdateCollateralization(price, upgradeBuffer, audit)

	return &CollateralPostingData{
		TxID:       txID,
		Action:     action,
		Collateral: diff.Abs(),
		Accounts:   f.Accounts,
	}, nil
}

// InitiateRepayment allocates a payment interest-first, then against the
// disbursed principal, and re-derives collateralization. Only due amounts
// accept payment: interest is due as soon as it is accrued, principal only
// once the facility is past maturity.
func (f *CreditFacility) InitiateRepayment(
	paymentID, txID string,
	amount UsdCents,
	price PriceOfOneBTC,
	upgradeBuffer *CVLPct,
	now time.Time,
	audit AuditInfo,
) (*RepaymentPostingData, error) {
	if f.IsCompleted() {
		return nil, ErrFacilityCompleted
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	outstanding := f.BalanceSummary().TotalOutstanding()
	if outstanding.IsZero() {
		return nil, ErrNothingToRepay
	}
	if amount > outstanding {
		return nil, ErrPaymentExceedsOutstanding
	}

	interestDue := f.interestOutstanding
	principalDue := UsdCents(0)
	if f.MaturesAt != nil && now.After(*f.MaturesAt) {
		principalDue = f.disbursedOutstanding
	}
	if interestDue.Add(principalDue).IsZero() {
		return nil, ErrNothingToRepay
	}
	// A payment beyond the due amounts would have nowhere to allocate.
	if amount > interestDue.Add(principalDue) {
		return nil, ErrPaymentExceedsOutstanding
	}

	interestPaid := MinUsdCents(amount, interestDue)
	remaining, _ := amount.Sub(interestPaid)
	principalPaid := MinUsdCents(remaining, principalDue)

	f.push(PaymentRecorded{
		PaymentID:     paymentID,
		InterestPaid:  interestPaid,
		DisbursalPaid: principalPaid,
		LedgerTxID:    txID,
		Audit:         audit,
	})
	// A repayment can upgrade the collateralization state.
	f.maybeUpdateCollateralization(price, upgradeBuffer, audit)

	return &RepaymentPostingData{
		TxID:          txID,
		InterestPaid:  interestPaid,
		PrincipalPaid: principalPaid,
		Accounts:      f.Accounts,
	}, nil
}

// Complete closes the facility once nothing is outstanding, returning all
// remaining collateral. Idempotent.
func (f *CreditFacility) Complete(
	txID string,
	price PriceOfOneBTC,
	upgradeBuffer *CVLPct,
	now time.Time,
	audit AuditInfo,
) (Idempotent[*CompletionPostingData], error) {
	if f.IsCompleted() {
		return IdempotentIgnored[*CompletionPostingData](), nil
	}
	if !f.BalanceSummary().TotalOutstanding().IsZero() {
		return Idempotent[*CompletionPostingData]{}, ErrOutstandingAmount
	}

	returned := f.collateral
	if !returned.IsZero() {
		f.push(CollateralUpdated{
			TotalCollateral: 0,
			Diff:            Satoshis(0).Sub(returned),
			Action:          CollateralActionRemove,
			LedgerTxID:      txID,
			Audit:           audit,
		})
	}
	f.push(FacilityCompleted{CompletedAt: now, LedgerTxID: txID, Audit: audit})
	f.maybeUpdateCollateralization(price, upgradeBuffer, audit)

	return IdempotentApplied(&CompletionPostingData{
		TxID:       txID,
		Collateral: returned,
		Accounts:   f.Accounts,
	}), nil
}

// maybeUpdateCollateralization re-derives the collateralization state from
// the phase-selected CVL and records a change event when the hysteresis rules
// call for one.
func (f *CreditFacility) maybeUpdateCollateralization(
	price PriceOfOneBTC,
	upgradeBuffer *CVLPct,
	audit AuditInfo,
) *CollateralizationState {
	current := f.CurrentCVL(price).ForPhase(f.IsActivated(), f.totalDisbursed)
	if f.IsCompleted() {
		current = ZeroCVL
	} else if f.IsActivated() && !f.totalDisbursed.IsZero() && f.BalanceSummary().TotalOutstanding().IsZero() {
		// Fully repaid: nothing is owed, so there is no ratio to measure.
		// Keep the last recorded state until completion or a new drawdown.
		return nil
	}

	newState := f.Terms.CollateralizationUpdate(
		current,
		f.lastCollateralization,
		upgradeBuffer,
		!f.IsActivated(),
	)
	if newState == nil {
		return nil
	}

	f.push(CollateralizationChanged{
		State:       *newState,
		CVL:         current,
		Collateral:  f.collateral,
		Outstanding: f.BalanceSummary().TotalOutstanding(),
		Price:       price,
		Audit:       audit,
	})
	return newState
}
