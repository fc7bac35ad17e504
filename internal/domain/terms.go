package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// AnnualRatePct is a yearly interest rate expressed as a percentage (12 means
// 12% per year).
type AnnualRatePct struct {
	decimal.Decimal
}

func NewAnnualRatePct(v int64) AnnualRatePct {
	return AnnualRatePct{decimal.NewFromInt(v)}
}

func AnnualRatePctFromDecimal(d decimal.Decimal) AnnualRatePct {
	return AnnualRatePct{d}
}

// InterestForPeriod computes interest on principal over days, using a 365-day
// year and rounding the resulting cents away from zero.
func (r AnnualRatePct) InterestForPeriod(principal UsdCents, days int) UsdCents {
	interest := principal.ToUsd().
		Mul(r.Decimal).
		Div(hundred).
		Mul(decimal.NewFromInt(int64(days))).
		Div(daysPerYear).
		Mul(centsPerUsd).
		RoundUp(0)
	return UsdCents(interest.IntPart())
}

// OneTimeFeeRatePct is a one-off origination fee rate in percent.
type OneTimeFeeRatePct struct {
	decimal.Decimal
}

func NewOneTimeFeeRatePct(v int64) OneTimeFeeRatePct {
	return OneTimeFeeRatePct{decimal.NewFromInt(v)}
}

// Apply computes the fee on amount, rounding away from zero.
func (f OneTimeFeeRatePct) Apply(amount UsdCents) UsdCents {
	fee := decimal.NewFromInt(int64(amount)).
		Mul(f.Decimal).
		Div(hundred).
		RoundUp(0)
	return UsdCents(fee.IntPart())
}

// CVLPct is a collateral-value-locked percentage.
type CVLPct struct {
	decimal.Decimal
}

func NewCVLPct(v int64) CVLPct {
	return CVLPct{decimal.NewFromInt(v)}
}

var ZeroCVL = CVLPct{}

// CVLFromRatio computes collateralValue / outstanding as a percentage,
// truncated toward zero at two decimals. A zero outstanding yields a zero CVL;
// phase selection falls back to a denominator that is known to be non-zero.
func CVLFromRatio(collateralValue, outstanding UsdCents) CVLPct {
	if outstanding.IsZero() {
		return ZeroCVL
	}
	ratio := collateralValue.ToUsd().
		Div(outstanding.ToUsd()).
		Mul(hundred).
		RoundDown(2)
	return CVLPct{ratio}
}

// IsSignificantlyLowerThan reports whether other exceeds this CVL by more than
// buffer. Used to dampen upgrade flapping around the margin call threshold.
func (c CVLPct) IsSignificantlyLowerThan(other CVLPct, buffer CVLPct) bool {
	return c.Add(buffer.Decimal).LessThan(other.Decimal)
}

// TermValues are the immutable contract terms attached at facility creation.
type TermValues struct {
	AnnualRate              AnnualRatePct     `json:"annual_rate"`
	DurationMonths          int               `json:"duration_months"`
	InterestDueDurationDays int               `json:"interest_due_duration_days"`
	OverdueDurationDays     *int              `json:"overdue_duration_days,omitempty"`
	LiquidationDurationDays *int              `json:"liquidation_duration_days,omitempty"`
	AccrualCycleInterval    InterestInterval  `json:"accrual_cycle_interval"`
	AccrualInterval         InterestInterval  `json:"accrual_interval"`
	OneTimeFeeRate          OneTimeFeeRatePct `json:"one_time_fee_rate"`
	LiquidationCVL          CVLPct            `json:"liquidation_cvl"`
	MarginCallCVL           CVLPct            `json:"margin_call_cvl"`
	InitialCVL              CVLPct            `json:"initial_cvl"`
}

// Validate enforces the construction invariants on the terms. The CVL
// thresholds must be strictly ordered.
func (t TermValues) Validate() error {
	if t.AnnualRate.IsNegative() {
		return ErrInvalidAnnualRate
	}
	if t.DurationMonths < 1 {
		return ErrInvalidDuration
	}
	if !t.LiquidationCVL.LessThan(t.MarginCallCVL.Decimal) {
		return ErrInvalidCVLOrdering
	}
	if !t.MarginCallCVL.LessThan(t.InitialCVL.Decimal) {
		return ErrInvalidCVLOrdering
	}
	return nil
}

// MaturesAt returns the facility maturity date for the given activation time.
func (t TermValues) MaturesAt(activatedAt time.Time) time.Time {
	return activatedAt.AddDate(0, t.DurationMonths, 0)
}

// DefaultsAt returns the default date derived from the overdue duration, or
// nil when the terms carry none.
func (t TermValues) DefaultsAt(activatedAt time.Time) *time.Time {
	if t.OverdueDurationDays == nil {
		return nil
	}
	d := t.MaturesAt(activatedAt).AddDate(0, 0, *t.OverdueDurationDays)
	return &d
}

// RequiredCollateral returns the satoshis needed to reach the initial CVL for
// the desired principal at the given price.
func (t TermValues) RequiredCollateral(desiredPrincipal UsdCents, price PriceOfOneBTC) Satoshis {
	requiredValue := desiredPrincipal.ToUsd().
		Mul(t.InitialCVL.Decimal).
		Div(hundred)
	sats := requiredValue.
		Mul(satsPerBtcD).
		Div(decimal.NewFromInt(int64(price)).Div(centsPerUsd)).
		RoundUp(0)
	return Satoshis(sats.IntPart())
}

// Collateralization classifies a CVL against the terms' thresholds.
func (t TermValues) Collateralization(cvl CVLPct) CollateralizationState {
	switch {
	case cvl.IsZero():
		return CollateralizationNoCollateral
	case cvl.GreaterThanOrEqual(t.MarginCallCVL.Decimal):
		return CollateralizationFullyCollateralized
	case cvl.GreaterThanOrEqual(t.LiquidationCVL.Decimal):
		return CollateralizationUnderMarginCallThreshold
	default:
		return CollateralizationUnderLiquidationThreshold
	}
}

// CollateralizationUpdate decides whether a recalculated CVL moves the
// facility to a new collateralization state. Returns nil when no event should
// be recorded.
//
// Upgrades out of UnderLiquidationThreshold can be blocked (pre-activation
// downgrade-only semantics). Upgrades from UnderMarginCallThreshold to
// FullyCollateralized are damped by upgradeBuffer: the upgrade is recorded
// only once the CVL clears the margin call threshold by more than the buffer.
func (t TermValues) CollateralizationUpdate(
	currentCVL CVLPct,
	lastState CollateralizationState,
	upgradeBuffer *CVLPct,
	liquidationUpgradeBlocked bool,
) *CollateralizationState {
	calculated := t.Collateralization(currentCVL)
	if calculated == lastState {
		return nil
	}

	switch lastState {
	case CollateralizationUnderLiquidationThreshold:
		if liquidationUpgradeBlocked {
			return nil
		}
		return &calculated
	case CollateralizationUnderMarginCallThreshold:
		if calculated == CollateralizationFullyCollateralized && upgradeBuffer != nil {
			if t.MarginCallCVL.IsSignificantlyLowerThan(currentCVL, *upgradeBuffer) {
				return &calculated
			}
			return nil
		}
		return &calculated
	default:
		return &calculated
	}
}
