package dto

import (
	"github.com/shopspring/decimal"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

// TermsRequest carries the facility terms of a creation request. Rates and
// CVL thresholds accept JSON numbers with decimal places.
type TermsRequest struct {
	AnnualRate              decimal.Decimal `json:"annual_rate"`
	DurationMonths          int             `json:"duration_months"`
	InterestDueDurationDays int             `json:"interest_due_duration_days"`
	OverdueDurationDays     *int            `json:"overdue_duration_days,omitempty"`
	LiquidationDurationDays *int            `json:"liquidation_duration_days,omitempty"`
	AccrualCycleInterval    string          `json:"accrual_cycle_interval"`
	AccrualInterval         string          `json:"accrual_interval"`
	OneTimeFeeRate          decimal.Decimal `json:"one_time_fee_rate"`
	LiquidationCVL          decimal.Decimal `json:"liquidation_cvl"`
	MarginCallCVL           decimal.Decimal `json:"margin_call_cvl"`
	InitialCVL              decimal.Decimal `json:"initial_cvl"`
}

// ToDomain converts the request terms into domain terms.
func (t TermsRequest) ToDomain() domain.TermValues {
	return domain.TermValues{
		AnnualRate:              domain.AnnualRatePct{Decimal: t.AnnualRate},
		DurationMonths:          t.DurationMonths,
		InterestDueDurationDays: t.InterestDueDurationDays,
		OverdueDurationDays:     t.OverdueDurationDays,
		LiquidationDurationDays: t.LiquidationDurationDays,
		AccrualCycleInterval:    domain.InterestInterval(t.AccrualCycleInterval),
		AccrualInterval:         domain.InterestInterval(t.AccrualInterval),
		OneTimeFeeRate:          domain.OneTimeFeeRatePct{Decimal: t.OneTimeFeeRate},
		LiquidationCVL:          domain.CVLPct{Decimal: t.LiquidationCVL},
		MarginCallCVL:           domain.CVLPct{Decimal: t.MarginCallCVL},
		InitialCVL:              domain.CVLPct{Decimal: t.InitialCVL},
	}
}

// CreateFacilityRequest opens a new facility. Amount is in USD cents.
type CreateFacilityRequest struct {
	CustomerID string       `json:"customer_id"`
	Amount     int64        `json:"amount"`
	Terms      TermsRequest `json:"terms"`
}

// ToUseCaseInput converts the request into usecase input.
func (r CreateFacilityRequest) ToUseCaseInput(subjectID string) (usecase.CreateFacilityInput, error) {
	amount, err := domain.NewUsdCents(r.Amount)
	if err != nil {
		return usecase.CreateFacilityInput{}, err
	}
	return usecase.CreateFacilityInput{
		CustomerID: r.CustomerID,
		Terms:      r.Terms.ToDomain(),
		Amount:     amount,
		SubjectID:  subjectID,
	}, nil
}

// ConcludeApprovalRequest records the approval process outcome.
type ConcludeApprovalRequest struct {
	Approved bool `json:"approved"`
}

// UpdateCollateralRequest sets the collateral balance in satoshis.
type UpdateCollateralRequest struct {
	Collateral int64 `json:"collateral"`
}

// InitiateDisbursalRequest opens a drawdown. Amount is in USD cents.
type InitiateDisbursalRequest struct {
	Amount int64 `json:"amount"`
}

// ConcludeDisbursalRequest settles or cancels a disbursal.
type ConcludeDisbursalRequest struct {
	Settled bool `json:"settled"`
}

// RecordRepaymentRequest records a payment. Amount is in USD cents.
type RecordRepaymentRequest struct {
	Amount int64 `json:"amount"`
}
