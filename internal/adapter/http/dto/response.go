package dto

import (
	"time"

	"github.com/iho/creditledger/internal/domain"
)

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// BalanceSummaryResponse is the event-derived balance view of a facility.
type BalanceSummaryResponse struct {
	Collateral           int64 `json:"collateral"`
	Facility             int64 `json:"facility"`
	FacilityRemaining    int64 `json:"facility_remaining"`
	TotalDisbursed       int64 `json:"total_disbursed"`
	DisbursedOutstanding int64 `json:"disbursed_outstanding"`
	InterestAccrued      int64 `json:"interest_accrued"`
	InterestOutstanding  int64 `json:"interest_outstanding"`
	TotalOutstanding     int64 `json:"total_outstanding"`
}

// DisbursalResponse represents a drawdown in API responses.
type DisbursalResponse struct {
	ID          string     `json:"id"`
	Idx         int        `json:"idx"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	LedgerTxID  *string    `json:"ledger_tx_id,omitempty"`
	ConcludedAt *time.Time `json:"concluded_at,omitempty"`
}

// AccrualCycleResponse represents an interest accrual cycle.
type AccrualCycleResponse struct {
	ID          string    `json:"id"`
	Idx         int       `json:"idx"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Accrued     int64     `json:"accrued"`
	Concluded   bool      `json:"concluded"`
}

// FacilityResponse represents a credit facility in API responses.
type FacilityResponse struct {
	ID                string                 `json:"id"`
	CustomerID        string                 `json:"customer_id"`
	Status            string                 `json:"status"`
	Amount            int64                  `json:"amount"`
	Terms             domain.TermValues      `json:"terms"`
	Collateralization string                 `json:"collateralization"`
	ActivatedAt       *time.Time             `json:"activated_at,omitempty"`
	MaturesAt         *time.Time             `json:"matures_at,omitempty"`
	DefaultsAt        *time.Time             `json:"defaults_at,omitempty"`
	Balance           BalanceSummaryResponse `json:"balance"`
	Disbursals        []DisbursalResponse    `json:"disbursals"`
	AccrualCycles     []AccrualCycleResponse `json:"accrual_cycles"`
}

// FacilityFromDomain converts a domain facility to a response, deriving
// status at the given time.
func FacilityFromDomain(f *domain.CreditFacility, now time.Time) *FacilityResponse {
	summary := f.BalanceSummary()

	disbursals := make([]DisbursalResponse, 0, len(f.Disbursals()))
	for _, d := range f.Disbursals() {
		disbursals = append(disbursals, DisbursalResponse{
			ID:          d.ID,
			Idx:         d.Idx,
			Amount:      int64(d.Amount),
			Status:      string(d.Status),
			LedgerTxID:  d.LedgerTxID,
			ConcludedAt: d.ConcludedAt,
		})
	}

	cycles := make([]AccrualCycleResponse, 0, len(f.AccrualCycles()))
	for _, c := range f.AccrualCycles() {
		cycles = append(cycles, AccrualCycleResponse{
			ID:          c.ID,
			Idx:         c.Idx,
			PeriodStart: c.Period.Start,
			PeriodEnd:   c.Period.End,
			Accrued:     int64(c.Accrued()),
			Concluded:   c.Concluded(),
		})
	}

	return &FacilityResponse{
		ID:                f.ID,
		CustomerID:        f.CustomerID,
		Status:            string(f.Status(now)),
		Amount:            int64(f.Amount),
		Terms:             f.Terms,
		Collateralization: string(f.CollateralizationState()),
		ActivatedAt:       f.ActivatedAt,
		MaturesAt:         f.MaturesAt,
		DefaultsAt:        f.DefaultsAt,
		Balance: BalanceSummaryResponse{
			Collateral:           int64(summary.Collateral),
			Facility:             int64(summary.Facility),
			FacilityRemaining:    int64(summary.FacilityRemaining),
			TotalDisbursed:       int64(summary.TotalDisbursed),
			DisbursedOutstanding: int64(summary.DisbursedOutstanding),
			InterestAccrued:      int64(summary.InterestAccrued),
			InterestOutstanding:  int64(summary.InterestOutstanding),
			TotalOutstanding:     int64(summary.TotalOutstanding()),
		},
		Disbursals:    disbursals,
		AccrualCycles: cycles,
	}
}

// FacilityListResponse lists facility ids.
type FacilityListResponse struct {
	FacilityIDs []string `json:"facility_ids"`
}
