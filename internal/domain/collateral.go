package domain

// CollateralizationState is derived from the current CVL and terms, ordered
// by risk. It is never set directly by a caller.
type CollateralizationState string

const (
	CollateralizationNoCollateral              CollateralizationState = "no_collateral"
	CollateralizationUnderLiquidationThreshold CollateralizationState = "under_liquidation_threshold"
	CollateralizationUnderMarginCallThreshold  CollateralizationState = "under_margin_call_threshold"
	CollateralizationFullyCollateralized       CollateralizationState = "fully_collateralized"
)

// CollateralAction distinguishes collateral postings.
type CollateralAction string

const (
	CollateralActionAdd    CollateralAction = "add"
	CollateralActionRemove CollateralAction = "remove"
)

// FacilityCVL carries the two CVL tracks computed for a facility. Total is
// measured against total outstanding plus the undisbursed facility; Disbursed
// against disbursed receivables only.
type FacilityCVL struct {
	Total     CVLPct
	Disbursed CVLPct
}

// ForPhase selects which CVL track gates a collateralization decision.
// Pre-activation phases always use the total CVL; an active facility uses the
// disbursed CVL unless nothing has been disbursed yet.
func (c FacilityCVL) ForPhase(activated bool, totalDisbursed UsdCents) CVLPct {
	if !activated || totalDisbursed.IsZero() {
		return c.Total
	}
	return c.Disbursed
}
