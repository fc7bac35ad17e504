package domain

import "errors"

var (
	// Money errors
	ErrNegativeAmount = errors.New("monetary amount cannot be negative")

	// Terms errors
	ErrInvalidCVLOrdering = errors.New("terms require liquidation_cvl < margin_call_cvl < initial_cvl")
	ErrInvalidAnnualRate  = errors.New("annual rate cannot be negative")
	ErrInvalidDuration    = errors.New("facility duration must be at least one month")

	// Facility lifecycle errors
	ErrApprovalInProgress = errors.New("approval process has not concluded")
	ErrApprovalDenied     = errors.New("approval process concluded with denial")
	ErrNoCollateral       = errors.New("credit facility has no collateral")
	ErrBelowMarginLimit   = errors.New("collateral value is below the margin call limit")
	ErrNotActivatedYet    = errors.New("credit facility is not activated")
	ErrOutstandingAmount  = errors.New("credit facility still has outstanding balances")
	ErrFacilityCompleted  = errors.New("credit facility is already closed")

	// Disbursal errors
	ErrDisbursalPastMaturityDate = errors.New("disbursal initiated past the facility maturity date")
	ErrDisbursalExceedsFacility  = errors.New("disbursal amount exceeds the remaining facility")
	ErrDisbursalNotFound         = errors.New("disbursal not found")

	// Interest accrual errors
	ErrInterestAccrualNotCompletedYet   = errors.New("interest accrual cycle has not completed all periods")
	ErrAccrualCycleFutureStartDate      = errors.New("interest accrual cycle has an invalid future start date")
	ErrAccrualCycleAlreadyInProgress    = errors.New("an interest accrual cycle is already in progress")
	ErrNoAccrualCycleInProgress         = errors.New("no interest accrual cycle is in progress")
	ErrInterestAccrualPeriodNotEndedYet = errors.New("current interest accrual period has not ended")

	// Collateral / repayment errors
	ErrCollateralNotUpdated      = errors.New("collateral update does not change the collateral balance")
	ErrNothingToRepay            = errors.New("credit facility has no outstanding amount to repay")
	ErrPaymentExceedsOutstanding = errors.New("payment exceeds the outstanding credit facility amount")
	ErrZeroAmount                = errors.New("amount must be positive")
)
