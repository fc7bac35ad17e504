package domain

// FacilityAccountIDs is the ledger account bundle attached to a facility at
// creation.
type FacilityAccountIDs struct {
	CollateralAccountID          string `json:"collateral_account_id"`
	FacilityAccountID            string `json:"facility_account_id"`
	DisbursedReceivableAccountID string `json:"disbursed_receivable_account_id"`
	InterestReceivableAccountID  string `json:"interest_receivable_account_id"`
	InterestIncomeAccountID      string `json:"interest_income_account_id"`
	FeeIncomeAccountID           string `json:"fee_income_account_id"`
}

// Posting instructions: value objects describing the double-entry transaction
// the caller must hand to the ledger adapter in the same logical operation as
// persisting the new events. Tx ids are generated once at command time and
// embedded in the event, so a replayed or retried posting reuses the same id
// and the ledger stays idempotent.

type ActivationPostingData struct {
	TxID           string
	Facility       UsdCents
	StructuringFee UsdCents
	Accounts       FacilityAccountIDs
}

type DisbursalPostingData struct {
	TxID     string
	Amount   UsdCents
	Accounts FacilityAccountIDs
}

type InterestPostingData struct {
	TxID     string
	Interest UsdCents
	Accounts FacilityAccountIDs
}

type CollateralPostingData struct {
	TxID       string
	Action     CollateralAction
	Collateral Satoshis
	Accounts   FacilityAccountIDs
}

type RepaymentPostingData struct {
	TxID          string
	InterestPaid  UsdCents
	PrincipalPaid UsdCents
	Accounts      FacilityAccountIDs
}

type CompletionPostingData struct {
	TxID       string
	Collateral Satoshis
	Accounts   FacilityAccountIDs
}
