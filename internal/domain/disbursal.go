package domain

import "time"

// DisbursalStatus tracks a single drawdown request through its approval flow.
type DisbursalStatus string

const (
	DisbursalStatusInitiated DisbursalStatus = "initiated"
	DisbursalStatusSettled   DisbursalStatus = "settled"
	DisbursalStatusCancelled DisbursalStatus = "cancelled"
)

// Disbursal is a child entity of the facility, keyed by its monotonic index.
// It concludes exactly once, into either a settled ledger posting or a
// cancellation.
type Disbursal struct {
	ID          string
	FacilityID  string
	Idx         int
	Amount      UsdCents
	Status      DisbursalStatus
	LedgerTxID  *string
	ConcludedAt *time.Time
}

// Concluded reports whether the disbursal has settled or been cancelled.
func (d *Disbursal) Concluded() bool {
	return d.Status != DisbursalStatusInitiated
}

func (d *Disbursal) conclude(txID *string, at time.Time) {
	if txID != nil {
		d.Status = DisbursalStatusSettled
		d.LedgerTxID = txID
	} else {
		d.Status = DisbursalStatusCancelled
	}
	d.ConcludedAt = &at
}
