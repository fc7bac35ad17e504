package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type tags, stable across releases; replay of old logs depends on them.
const (
	EventTypeFacilityInitialized           = "facility.initialized"
	EventTypeApprovalProcessConcluded      = "facility.approval_process_concluded"
	EventTypeFacilityActivated             = "facility.activated"
	EventTypeDisbursalInitiated            = "facility.disbursal_initiated"
	EventTypeDisbursalConcluded            = "facility.disbursal_concluded"
	EventTypeInterestAccrualCycleStarted   = "facility.interest_accrual_cycle_started"
	EventTypeInterestAccrualRecorded       = "facility.interest_accrual_recorded"
	EventTypeInterestAccrualCycleConcluded = "facility.interest_accrual_cycle_concluded"
	EventTypeCollateralUpdated             = "facility.collateral_updated"
	EventTypeCollateralizationChanged      = "facility.collateralization_changed"
	EventTypePaymentRecorded               = "facility.payment_recorded"
	EventTypeFacilityCompleted             = "facility.completed"
)

// AuditInfo stamps every event with who caused it and when.
type AuditInfo struct {
	SubjectID  string    `json:"subject_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FacilityEvent is the sum type of everything that can happen to a credit
// facility. The aggregate's current state is always a pure fold over an
// ordered sequence of these.
type FacilityEvent interface {
	EventType() string
}

type FacilityInitialized struct {
	FacilityID string             `json:"facility_id"`
	CustomerID string             `json:"customer_id"`
	Terms      TermValues         `json:"terms"`
	Amount     UsdCents           `json:"amount"`
	Accounts   FacilityAccountIDs `json:"accounts"`
	Audit      AuditInfo          `json:"audit"`
}

type ApprovalProcessConcluded struct {
	Approved bool      `json:"approved"`
	Audit    AuditInfo `json:"audit"`
}

type FacilityActivated struct {
	ActivatedAt    time.Time  `json:"activated_at"`
	MaturesAt      time.Time  `json:"matures_at"`
	DefaultsAt     *time.Time `json:"defaults_at,omitempty"`
	StructuringFee UsdCents   `json:"structuring_fee"`
	LedgerTxID     string     `json:"ledger_tx_id"`
	Audit          AuditInfo  `json:"audit"`
}

type DisbursalInitiated struct {
	DisbursalID string    `json:"disbursal_id"`
	Idx         int       `json:"idx"`
	Amount      UsdCents  `json:"amount"`
	Audit       AuditInfo `json:"audit"`
}

// DisbursalConcluded settles (LedgerTxID set) or cancels (LedgerTxID nil) a
// previously initiated disbursal.
type DisbursalConcluded struct {
	Idx        int        `json:"idx"`
	LedgerTxID *string    `json:"ledger_tx_id,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
	Audit      AuditInfo  `json:"audit"`
}

type InterestAccrualCycleStarted struct {
	CycleID string    `json:"cycle_id"`
	Idx     int       `json:"idx"`
	Period  Period    `json:"period"`
	Audit   AuditInfo `json:"audit"`
}

type InterestAccrualRecorded struct {
	CycleIdx int       `json:"cycle_idx"`
	Amount   UsdCents  `json:"amount"`
	Period   Period    `json:"period"`
	Audit    AuditInfo `json:"audit"`
}

type InterestAccrualCycleConcluded struct {
	Idx        int       `json:"idx"`
	Interest   UsdCents  `json:"interest"`
	LedgerTxID string    `json:"ledger_tx_id"`
	Audit      AuditInfo `json:"audit"`
}

type CollateralUpdated struct {
	TotalCollateral Satoshis         `json:"total_collateral"`
	Diff            SignedSatoshis   `json:"diff"`
	Action          CollateralAction `json:"action"`
	LedgerTxID      string           `json:"ledger_tx_id"`
	Audit           AuditInfo        `json:"audit"`
}

type CollateralizationChanged struct {
	State       CollateralizationState `json:"state"`
	CVL         CVLPct                 `json:"cvl"`
	Collateral  Satoshis               `json:"collateral"`
	Outstanding UsdCents               `json:"outstanding"`
	Price       PriceOfOneBTC          `json:"price"`
	Audit       AuditInfo              `json:"audit"`
}

type PaymentRecorded struct {
	PaymentID     string    `json:"payment_id"`
	InterestPaid  UsdCents  `json:"interest_paid"`
	DisbursalPaid UsdCents  `json:"disbursal_paid"`
	LedgerTxID    string    `json:"ledger_tx_id"`
	Audit         AuditInfo `json:"audit"`
}

type FacilityCompleted struct {
	CompletedAt time.Time `json:"completed_at"`
	LedgerTxID  string    `json:"ledger_tx_id"`
	Audit       AuditInfo `json:"audit"`
}

func (FacilityInitialized) EventType() string           { return EventTypeFacilityInitialized }
func (ApprovalProcessConcluded) EventType() string      { return EventTypeApprovalProcessConcluded }
func (FacilityActivated) EventType() string             { return EventTypeFacilityActivated }
func (DisbursalInitiated) EventType() string            { return EventTypeDisbursalInitiated }
func (DisbursalConcluded) EventType() string            { return EventTypeDisbursalConcluded }
func (InterestAccrualCycleStarted) EventType() string   { return EventTypeInterestAccrualCycleStarted }
func (InterestAccrualRecorded) EventType() string       { return EventTypeInterestAccrualRecorded }
func (InterestAccrualCycleConcluded) EventType() string { return EventTypeInterestAccrualCycleConcluded }
func (CollateralUpdated) EventType() string             { return EventTypeCollateralUpdated }
func (CollateralizationChanged) EventType() string      { return EventTypeCollateralizationChanged }
func (PaymentRecorded) EventType() string               { return EventTypePaymentRecorded }
func (FacilityCompleted) EventType() string             { return EventTypeFacilityCompleted }

// MarshalFacilityEvent serializes an event payload for the event store.
func MarshalFacilityEvent(e FacilityEvent) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalFacilityEvent rebuilds an event from its stored type tag and
// payload. Unknown tags are an error: replay must never silently drop events.
func UnmarshalFacilityEvent(eventType string, payload []byte) (FacilityEvent, error) {
	var e FacilityEvent
	switch eventType {
	case EventTypeFacilityInitialized:
		e = &FacilityInitialized{}
	case EventTypeApprovalProcessConcluded:
		e = &ApprovalProcessConcluded{}
	case EventTypeFacilityActivated:
		e = &FacilityActivated{}
	case EventTypeDisbursalInitiated:
		e = &DisbursalInitiated{}
	case EventTypeDisbursalConcluded:
		e = &DisbursalConcluded{}
	case EventTypeInterestAccrualCycleStarted:
		e = &InterestAccrualCycleStarted{}
	case EventTypeInterestAccrualRecorded:
		e = &InterestAccrualRecorded{}
	case EventTypeInterestAccrualCycleConcluded:
		e = &InterestAccrualCycleConcluded{}
	case EventTypeCollateralUpdated:
		e = &CollateralUpdated{}
	case EventTypeCollateralizationChanged:
		e = &CollateralizationChanged{}
	case EventTypePaymentRecorded:
		e = &PaymentRecorded{}
	case EventTypeFacilityCompleted:
		e = &FacilityCompleted{}
	default:
		return nil, fmt.Errorf("unknown facility event type %q", eventType)
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
	}
	return deref(e), nil
}

// deref normalizes pointer events back to their value form so a replayed log
// type-switches identically to a freshly built one.
func deref(e FacilityEvent) FacilityEvent {
	switch v := e.(type) {
	case *FacilityInitialized:
		return *v
	case *ApprovalProcessConcluded:
		return *v
	case *FacilityActivated:
		return *v
	case *DisbursalInitiated:
		return *v
	case *DisbursalConcluded:
		return *v
	case *InterestAccrualCycleStarted:
		return *v
	case *InterestAccrualRecorded:
		return *v
	case *InterestAccrualCycleConcluded:
		return *v
	case *CollateralUpdated:
		return *v
	case *CollateralizationChanged:
		return *v
	case *PaymentRecorded:
		return *v
	case *FacilityCompleted:
		return *v
	default:
		return e
	}
}
