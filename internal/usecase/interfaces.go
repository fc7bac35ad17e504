package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/creditledger/internal/domain"
)

// ErrVersionConflict is returned by EventStore.Append when another command won
// the optimistic-concurrency race. Callers reload and retry from scratch.
var ErrVersionConflict = errors.New("event log version conflict")

// ErrFacilityNotFound is returned when no events exist for a facility id.
var ErrFacilityNotFound = errors.New("credit facility not found")

// ErrPriceUnavailable is returned when no current BTC price can be obtained.
var ErrPriceUnavailable = errors.New("btc price unavailable")

// EventStore persists the ordered, versioned event log per facility id.
type EventStore interface {
	Load(ctx context.Context, facilityID string) ([]domain.FacilityEvent, error)
	Append(ctx context.Context, facilityID string, expectedVersion int, events []domain.FacilityEvent) error
	ListFacilityIDs(ctx context.Context) ([]string, error)
}

// LedgerService posts the double-entry transactions behind facility
// operations. Every call is idempotent per the posting's tx id.
type LedgerService interface {
	PostActivation(ctx context.Context, facilityID string, data domain.ActivationPostingData) (time.Time, error)
	PostDisbursal(ctx context.Context, facilityID string, data domain.DisbursalPostingData) (time.Time, error)
	PostInterestAccrualCycle(ctx context.Context, facilityID string, data domain.InterestPostingData) (time.Time, error)
	PostCollateralUpdate(ctx context.Context, facilityID string, data domain.CollateralPostingData) (time.Time, error)
	PostRepayment(ctx context.Context, facilityID string, data domain.RepaymentPostingData) (time.Time, error)
	PostCompletion(ctx context.Context, facilityID string, data domain.CompletionPostingData) (time.Time, error)
	GetBalance(ctx context.Context, accountID string) (LedgerBalance, error)
}

// LedgerBalance is a snapshot of one ledger account.
type LedgerBalance struct {
	AccountID string
	Settled   int64
	Pending   int64
}

// PriceService provides the current BTC/USD price.
type PriceService interface {
	BTCPrice(ctx context.Context) (domain.PriceOfOneBTC, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Clock supplies "now". Each command reads it exactly once so a single
// command observes one consistent timestamp.
type Clock interface {
	Now() time.Time
}

// IdempotencyStore handles idempotency key storage for the API layer.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
