package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

const pgErrUniqueViolation = "23505"

// dbPool is the slice of pgxpool.Pool the repositories use, kept narrow so
// tests can substitute pgxmock.
type dbPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EventStore implements usecase.EventStore on top of the
// credit_facility_events table. The (facility_id, sequence) primary key is
// what turns a lost optimistic-concurrency race into ErrVersionConflict.
type EventStore struct {
	pool    dbPool
	txMgr   *TxManager
	retrier *Retrier
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *pgxpool.Pool, txMgr *TxManager, retrier *Retrier) *EventStore {
	return newEventStoreWithPool(pool, txMgr, retrier)
}

func newEventStoreWithPool(pool dbPool, txMgr *TxManager, retrier *Retrier) *EventStore {
	return &EventStore{pool: pool, txMgr: txMgr, retrier: retrier}
}

// Load reads the full ordered event log for a facility.
func (s *EventStore) Load(ctx context.Context, facilityID string) ([]domain.FacilityEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, payload
		FROM credit_facility_events
		WHERE facility_id = $1
		ORDER BY sequence`,
		facilityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.FacilityEvent
	for rows.Next() {
		var (
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, err
		}
		e, err := domain.UnmarshalFacilityEvent(eventType, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Append writes events after the expected version, in one transaction. A
// sequence collision means another writer got there first.
func (s *EventStore) Append(ctx context.Context, facilityID string, expectedVersion int, events []domain.FacilityEvent) error {
	if len(events) == 0 {
		return nil
	}

	return s.retrier.Retry(ctx, func() error {
		err := s.txMgr.WithinTx(ctx, func(tx pgx.Tx) error {
			for i, e := range events {
				payload, err := domain.MarshalFacilityEvent(e)
				if err != nil {
					return err
				}
				_, err = tx.Exec(ctx, `
					INSERT INTO credit_facility_events (facility_id, sequence, event_type, payload)
					VALUES ($1, $2, $3, $4)`,
					facilityID, expectedVersion+i+1, e.EventType(), payload,
				)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if isUniqueViolation(err) {
			return usecase.ErrVersionConflict
		}
		return err
	})
}

// ListFacilityIDs lists every facility with at least one event.
func (s *EventStore) ListFacilityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT facility_id
		FROM credit_facility_events
		ORDER BY facility_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
