package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/creditledger/internal/domain"
	"github.com/iho/creditledger/internal/usecase"
)

// Omnibus accounts absorb the external side of cash and collateral movements
// so every transaction stays balanced.
const (
	omnibusCashAccountID       = "omnibus.cash"
	omnibusCollateralAccountID = "omnibus.collateral"
)

const (
	unitUsdCents = "usd_cents"
	unitSatoshis = "satoshis"
)

type entry struct {
	accountID string
	direction string // debit or credit
	amount    int64
	unit      string
}

func debit(accountID string, amount int64, unit string) entry {
	return entry{accountID: accountID, direction: "debit", amount: amount, unit: unit}
}

func credit(accountID string, amount int64, unit string) entry {
	return entry{accountID: accountID, direction: "credit", amount: amount, unit: unit}
}

// LedgerRepository implements usecase.LedgerService against the
// ledger_transactions and ledger_entries tables. Transactions insert with
// ON CONFLICT DO NOTHING on the command-generated tx id, which makes every
// posting safe to replay.
type LedgerRepository struct {
	pool    dbPool
	txMgr   *TxManager
	retrier *Retrier
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool, txMgr *TxManager, retrier *Retrier) *LedgerRepository {
	return newLedgerRepositoryWithPool(pool, txMgr, retrier)
}

func newLedgerRepositoryWithPool(pool dbPool, txMgr *TxManager, retrier *Retrier) *LedgerRepository {
	return &LedgerRepository{pool: pool, txMgr: txMgr, retrier: retrier}
}

func (r *LedgerRepository) PostActivation(ctx context.Context, facilityID string, data domain.ActivationPostingData) (time.Time, error) {
	entries := []entry{
		debit(data.Accounts.FacilityAccountID, int64(data.Facility), unitUsdCents),
		credit(data.Accounts.DisbursedReceivableAccountID, int64(data.Facility), unitUsdCents),
	}
	if !data.StructuringFee.IsZero() {
		entries = append(entries,
			debit(data.Accounts.DisbursedReceivableAccountID, int64(data.StructuringFee), unitUsdCents),
			credit(data.Accounts.FeeIncomeAccountID, int64(data.StructuringFee), unitUsdCents),
		)
	}
	return r.post(ctx, data.TxID, facilityID, "activation", entries)
}

func (r *LedgerRepository) PostDisbursal(ctx context.Context, facilityID string, data domain.DisbursalPostingData) (time.Time, error) {
	return r.post(ctx, data.TxID, facilityID, "disbursal", []entry{
		debit(data.Accounts.DisbursedReceivableAccountID, int64(data.Amount), unitUsdCents),
		credit(data.Accounts.FacilityAccountID, int64(data.Amount), unitUsdCents),
	})
}

func (r *LedgerRepository) PostInterestAccrualCycle(ctx context.Context, facilityID string, data domain.InterestPostingData) (time.Time, error) {
	return r.post(ctx, data.TxID, facilityID, "interest_accrual_cycle", []entry{
		debit(data.Accounts.InterestReceivableAccountID, int64(data.Interest), unitUsdCents),
		credit(data.Accounts.InterestIncomeAccountID, int64(data.Interest), unitUsdCents),
	})
}

func (r *LedgerRepository) PostCollateralUpdate(ctx context.Context, facilityID string, data domain.CollateralPostingData) (time.Time, error) {
	var entries []entry
	if data.Action == domain.CollateralActionAdd {
		entries = []entry{
			debit(data.Accounts.CollateralAccountID, int64(data.Collateral), unitSatoshis),
			credit(omnibusCollateralAccountID, int64(data.Collateral), unitSatoshis),
		}
	} else {
		entries = []entry{
			debit(omnibusCollateralAccountID, int64(data.Collateral), unitSatoshis),
			credit(data.Accounts.CollateralAccountID, int64(data.Collateral), unitSatoshis),
		}
	}
	return r.post(ctx, data.TxID, facilityID, "collateral_update", entries)
}

func (r *LedgerRepository) PostRepayment(ctx context.Context, facilityID string, data domain.RepaymentPostingData) (time.Time, error) {
	var entries []entry
	if !data.InterestPaid.IsZero() {
		entries = append(entries,
			debit(omnibusCashAccountID, int64(data.InterestPaid), unitUsdCents),
			credit(data.Accounts.InterestReceivableAccountID, int64(data.InterestPaid), unitUsdCents),
		)
	}
	if !data.PrincipalPaid.IsZero() {
		entries = append(entries,
			debit(omnibusCashAccountID, int64(data.PrincipalPaid), unitUsdCents),
			credit(data.Accounts.DisbursedReceivableAccountID, int64(data.PrincipalPaid), unitUsdCents),
		)
	}
	return r.post(ctx, data.TxID, facilityID, "repayment", entries)
}

func (r *LedgerRepository) PostCompletion(ctx context.Context, facilityID string, data domain.CompletionPostingData) (time.Time, error) {
	var entries []entry
	if !data.Collateral.IsZero() {
		entries = []entry{
			debit(omnibusCollateralAccountID, int64(data.Collateral), unitSatoshis),
			credit(data.Accounts.CollateralAccountID, int64(data.Collateral), unitSatoshis),
		}
	}
	return r.post(ctx, data.TxID, facilityID, "completion", entries)
}

// GetBalance sums settled entries for one account. Debits increase, credits
// decrease.
func (r *LedgerRepository) GetBalance(ctx context.Context, accountID string) (usecase.LedgerBalance, error) {
	var settled int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'debit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE account_id = $1`,
		accountID,
	).Scan(&settled)
	if err != nil {
		return usecase.LedgerBalance{}, err
	}
	return usecase.LedgerBalance{AccountID: accountID, Settled: settled}, nil
}

func (r *LedgerRepository) post(ctx context.Context, txID, facilityID, kind string, entries []entry) (time.Time, error) {
	postedAt := time.Now().UTC()

	err := r.retrier.Retry(ctx, func() error {
		return r.txMgr.WithinTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO ledger_transactions (id, facility_id, kind, posted_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO NOTHING`,
				txID, facilityID, kind, postedAt,
			)
			if err != nil {
				return err
			}
			// Already posted under this tx id, keep the original entries.
			if tag.RowsAffected() == 0 {
				return nil
			}

			for i, e := range entries {
				_, err := tx.Exec(ctx, `
					INSERT INTO ledger_entries (transaction_id, idx, account_id, direction, amount, unit)
					VALUES ($1, $2, $3, $4, $5, $6)`,
					txID, i, e.accountID, e.direction, e.amount, e.unit,
				)
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	return postedAt, nil
}
