package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"

	"github.com/iho/creditledger/internal/domain"
)

func testAccounts() domain.FacilityAccountIDs {
	return domain.FacilityAccountIDs{
		CollateralAccountID:          "acc-collateral",
		FacilityAccountID:            "acc-facility",
		DisbursedReceivableAccountID: "acc-disbursed",
		InterestReceivableAccountID:  "acc-interest-recv",
		InterestIncomeAccountID:      "acc-interest-inc",
		FeeIncomeAccountID:           "acc-fee",
	}
}

func newTestLedgerRepo(pool pgxmock.PgxPoolIface) *LedgerRepository {
	return newLedgerRepositoryWithPool(pool, newTxManagerWithPool(pool), NewRetrier(zerolog.Nop()))
}

func TestLedgerRepositoryPostActivationWritesEntries(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	mockPool.ExpectExec("INSERT INTO ledger_transactions").
		WithArgs("tx-1", "fac-1", "activation", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Facility pair plus structuring fee pair.
	wantEntries := []struct {
		account   string
		direction string
		amount    int64
	}{
		{"acc-facility", "debit", 100_000},
		{"acc-disbursed", "credit", 100_000},
		{"acc-disbursed", "debit", 1_000},
		{"acc-fee", "credit", 1_000},
	}
	for i, e := range wantEntries {
		mockPool.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("tx-1", i, e.account, e.direction, e.amount, "usd_cents").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mockPool.ExpectCommit()

	repo := newTestLedgerRepo(mockPool)
	_, err := repo.PostActivation(context.Background(), "fac-1", domain.ActivationPostingData{
		TxID:           "tx-1",
		Facility:       100_000,
		StructuringFee: 1_000,
		Accounts:       testAccounts(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestLedgerRepositoryPostIsIdempotentPerTxID(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBegin()
	// Conflict on the tx id: transaction already posted, no entries written.
	mockPool.ExpectExec("INSERT INTO ledger_transactions").
		WithArgs("tx-1", "fac-1", "repayment", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mockPool.ExpectCommit()

	repo := newTestLedgerRepo(mockPool)
	_, err := repo.PostRepayment(context.Background(), "fac-1", domain.RepaymentPostingData{
		TxID:          "tx-1",
		InterestPaid:  340,
		PrincipalPaid: 60_000,
		Accounts:      testAccounts(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestLedgerRepositoryGetBalance(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery("SELECT COALESCE").
		WithArgs("acc-disbursed").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(60_000)))

	repo := newTestLedgerRepo(mockPool)
	balance, err := repo.GetBalance(context.Background(), "acc-disbursed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance.Settled != 60_000 {
		t.Errorf("expected 60000, got %d", balance.Settled)
	}

	assertExpectations(t, mockPool)
}
