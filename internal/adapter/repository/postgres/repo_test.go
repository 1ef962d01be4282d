package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

var repoNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func beginMockTx(t *testing.T, pool pgxmock.PgxPoolIface) *Tx {
	t.Helper()
	pool.ExpectBegin()
	tx, err := newTxManagerWithPool(pool).Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx.(*Tx)
}

func TestEntryCreateTargetsKindTable(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)

	pool.ExpectQuery(regexp.QuoteMeta("INSERT INTO pool_balance_history (currency_code, balance_before")).
		WithArgs(
			"USD",
			decimalToNumeric(decimal.Zero),
			decimalToNumeric(decimal.NewFromInt(100)),
			decimalToNumeric(decimal.NewFromInt(100)),
			"order",
			(*int64)(nil),
			"",
			timeToPgTimestamptz(repoNow),
			timeToPgTimestamptz(repoNow),
			"",
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	entry := &domain.LedgerEntry{
		Account:           domain.PoolAccount("usd"),
		TransactionAmount: decimal.NewFromInt(100),
		BalanceAfter:      decimal.NewFromInt(100),
		TransactionType:   domain.TransactionTypeOrder,
		TransactionDate:   repoNow,
		CreatedAt:         repoNow,
	}
	if err := newEntryRepository(pool).Create(context.Background(), tx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.ID != 42 {
		t.Fatalf("expected id 42, got %d", entry.ID)
	}
	assertExpectations(t, pool)
}

func TestEntryMarkDeletedReportsMissingRows(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)

	pool.ExpectExec(regexp.QuoteMeta("UPDATE bank_balance_history SET is_deleted = TRUE")).
		WithArgs(timeToPgTimestamptz(repoNow), "auditor", []int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := newEntryRepository(pool).MarkDeleted(context.Background(), tx, domain.AccountKindBank, []int64{1, 2}, repoNow, "auditor")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestEntryLatestActiveBeforeWithoutAnchor(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)

	pool.ExpectQuery(regexp.QuoteMeta("FROM customer_balance_history")).
		WithArgs(int64(7), "EUR", int64(10)).
		WillReturnError(pgx.ErrNoRows)

	entry, err := newEntryRepository(pool).LatestActiveBefore(context.Background(), tx, domain.CustomerAccount(7, "EUR"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected no anchor, got %+v", entry)
	}
}

func TestEntryRepositoryRejectsForeignTransaction(t *testing.T) {
	pool := newMockPool(t)

	err := newEntryRepository(pool).Create(context.Background(), fakeTx{}, &domain.LedgerEntry{Account: domain.BankAccount(1)})
	if !errors.Is(err, ErrForeignTx) {
		t.Fatalf("expected ErrForeignTx, got %v", err)
	}

	_, err = newEntryRepository(pool).ListActiveByTransactionDate(context.Background(), fakeTx{}, "wallet")
	if !errors.Is(err, domain.ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestBalanceGetOrCreateForUpdate(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)

	pool.ExpectExec(regexp.QuoteMeta("INSERT INTO customer_balances (customer_id, currency_code, balance, last_updated)")).
		WithArgs(int64(3), "IRR", timeToPgTimestamptz(repoNow)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectQuery(regexp.QuoteMeta("FROM customer_balances WHERE customer_id = $1 AND currency_code = $2 FOR UPDATE")).
		WithArgs(int64(3), "IRR").
		WillReturnRows(pgxmock.NewRows([]string{"customer_id", "currency_code", "bank_account_id", "balance", "last_updated"}).
			AddRow(int64(3), "IRR", int64(0), decimalToNumeric(decimal.Zero), timeToPgTimestamptz(repoNow)))

	balance, created, err := newBalanceRepository(pool).GetOrCreateForUpdate(context.Background(), tx, domain.CustomerAccount(3, "irr"), repoNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected row to be created")
	}
	if balance.Account != domain.CustomerAccount(3, "IRR") || !balance.Balance.IsZero() {
		t.Fatalf("unexpected balance %+v", balance)
	}
	assertExpectations(t, pool)
}

func TestBalanceSetMissingRow(t *testing.T) {
	pool := newMockPool(t)
	tx := beginMockTx(t, pool)

	pool.ExpectExec(regexp.QuoteMeta("UPDATE pool_balances SET balance = $1, last_updated = $2 WHERE currency_code = $3")).
		WithArgs(decimalToNumeric(decimal.NewFromInt(5)), timeToPgTimestamptz(repoNow), "USD").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := newBalanceRepository(pool).Set(context.Background(), tx, domain.PoolAccount("USD"), decimal.NewFromInt(5), repoNow)
	if !errors.Is(err, domain.ErrBalanceNotFound) {
		t.Fatalf("expected ErrBalanceNotFound, got %v", err)
	}
}

func TestBalanceGetNotFound(t *testing.T) {
	pool := newMockPool(t)

	pool.ExpectQuery(regexp.QuoteMeta("FROM bank_balances WHERE bank_account_id = $1")).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := newBalanceRepository(pool).Get(context.Background(), domain.BankAccount(9))
	if !errors.Is(err, domain.ErrBalanceNotFound) {
		t.Fatalf("expected ErrBalanceNotFound, got %v", err)
	}
}

func TestOutboxMarkPublishedUnknownEvent(t *testing.T) {
	pool := newMockPool(t)

	pool.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events SET published = TRUE")).
		WithArgs("missing", timeToPgTimestamptz(repoNow)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := newOutboxRepository(pool).MarkPublished(context.Background(), "missing", repoNow)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMasterDataNotFound(t *testing.T) {
	pool := newMockPool(t)
	repo := &MasterDataRepository{db: pool}

	pool.ExpectQuery(regexp.QuoteMeta("FROM currencies WHERE code = $1")).
		WithArgs("USD").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetCurrencyByCode(context.Background(), " usd")
	if !errors.Is(err, domain.ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
}

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "100", "-5000000", "0.01", "123.456789"} {
		d := decimal.RequireFromString(s)
		if got := numericToDecimal(decimalToNumeric(d)); !got.Equal(d) {
			t.Fatalf("round trip of %s gave %s", s, got)
		}
	}
	if !numericToDecimal(pgtype.Numeric{}).IsZero() {
		t.Fatalf("expected NULL numeric to decode as zero")
	}
}

type fakeTx struct{}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }
