package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// BalanceRepository implements usecase.BalanceRepository over the per-kind
// *_balances tables.
type BalanceRepository struct {
	db querier
}

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return newBalanceRepository(pool)
}

func newBalanceRepository(db querier) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// GetOrCreateForUpdate inserts the row at zero if missing and then locks it.
func (r *BalanceRepository) GetOrCreateForUpdate(ctx context.Context, tx usecase.Transaction, account domain.AccountKey, now time.Time) (*domain.CurrentBalance, bool, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, false, err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return nil, false, err
	}

	keys := spec.keyArgs(account)
	insert := fmt.Sprintf(`INSERT INTO %s (%s, balance, last_updated) VALUES (%s, 0, $%d)
		ON CONFLICT DO NOTHING`, spec.balances, spec.keyList(), placeholders(1, len(keys)), len(keys)+1)

	tag, err := q.Exec(ctx, insert, append(keys, timeToPgTimestamptz(now))...)
	if err != nil {
		return nil, false, err
	}

	sel := fmt.Sprintf(`SELECT %s, balance, last_updated FROM %s WHERE %s FOR UPDATE`,
		spec.keySelect, spec.balances, spec.keyWhere(1))

	balance, err := scanBalance(spec, q.QueryRow(ctx, sel, keys...))
	if err != nil {
		return nil, false, err
	}

	return balance, tag.RowsAffected() == 1, nil
}

// Get reads a balance without locking.
func (r *BalanceRepository) Get(ctx context.Context, account domain.AccountKey) (*domain.CurrentBalance, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT %s, balance, last_updated FROM %s WHERE %s`,
		spec.keySelect, spec.balances, spec.keyWhere(1))

	balance, err := scanBalance(spec, r.db.QueryRow(ctx, sql, spec.keyArgs(account)...))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBalanceNotFound, account)
	}
	return balance, err
}

// Set overwrites a balance row that the transaction has already locked.
func (r *BalanceRepository) Set(ctx context.Context, tx usecase.Transaction, account domain.AccountKey, balance decimal.Decimal, updatedAt time.Time) error {
	spec, err := specForAccount(account)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	keys := spec.keyArgs(account)
	sql := fmt.Sprintf(`UPDATE %s SET balance = $1, last_updated = $2 WHERE %s`, spec.balances, spec.keyWhere(3))

	tag, err := q.Exec(ctx, sql, append([]any{decimalToNumeric(balance), timeToPgTimestamptz(updatedAt)}, keys...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrBalanceNotFound, account)
	}
	return nil
}

// List returns every balance of a kind ordered by key.
func (r *BalanceRepository) List(ctx context.Context, kind domain.AccountKind) ([]*domain.CurrentBalance, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT %s, balance, last_updated FROM %s ORDER BY %s`,
		spec.keySelect, spec.balances, spec.keyList())

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.CurrentBalance, error) {
		return scanBalance(spec, row)
	})
}

// LockKind blocks concurrent writers to a kind until the transaction ends.
// Plain reads keep working.
func (r *BalanceRepository) LockKind(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, fmt.Sprintf(`LOCK TABLE %s, %s IN EXCLUSIVE MODE`, spec.balances, spec.history))
	return err
}

// ResetKind zeroes every balance of a kind.
func (r *BalanceRepository) ResetKind(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind, updatedAt time.Time) error {
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, fmt.Sprintf(`UPDATE %s SET balance = 0, last_updated = $1`, spec.balances), timeToPgTimestamptz(updatedAt))
	return err
}

func scanBalance(spec tableSpec, row pgx.Row) (*domain.CurrentBalance, error) {
	var (
		customerID, bankAccountID int64
		currencyCode              string
		balance                   pgtype.Numeric
		lastUpdated               pgtype.Timestamptz
	)

	if err := row.Scan(&customerID, &currencyCode, &bankAccountID, &balance, &lastUpdated); err != nil {
		return nil, err
	}

	return &domain.CurrentBalance{
		Account:     spec.account(customerID, currencyCode, bankAccountID),
		Balance:     numericToDecimal(balance),
		LastUpdated: lastUpdated.Time,
	}, nil
}
