package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

const entryColumns = `id, %s, balance_before, transaction_amount, balance_after, transaction_type,
	reference_id, description, transaction_date, created_at, created_by, is_deleted, deleted_at, deleted_by`

// EntryRepository implements usecase.EntryRepository over the per-kind
// *_balance_history tables.
type EntryRepository struct {
	db querier
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return newEntryRepository(pool)
}

func newEntryRepository(db querier) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create inserts the entry and assigns its ID.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	spec, err := specForAccount(entry.Account)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	keys := spec.keyArgs(entry.Account)
	args := append(keys,
		decimalToNumeric(entry.BalanceBefore),
		decimalToNumeric(entry.TransactionAmount),
		decimalToNumeric(entry.BalanceAfter),
		string(entry.TransactionType),
		entry.ReferenceID,
		entry.Description,
		timeToPgTimestamptz(entry.TransactionDate),
		timeToPgTimestamptz(entry.CreatedAt),
		entry.CreatedBy,
	)

	sql := fmt.Sprintf(`INSERT INTO %s (%s, balance_before, transaction_amount, balance_after,
		transaction_type, reference_id, description, transaction_date, created_at, created_by)
		VALUES (%s) RETURNING id`, spec.history, spec.keyList(), placeholders(1, len(args)))

	return q.QueryRow(ctx, sql, args...).Scan(&entry.ID)
}

// FindActiveByReference returns non-deleted entries posted for a reference.
func (r *EntryRepository) FindActiveByReference(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind, referenceID int64, txType domain.TransactionType) ([]*domain.LedgerEntry, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE reference_id = $1 AND transaction_type = $2 AND NOT is_deleted
		ORDER BY id`, spec.keySelect, spec.history)

	return queryEntries(ctx, q, spec, sql, referenceID, string(txType))
}

// LatestActiveBefore returns the anchor entry for a replay, or nil.
func (r *EntryRepository) LatestActiveBefore(ctx context.Context, tx usecase.Transaction, account domain.AccountKey, beforeID int64) (*domain.LedgerEntry, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	keys := spec.keyArgs(account)
	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE %s AND id < $%d AND NOT is_deleted
		ORDER BY id DESC LIMIT 1`, spec.keySelect, spec.history, spec.keyWhere(1), len(keys)+1)

	return queryLatest(ctx, q, spec, sql, append(keys, beforeID)...)
}

// ListActiveAfter returns entries of the account after afterID in ID order.
func (r *EntryRepository) ListActiveAfter(ctx context.Context, tx usecase.Transaction, account domain.AccountKey, afterID int64) ([]*domain.LedgerEntry, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	keys := spec.keyArgs(account)
	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE %s AND id > $%d AND NOT is_deleted
		ORDER BY id`, spec.keySelect, spec.history, spec.keyWhere(1), len(keys)+1)

	return queryEntries(ctx, q, spec, sql, append(keys, afterID)...)
}

// ListActiveByTransactionDate returns every active entry of a kind in
// (transaction_date, id) order.
func (r *EntryRepository) ListActiveByTransactionDate(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind) ([]*domain.LedgerEntry, error) {
	spec, err := specFor(kind)
	if err != nil {
		return nil, err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE NOT is_deleted
		ORDER BY transaction_date, id`, spec.keySelect, spec.history)

	return queryEntries(ctx, q, spec, sql)
}

// LatestActiveByCreation returns the entry the balance cache should match.
func (r *EntryRepository) LatestActiveByCreation(ctx context.Context, account domain.AccountKey) (*domain.LedgerEntry, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE %s AND NOT is_deleted
		ORDER BY created_at DESC, id DESC LIMIT 1`, spec.keySelect, spec.history, spec.keyWhere(1))

	return queryLatest(ctx, r.db, spec, sql, spec.keyArgs(account)...)
}

// MarkDeleted flags entries as soft-deleted.
func (r *EntryRepository) MarkDeleted(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind, ids []int64, deletedAt time.Time, deletedBy string) error {
	if len(ids) == 0 {
		return nil
	}
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`UPDATE %s SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2
		WHERE id = ANY($3) AND NOT is_deleted`, spec.history)

	tag, err := q.Exec(ctx, sql, timeToPgTimestamptz(deletedAt), deletedBy, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return fmt.Errorf("%w: marked %d of %d %s entries", domain.ErrEntryNotFound, tag.RowsAffected(), len(ids), kind)
	}
	return nil
}

// UpdateSnapshots rewrites balance_before/balance_after in one batch.
func (r *EntryRepository) UpdateSnapshots(ctx context.Context, tx usecase.Transaction, kind domain.AccountKind, snapshots []domain.BalanceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	spec, err := specFor(kind)
	if err != nil {
		return err
	}
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf(`UPDATE %s SET balance_before = $1, balance_after = $2 WHERE id = $3`, spec.history)

	batch := &pgx.Batch{}
	for _, s := range snapshots {
		batch.Queue(sql, decimalToNumeric(s.BalanceBefore), decimalToNumeric(s.BalanceAfter), s.EntryID)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for _, s := range snapshots {
		tag, err := results.Exec()
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s entry %d", domain.ErrEntryNotFound, kind, s.EntryID)
		}
	}
	return results.Close()
}

// History returns active entries of the account in (transaction_date, id)
// order, optionally bounded by business date.
func (r *EntryRepository) History(ctx context.Context, account domain.AccountKey, filter domain.HistoryFilter) ([]*domain.LedgerEntry, error) {
	spec, err := specForAccount(account)
	if err != nil {
		return nil, err
	}

	keys := spec.keyArgs(account)
	from, to := len(keys)+1, len(keys)+2
	sql := fmt.Sprintf(`SELECT `+entryColumns+` FROM %s
		WHERE %s AND NOT is_deleted
		  AND ($%d::TIMESTAMPTZ IS NULL OR transaction_date >= $%d)
		  AND ($%d::TIMESTAMPTZ IS NULL OR transaction_date <= $%d)
		ORDER BY transaction_date, id`, spec.keySelect, spec.history, spec.keyWhere(1), from, from, to, to)

	return queryEntries(ctx, r.db, spec, sql, append(keys, filter.From, filter.To)...)
}

func queryEntries(ctx context.Context, q querier, spec tableSpec, sql string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.LedgerEntry, error) {
		return scanEntry(spec, row)
	})
}

func queryLatest(ctx context.Context, q querier, spec tableSpec, sql string, args ...any) (*domain.LedgerEntry, error) {
	entry, err := scanEntry(spec, q.QueryRow(ctx, sql, args...))
	if isNoRows(err) {
		return nil, nil
	}
	return entry, err
}

func scanEntry(spec tableSpec, row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e                            domain.LedgerEntry
		customerID, bankAccountID    int64
		currencyCode, txType         string
		before, amount, after        pgtype.Numeric
		txDate, createdAt, deletedAt pgtype.Timestamptz
		deletedBy                    pgtype.Text
	)

	err := row.Scan(
		&e.ID, &customerID, &currencyCode, &bankAccountID,
		&before, &amount, &after, &txType,
		&e.ReferenceID, &e.Description, &txDate, &createdAt, &e.CreatedBy,
		&e.IsDeleted, &deletedAt, &deletedBy,
	)
	if err != nil {
		return nil, err
	}

	e.Account = spec.account(customerID, currencyCode, bankAccountID)
	e.BalanceBefore = numericToDecimal(before)
	e.TransactionAmount = numericToDecimal(amount)
	e.BalanceAfter = numericToDecimal(after)
	e.TransactionType = domain.TransactionType(txType)
	e.TransactionDate = txDate.Time
	e.CreatedAt = createdAt.Time
	e.DeletedAt = timestamptzPtr(deletedAt)
	e.DeletedBy = textValue(deletedBy)

	return &e, nil
}
