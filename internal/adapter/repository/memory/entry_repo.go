package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository. Each kind has its own
// id sequence, so an entry with ID n lives at index n-1 of its kind.
type EntryRepository struct {
	store *Store
}

// Create inserts the entry and assigns its ID.
func (r *EntryRepository) Create(_ context.Context, tx usecase.Transaction, entry *domain.LedgerEntry) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}
	if err := entry.Account.Validate(); err != nil {
		return err
	}
	if !entry.TransactionType.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTransactionType, entry.TransactionType)
	}

	kind := entry.Account.Kind
	entry.ID = int64(len(st.entries[kind]) + 1)
	st.entries[kind] = append(st.entries[kind], *entry)
	return nil
}

// FindActiveByReference returns active entries posted for a reference.
func (r *EntryRepository) FindActiveByReference(_ context.Context, tx usecase.Transaction, kind domain.AccountKind, referenceID int64, txType domain.TransactionType) ([]*domain.LedgerEntry, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	return activeEntries(st, kind, func(e *domain.LedgerEntry) bool {
		return e.ReferenceID != nil && *e.ReferenceID == referenceID && e.TransactionType == txType
	}), nil
}

// LatestActiveBefore returns the newest active entry with ID < beforeID.
func (r *EntryRepository) LatestActiveBefore(_ context.Context, tx usecase.Transaction, account domain.AccountKey, beforeID int64) (*domain.LedgerEntry, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	matches := activeEntries(st, account.Kind, func(e *domain.LedgerEntry) bool {
		return e.Account == account && e.ID < beforeID
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[len(matches)-1], nil
}

// ListActiveAfter returns active entries with ID > afterID in ID order.
func (r *EntryRepository) ListActiveAfter(_ context.Context, tx usecase.Transaction, account domain.AccountKey, afterID int64) ([]*domain.LedgerEntry, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	return activeEntries(st, account.Kind, func(e *domain.LedgerEntry) bool {
		return e.Account == account && e.ID > afterID
	}), nil
}

// ListActiveByTransactionDate returns every active entry of a kind ordered
// by (transaction date, id).
func (r *EntryRepository) ListActiveByTransactionDate(_ context.Context, tx usecase.Transaction, kind domain.AccountKind) ([]*domain.LedgerEntry, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	out := activeEntries(st, kind, func(*domain.LedgerEntry) bool { return true })
	sortByTransactionDate(out)
	return out, nil
}

// LatestActiveByCreation returns the newest committed active entry by
// (created_at, id).
func (r *EntryRepository) LatestActiveByCreation(_ context.Context, account domain.AccountKey) (*domain.LedgerEntry, error) {
	var latest *domain.LedgerEntry
	for _, e := range r.committedEntries(account.Kind, func(e *domain.LedgerEntry) bool { return e.Account == account }) {
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) ||
			(e.CreatedAt.Equal(latest.CreatedAt) && e.ID > latest.ID) {
			latest = e
		}
	}
	return latest, nil
}

// MarkDeleted stamps the soft-delete fields of the given entries.
func (r *EntryRepository) MarkDeleted(_ context.Context, tx usecase.Transaction, kind domain.AccountKind, ids []int64, deletedAt time.Time, deletedBy string) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	entries := st.entries[kind]
	for _, id := range ids {
		if id < 1 || id > int64(len(entries)) {
			return fmt.Errorf("%w: %s #%d", domain.ErrEntryNotFound, kind, id)
		}
		at := deletedAt
		e := &entries[id-1]
		e.IsDeleted = true
		e.DeletedAt = &at
		e.DeletedBy = deletedBy
	}
	return nil
}

// UpdateSnapshots rewrites balance_before/balance_after of the given entries.
func (r *EntryRepository) UpdateSnapshots(_ context.Context, tx usecase.Transaction, kind domain.AccountKind, snapshots []domain.BalanceSnapshot) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	entries := st.entries[kind]
	for _, s := range snapshots {
		if s.EntryID < 1 || s.EntryID > int64(len(entries)) {
			return fmt.Errorf("%w: %s #%d", domain.ErrEntryNotFound, kind, s.EntryID)
		}
		e := &entries[s.EntryID-1]
		e.BalanceBefore = s.BalanceBefore
		e.BalanceAfter = s.BalanceAfter
	}
	return nil
}

// History returns the account's committed active entries ordered by
// (transaction date, id).
func (r *EntryRepository) History(_ context.Context, account domain.AccountKey, filter domain.HistoryFilter) ([]*domain.LedgerEntry, error) {
	out := r.committedEntries(account.Kind, func(e *domain.LedgerEntry) bool {
		return e.Account == account && filter.Contains(e.TransactionDate)
	})
	sortByTransactionDate(out)
	return out, nil
}

func (r *EntryRepository) committedEntries(kind domain.AccountKind, keep func(*domain.LedgerEntry) bool) []*domain.LedgerEntry {
	var out []*domain.LedgerEntry
	r.store.committed(func(st *state) {
		out = activeEntries(st, kind, keep)
	})
	return out
}

// activeEntries returns copies of the active entries of a kind matching
// keep, in ID order.
func activeEntries(st *state, kind domain.AccountKind, keep func(*domain.LedgerEntry) bool) []*domain.LedgerEntry {
	var out []*domain.LedgerEntry
	for i := range st.entries[kind] {
		e := st.entries[kind][i]
		if e.IsDeleted || !keep(&e) {
			continue
		}
		out = append(out, &e)
	}
	return out
}

func sortByTransactionDate(entries []*domain.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TransactionDate.Equal(entries[j].TransactionDate) {
			return entries[i].TransactionDate.Before(entries[j].TransactionDate)
		}
		return entries[i].ID < entries[j].ID
	})
}
