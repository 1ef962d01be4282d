package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// BalanceRepository implements usecase.BalanceRepository.
type BalanceRepository struct {
	store *Store
}

// GetOrCreateForUpdate returns the balance, inserting it at zero when
// absent. The store-wide transaction lock stands in for the row lock.
func (r *BalanceRepository) GetOrCreateForUpdate(_ context.Context, tx usecase.Transaction, account domain.AccountKey, now time.Time) (*domain.CurrentBalance, bool, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, false, err
	}
	if err := account.Validate(); err != nil {
		return nil, false, err
	}

	if b, ok := st.balances[account]; ok {
		return &b, false, nil
	}

	b := domain.CurrentBalance{Account: account, Balance: decimal.Zero, LastUpdated: now}
	st.balances[account] = b
	return &b, true, nil
}

// Get returns the committed balance of an account.
func (r *BalanceRepository) Get(_ context.Context, account domain.AccountKey) (*domain.CurrentBalance, error) {
	var (
		b  domain.CurrentBalance
		ok bool
	)
	r.store.committed(func(st *state) {
		b, ok = st.balances[account]
	})
	if !ok {
		return nil, domain.ErrBalanceNotFound
	}
	return &b, nil
}

// Set overwrites the balance of an existing row.
func (r *BalanceRepository) Set(_ context.Context, tx usecase.Transaction, account domain.AccountKey, balance decimal.Decimal, updatedAt time.Time) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	if _, ok := st.balances[account]; !ok {
		return domain.ErrBalanceNotFound
	}
	st.balances[account] = domain.CurrentBalance{Account: account, Balance: balance, LastUpdated: updatedAt}
	return nil
}

// List returns every committed balance of a kind ordered by key.
func (r *BalanceRepository) List(_ context.Context, kind domain.AccountKind) ([]*domain.CurrentBalance, error) {
	var out []*domain.CurrentBalance
	r.store.committed(func(st *state) {
		for k, b := range st.balances {
			if k.Kind != kind {
				continue
			}
			out = append(out, &b)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Less(out[j].Account) })
	return out, nil
}

// LockKind is satisfied by the transaction lock.
func (r *BalanceRepository) LockKind(_ context.Context, tx usecase.Transaction, _ domain.AccountKind) error {
	_, err := r.store.working(tx)
	return err
}

// ResetKind sets every balance of a kind to zero.
func (r *BalanceRepository) ResetKind(_ context.Context, tx usecase.Transaction, kind domain.AccountKind, updatedAt time.Time) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	for k := range st.balances {
		if k.Kind == kind {
			st.balances[k] = domain.CurrentBalance{Account: k, Balance: decimal.Zero, LastUpdated: updatedAt}
		}
	}
	return nil
}
