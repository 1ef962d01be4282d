package usecase_test

import (
	"bytes"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/fxledger/internal/adapter/repository/memory"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

const (
	usdID int64 = 1
	eurID int64 = 2
	irrID int64 = 3

	customerID int64 = 1
	otherID    int64 = 2

	usdBankID int64 = 1
	irrBankID int64 = 2
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock advances one second on every call so creation order is stable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDGen struct {
	n atomic.Int64
}

func (g *seqIDGen) Generate() string {
	return "evt-" + strconv.FormatInt(g.n.Add(1), 10)
}

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, usecase.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *mapCache) CompareAndSwap(_ context.Context, key string, old, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.data[key]; !ok || !bytes.Equal(cur, old) {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.deletes++
	return nil
}

type fixture struct {
	store      *memory.Store
	cache      *mapCache
	processor  *usecase.TransactionProcessor
	deleter    *usecase.SoftDeleteRecalculator
	validator  *usecase.ConsistencyValidator
	reconciler *usecase.DateReconciler
	query      *usecase.BalanceQuery
}

type fixtureOption func(*usecase.LedgerDeps)

func withPoolSeed(balance string) fixtureOption {
	return func(d *usecase.LedgerDeps) {
		d.PoolSeed = usecase.PoolSeedPolicy{Enabled: true, Balance: decimal.RequireFromString(balance)}
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddCurrency(domain.Currency{ID: usdID, Code: "USD", Name: "US Dollar"})
	store.AddCurrency(domain.Currency{ID: eurID, Code: "EUR", Name: "Euro"})
	store.AddCurrency(domain.Currency{ID: irrID, Code: "IRR", Name: "Iranian Rial"})
	store.AddCustomer(domain.Customer{ID: customerID, Name: "Alice"})
	store.AddCustomer(domain.Customer{ID: otherID, Name: "Bob"})
	store.AddBankAccount(domain.BankAccountInfo{ID: usdBankID, Name: "USD bank", CurrencyCode: "USD"})
	store.AddBankAccount(domain.BankAccountInfo{ID: irrBankID, Name: "IRR bank", CurrencyCode: "IRR"})

	clock := &stepClock{now: baseTime}
	cache := newMapCache()

	deps := usecase.LedgerDeps{
		TxManager:  store.TxManager(),
		Entries:    store.Entries(),
		Balances:   store.Balances(),
		Orders:     store.Orders(),
		Documents:  store.Documents(),
		MasterData: store.MasterData(),
		Outbox:     store.Outbox(),
		IDGen:      &seqIDGen{},
		Cache:      cache,
		Logger:     zerolog.Nop(),
		Clock:      clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		store:      store,
		cache:      cache,
		processor:  usecase.NewTransactionProcessor(deps),
		deleter:    usecase.NewSoftDeleteRecalculator(deps),
		validator:  usecase.NewConsistencyValidator(deps),
		reconciler: usecase.NewDateReconciler(deps),
		query:      usecase.NewBalanceQuery(store.Entries(), store.Balances(), cache, nil, zerolog.Nop()),
	}
}

func (f *fixture) balance(t *testing.T, account domain.AccountKey) decimal.Decimal {
	t.Helper()
	b, err := f.query.GetBalance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func (f *fixture) history(t *testing.T, account domain.AccountKey) []*domain.LedgerEntry {
	t.Helper()
	entries, err := f.query.GetHistory(context.Background(), account, domain.HistoryFilter{})
	require.NoError(t, err)
	return entries
}

func (f *fixture) adjust(t *testing.T, account domain.AccountKey, amount string, date *time.Time) *domain.LedgerEntry {
	t.Helper()
	entry, err := f.processor.AdjustBalance(context.Background(), usecase.AdjustBalanceInput{
		Account:         account,
		Amount:          decimal.RequireFromString(amount),
		Reason:          "test adjustment",
		PerformedBy:     "tester",
		TransactionDate: date,
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) exchange(t *testing.T, from, to int64, fromAmount, toAmount string) *domain.Order {
	t.Helper()
	order, err := f.processor.ProcessOrderCreation(context.Background(), &domain.Order{
		CustomerID:     customerID,
		FromCurrencyID: from,
		ToCurrencyID:   to,
		FromAmount:     decimal.RequireFromString(fromAmount),
		ToAmount:       decimal.RequireFromString(toAmount),
	}, "tester")
	require.NoError(t, err)
	return order
}

// requireLedgerInvariants checks every entry's arithmetic and that every
// balance equals the sum of its account's active entries.
func (f *fixture) requireLedgerInvariants(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for _, kind := range domain.AccountKinds {
		balances, err := f.store.Balances().List(ctx, kind)
		require.NoError(t, err)

		for _, b := range balances {
			entries, err := f.store.Entries().History(ctx, b.Account, domain.HistoryFilter{})
			require.NoError(t, err)

			sum := decimal.Zero
			for _, e := range entries {
				require.NoError(t, e.Verify())
				sum = sum.Add(e.TransactionAmount)
			}
			require.Truef(t, sum.Equal(b.Balance), "%s: balance %s, entries sum %s", b.Account, b.Balance, sum)
		}
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}
