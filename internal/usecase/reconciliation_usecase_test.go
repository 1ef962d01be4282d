package usecase_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/fxledger/internal/adapter/repository/memory"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// tamper overwrites a cached balance behind the ledger's back.
func tamper(t *testing.T, store *memory.Store, account domain.AccountKey, balance string) {
	t.Helper()
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, _, err = store.Balances().GetOrCreateForUpdate(ctx, tx, account, baseTime)
	require.NoError(t, err)
	require.NoError(t, store.Balances().Set(ctx, tx, account, dec(balance), baseTime))
	require.NoError(t, tx.Commit(ctx))
}

func TestValidateBalanceConsistency_ReportsWithoutHealing(t *testing.T) {
	f := newFixture(t)
	usd := domain.CustomerAccount(customerID, "USD")
	f.adjust(t, usd, "40", nil)

	report, err := f.validator.ValidateBalanceConsistency(context.Background())
	require.NoError(t, err)
	require.True(t, report.Consistent)
	assert.Empty(t, report.Mismatches)

	tamper(t, f.store, usd, "45")

	report, err = f.validator.ValidateBalanceConsistency(context.Background())
	require.NoError(t, err)
	require.False(t, report.Consistent)
	require.Len(t, report.Mismatches, 1)

	m := report.Mismatches[0]
	assert.Equal(t, usd, m.Account)
	requireDecimal(t, "45", m.Cached)
	requireDecimal(t, "40", m.Expected)
	requireDecimal(t, "5", m.Difference)

	stored, err := f.store.Balances().Get(context.Background(), usd)
	require.NoError(t, err)
	requireDecimal(t, "45", stored.Balance)
}

func TestValidateBalanceConsistency_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		cached     string
		consistent bool
	}{
		{name: "exact", cached: "10", consistent: true},
		{name: "within tolerance", cached: "10.005", consistent: true},
		{name: "at tolerance", cached: "10.01", consistent: true},
		{name: "beyond tolerance", cached: "10.02", consistent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			pool := domain.PoolAccount("USD")
			f.adjust(t, pool, "10", nil)
			tamper(t, f.store, pool, tt.cached)

			report, err := f.validator.ValidateBalanceConsistency(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.consistent, report.Consistent)
		})
	}
}

func TestValidateBalanceConsistency_EmptyAccountExpectsZero(t *testing.T) {
	f := newFixture(t)
	tamper(t, f.store, domain.BankAccount(usdBankID), "3")

	report, err := f.validator.ValidateBalanceConsistency(context.Background())
	require.NoError(t, err)
	require.False(t, report.Consistent)
	requireDecimal(t, "0", report.Mismatches[0].Expected)
}

func TestRecalculateAllBalancesFromHistory(t *testing.T) {
	f := newFixture(t)
	usd := domain.CustomerAccount(customerID, "USD")
	f.adjust(t, usd, "40", nil)
	f.exchange(t, usdID, irrID, "10", "500000")

	tamper(t, f.store, usd, "999")
	tamper(t, f.store, domain.BankAccount(irrBankID), "7")

	repaired, err := f.validator.RecalculateAllBalancesFromHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	requireDecimal(t, "30", f.balance(t, usd))
	requireDecimal(t, "0", f.balance(t, domain.BankAccount(irrBankID)))

	report, err := f.validator.ValidateBalanceConsistency(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	repaired, err = f.validator.RecalculateAllBalancesFromHistory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestConsistencyValidator_CustomTolerance(t *testing.T) {
	store := memory.NewStore()
	store.AddCurrency(domain.Currency{ID: usdID, Code: "USD"})
	tamper(t, store, domain.PoolAccount("USD"), "0.5")

	validator := usecase.NewConsistencyValidator(usecase.LedgerDeps{
		TxManager: store.TxManager(),
		Entries:   store.Entries(),
		Balances:  store.Balances(),
		Logger:    zerolog.Nop(),
		Tolerance: decimal.NewFromInt(1),
	})

	report, err := validator.ValidateBalanceConsistency(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}
