package integration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
	"github.com/iho/fxledger/tests/testutil"
)

func TestEdgeCases(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	deps := testDB.Deps()
	processor := usecase.NewTransactionProcessor(deps)
	query := usecase.NewBalanceQuery(deps.Entries, deps.Balances, nil, nil, deps.Logger)

	t.Run("negative balance is allowed", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		bank := testDB.CreateBankAccount(ctx, "Overdraft", "USD")

		entry, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
			Account: domain.BankAccount(bank),
			Amount:  decimal.NewFromInt(-50),
			Reason:  "overdraft",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !entry.BalanceAfter.Equal(decimal.NewFromInt(-50)) {
			t.Errorf("expected balance_after -50, got %s", entry.BalanceAfter)
		}
	})

	t.Run("very large decimal amounts", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		customer := testDB.CreateCustomer(ctx, "whale")

		large := decimal.RequireFromString("999999999999999.123456789")
		_, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
			Account: domain.CustomerAccount(customer, "IRR"),
			Amount:  large,
			Reason:  "migration",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := testDB.Balance(ctx, domain.CustomerAccount(customer, "IRR")); !got.Equal(large) {
			t.Errorf("expected %s, got %s", large, got)
		}

		_, err = processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
			Account: domain.CustomerAccount(customer, "IRR"),
			Amount:  decimal.RequireFromString("1000000000000001"),
			Reason:  "too much",
		})
		if !errors.Is(err, domain.ErrAmountTooLarge) {
			t.Fatalf("expected ErrAmountTooLarge, got %v", err)
		}
	})

	t.Run("unicode description", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		customer := testDB.CreateCustomer(ctx, "رضا")
		account := domain.CustomerAccount(customer, "IRR")

		if _, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
			Account: account,
			Amount:  decimal.NewFromInt(1000),
			Reason:  "واریز نقدی 💵",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		history, err := query.GetHistory(ctx, account, domain.HistoryFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 1 || !strings.Contains(history[0].Description, "💵") {
			t.Errorf("expected unicode description to round trip, got %+v", history)
		}
	})

	t.Run("reject zero adjustment", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		bank := testDB.CreateBankAccount(ctx, "Zero", "USD")

		_, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
			Account: domain.BankAccount(bank),
			Amount:  decimal.Zero,
			Reason:  "noop",
		})
		if !errors.Is(err, domain.ErrZeroAdjustment) {
			t.Fatalf("expected ErrZeroAdjustment, got %v", err)
		}
	})

	t.Run("reject negative order amount", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		customer := testDB.CreateCustomer(ctx, "neg")

		_, err := processor.ProcessOrderCreation(ctx, &domain.Order{
			CustomerID:     customer,
			FromCurrencyID: testDB.CurrencyID(ctx, "USD"),
			ToCurrencyID:   testDB.CurrencyID(ctx, "EUR"),
			FromAmount:     decimal.NewFromInt(-10),
			ToAmount:       decimal.NewFromInt(9),
		}, "teller")
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("history date filter", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		bank := testDB.CreateBankAccount(ctx, "Dated", "EUR")
		account := domain.BankAccount(bank)

		for day := 1; day <= 5; day++ {
			date := time.Date(2024, 6, day, 12, 0, 0, 0, time.UTC)
			if _, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
				Account:         account,
				Amount:          decimal.NewFromInt(int64(day)),
				Reason:          "daily",
				TransactionDate: &date,
			}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		from := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 6, 4, 23, 59, 59, 0, time.UTC)
		history, err := query.GetHistory(ctx, account, domain.HistoryFilter{From: &from, To: &to})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(history))
		}
		if !history[0].TransactionAmount.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected first entry of 2 June, got %s", history[0].TransactionAmount)
		}

		_, err = query.GetHistory(ctx, account, domain.HistoryFilter{From: &to, To: &from})
		if !errors.Is(err, domain.ErrInvalidDateRange) {
			t.Fatalf("expected ErrInvalidDateRange, got %v", err)
		}
	})

	t.Run("pool auto seed", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		customer := testDB.CreateCustomer(ctx, "seeded")

		seeded := testDB.Deps()
		seeded.PoolSeed = usecase.PoolSeedPolicy{Enabled: true, Balance: decimal.NewFromInt(1_000_000)}

		_, err := usecase.NewTransactionProcessor(seeded).ProcessOrderCreation(ctx, &domain.Order{
			CustomerID:     customer,
			FromCurrencyID: testDB.CurrencyID(ctx, "USD"),
			ToCurrencyID:   testDB.CurrencyID(ctx, "EUR"),
			FromAmount:     decimal.NewFromInt(100),
			ToAmount:       decimal.NewFromInt(90),
		}, "teller")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := testDB.Balance(ctx, domain.PoolAccount("EUR")); !got.Equal(decimal.NewFromInt(999_910)) {
			t.Errorf("expected seeded EUR pool 999910, got %s", got)
		}

		history, err := seeded.Entries.History(ctx, domain.PoolAccount("EUR"), domain.HistoryFilter{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var manual int
		for _, e := range history {
			if e.TransactionType == domain.TransactionTypeManual {
				manual++
			}
		}
		if manual != 1 {
			t.Errorf("expected one opening entry, got %d", manual)
		}
	})
}
