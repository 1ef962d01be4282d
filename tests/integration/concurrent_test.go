package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
	"github.com/iho/fxledger/tests/testutil"
)

func TestConcurrentOrders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	deps := testDB.Deps()
	processor := usecase.NewTransactionProcessor(deps)
	validator := usecase.NewConsistencyValidator(deps)

	customers := []int64{
		testDB.CreateCustomer(ctx, "c1"),
		testDB.CreateCustomer(ctx, "c2"),
	}
	usd := testDB.CurrencyID(ctx, "USD")
	eur := testDB.CurrencyID(ctx, "EUR")

	const perCustomer = 25

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)

	for _, customer := range customers {
		for range perCustomer {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, err := processor.ProcessOrderCreation(ctx, &domain.Order{
					CustomerID:     customer,
					FromCurrencyID: usd,
					ToCurrencyID:   eur,
					FromAmount:     decimal.NewFromInt(10),
					ToAmount:       decimal.NewFromInt(9),
					Rate:           decimal.RequireFromString("0.9"),
				}, "load")
				if err != nil {
					t.Logf("order failed: %v", err)
					failures.Add(1)
				}
			}()
		}
	}

	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected every order to succeed, %d failed", failures.Load())
	}

	for _, customer := range customers {
		if got := testDB.Balance(ctx, domain.CustomerAccount(customer, "EUR")); !got.Equal(decimal.NewFromInt(9 * perCustomer)) {
			t.Errorf("customer %d: expected EUR %d, got %s", customer, 9*perCustomer, got)
		}
	}

	total := int64(10 * perCustomer * len(customers))
	if got := testDB.Balance(ctx, domain.PoolAccount("USD")); !got.Equal(decimal.NewFromInt(total)) {
		t.Errorf("expected USD pool %d, got %s", total, got)
	}

	// Every entry chains onto the previous one of its account.
	history, err := deps.Entries.History(ctx, domain.PoolAccount("USD"), domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	running := decimal.Zero
	for _, e := range history {
		if !e.BalanceBefore.Equal(running) {
			t.Fatalf("entry %d: expected balance_before %s, got %s", e.ID, running, e.BalanceBefore)
		}
		running = e.BalanceAfter
	}

	report, err := validator.ValidateBalanceConsistency(ctx)
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if !report.Consistent {
		t.Errorf("expected consistent ledger, got %d mismatches", len(report.Mismatches))
	}
}
