package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
	"github.com/iho/fxledger/tests/testutil"
)

func TestConsistencyCheckAndRepair(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	deps := testDB.Deps()
	processor := usecase.NewTransactionProcessor(deps)
	validator := usecase.NewConsistencyValidator(deps)

	bank := testDB.CreateBankAccount(ctx, "Treasury USD", "USD")
	account := domain.BankAccount(bank)

	if _, err := processor.AdjustBalance(ctx, usecase.AdjustBalanceInput{
		Account:     account,
		Amount:      decimal.NewFromInt(70),
		Reason:      "opening float",
		PerformedBy: "treasury",
	}); err != nil {
		t.Fatalf("failed to adjust: %v", err)
	}

	testDB.CorruptBalance(ctx, account, decimal.NewFromInt(999))

	report, err := validator.ValidateBalanceConsistency(ctx)
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if report.Consistent || len(report.Mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %+v", report)
	}
	mismatch := report.Mismatches[0]
	if mismatch.Account != account || !mismatch.Difference.Equal(decimal.NewFromInt(929)) {
		t.Errorf("unexpected mismatch %+v", mismatch)
	}

	// The check never heals.
	if got := testDB.Balance(ctx, account); !got.Equal(decimal.NewFromInt(999)) {
		t.Fatalf("expected corrupted balance to remain, got %s", got)
	}

	repaired, err := validator.RecalculateAllBalancesFromHistory(ctx)
	if err != nil {
		t.Fatalf("failed to repair: %v", err)
	}
	if repaired != 1 {
		t.Errorf("expected 1 repaired balance, got %d", repaired)
	}
	if got := testDB.Balance(ctx, account); !got.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected repaired balance 70, got %s", got)
	}

	report, err = validator.ValidateBalanceConsistency(ctx)
	if err != nil {
		t.Fatalf("failed to validate: %v", err)
	}
	if !report.Consistent {
		t.Errorf("expected consistent ledger after repair")
	}
}

func TestRebuildFromTransactionDates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	deps := testDB.Deps()
	processor := usecase.NewTransactionProcessor(deps)
	reconciler := usecase.NewDateReconciler(deps)

	bank := testDB.CreateBankAccount(ctx, "Dubai AED", "AED")
	account := domain.BankAccount(bank)

	may10 := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	may1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []usecase.AdjustBalanceInput{
		{Account: account, Amount: decimal.NewFromInt(100), Reason: "deposit", TransactionDate: &may10},
		// Posted later but dated earlier.
		{Account: account, Amount: decimal.NewFromInt(-30), Reason: "fee", TransactionDate: &may1, Correction: true},
	} {
		if _, err := processor.AdjustBalance(ctx, in); err != nil {
			t.Fatalf("failed to adjust: %v", err)
		}
	}

	result, err := reconciler.RecalculateAllBalancesFromTransactionDates(ctx, "auditor")
	if err != nil {
		t.Fatalf("failed to rebuild: %v", err)
	}
	if result.ReplayedEntries[domain.AccountKindBank] != 2 || result.TotalReplayed() != 2 {
		t.Errorf("unexpected replay counts %+v", result.ReplayedEntries)
	}
	if result.PerformedBy != "auditor" {
		t.Errorf("expected performer auditor, got %q", result.PerformedBy)
	}

	if got := testDB.Balance(ctx, account); !got.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected balance 70, got %s", got)
	}

	history, err := deps.Entries.History(ctx, account, domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}

	fee, deposit := history[0], history[1]
	if fee.TransactionType != domain.TransactionTypeManualEdit {
		t.Errorf("expected fee to be a manual_edit, got %s", fee.TransactionType)
	}
	if !fee.BalanceBefore.IsZero() || !fee.BalanceAfter.Equal(decimal.NewFromInt(-30)) {
		t.Errorf("expected fee 0 -> -30, got %s -> %s", fee.BalanceBefore, fee.BalanceAfter)
	}
	if !deposit.BalanceBefore.Equal(decimal.NewFromInt(-30)) || !deposit.BalanceAfter.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected deposit -30 -> 70, got %s -> %s", deposit.BalanceBefore, deposit.BalanceAfter)
	}

	// Rebuilding twice is a no-op on balances.
	if _, err := reconciler.RecalculateAllBalancesFromTransactionDates(ctx, "auditor"); err != nil {
		t.Fatalf("failed to rebuild again: %v", err)
	}
	if got := testDB.Balance(ctx, account); !got.Equal(decimal.NewFromInt(70)) {
		t.Errorf("expected balance 70 after second rebuild, got %s", got)
	}
}
