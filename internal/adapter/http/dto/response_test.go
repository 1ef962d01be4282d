package dto

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

func TestEntryFromDomain(t *testing.T) {
	now := time.Now()
	ref := int64(12)
	entry := &domain.LedgerEntry{
		ID:                5,
		Account:           domain.CustomerAccount(7, "USD"),
		BalanceBefore:     decimal.RequireFromString("10"),
		TransactionAmount: decimal.RequireFromString("-2.5"),
		BalanceAfter:      decimal.RequireFromString("7.5"),
		TransactionType:   domain.TransactionTypeOrder,
		ReferenceID:       &ref,
		TransactionDate:   now,
		CreatedAt:         now,
		CreatedBy:         "alice",
	}

	resp := EntryFromDomain(entry)
	if resp.Account.Key != "customer:7:USD" || resp.TransactionAmount != "-2.5" || resp.BalanceAfter != "7.5" {
		t.Fatalf("unexpected entry response: %+v", resp)
	}

	list := EntriesFromDomain([]*domain.LedgerEntry{entry})
	if len(list) != 1 || list[0].ID != 5 {
		t.Fatalf("EntriesFromDomain returned %+v", list)
	}
}

func TestBalancesFromDomain(t *testing.T) {
	resp := BalancesFromDomain(domain.AccountKindBank, []*domain.CurrentBalance{
		{Account: domain.BankAccount(1), Balance: decimal.RequireFromString("123.45")},
	})
	if resp.Kind != "bank" || resp.Total != 1 || resp.Balances[0].Balance != "123.45" {
		t.Fatalf("unexpected balances response: %+v", resp)
	}
	if resp.Balances[0].Account.BankAccountID != 1 {
		t.Fatalf("unexpected account %+v", resp.Balances[0].Account)
	}
}

func TestConsistencyReportFromUseCase(t *testing.T) {
	report := &usecase.ConsistencyReport{
		CheckedAccounts: 3,
		Mismatches: []*usecase.BalanceMismatch{{
			Account:    domain.PoolAccount("EUR"),
			Cached:     decimal.RequireFromString("10"),
			Expected:   decimal.RequireFromString("12"),
			Difference: decimal.RequireFromString("-2"),
		}},
	}

	resp := ConsistencyReportFromUseCase(report)
	if resp.Status != "inconsistent" || resp.Consistent || len(resp.Mismatches) != 1 {
		t.Fatalf("unexpected report response: %+v", resp)
	}
	if resp.Mismatches[0].Difference != "-2" || resp.Mismatches[0].Account.Key != "pool:EUR" {
		t.Fatalf("unexpected mismatch %+v", resp.Mismatches[0])
	}

	report.Mismatches = nil
	report.Consistent = true
	if resp := ConsistencyReportFromUseCase(report); resp.Status != "consistent" || resp.Mismatches == nil {
		t.Fatalf("expected consistent report with empty list, got %+v", resp)
	}
}

func TestRebuildFromUseCase(t *testing.T) {
	result := &usecase.RebuildResult{
		PerformedBy: "ops",
		ReplayedEntries: map[domain.AccountKind]int{
			domain.AccountKindCustomer: 4,
			domain.AccountKindPool:     2,
		},
		Accounts: 3,
	}

	resp := RebuildFromUseCase(result)
	if resp.TotalReplayed != 6 || resp.ReplayedEntries["customer"] != 4 || resp.Accounts != 3 {
		t.Fatalf("unexpected rebuild response: %+v", resp)
	}
}

func TestSoftDeleteFromUseCase(t *testing.T) {
	resp := SoftDeleteFromUseCase(&usecase.SoftDeleteResult{
		SourceID:        9,
		DeletedEntries:  4,
		ReplayedEntries: 1,
		Accounts: []*domain.CurrentBalance{
			{Account: domain.PoolAccount("USD"), Balance: decimal.Zero},
		},
	})
	if resp.SourceID != 9 || resp.DeletedEntries != 4 || len(resp.Accounts) != 1 || resp.Accounts[0].Balance != "0" {
		t.Fatalf("unexpected soft delete response: %+v", resp)
	}
}
