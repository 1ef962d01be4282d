package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRollbackRestoresState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := domain.PoolAccount("USD")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, created, err := s.Balances().GetOrCreateForUpdate(ctx, tx, account, testNow); err != nil || !created {
		t.Fatalf("expected balance to be created, created=%v err=%v", created, err)
	}
	entry := &domain.LedgerEntry{Account: account, TransactionAmount: decimal.NewFromInt(1), BalanceAfter: decimal.NewFromInt(1), TransactionType: domain.TransactionTypeManual}
	if err := s.Entries().Create(ctx, tx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if entry.ID != 1 {
		t.Fatalf("expected id 1, got %d", entry.ID)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := s.Balances().Get(ctx, account); !errors.Is(err, domain.ErrBalanceNotFound) {
		t.Fatalf("expected balance to be rolled back, got %v", err)
	}
	history, _ := s.Entries().History(ctx, account, domain.HistoryFilter{})
	if len(history) != 0 {
		t.Fatalf("expected no history after rollback, got %d", len(history))
	}

	// The id sequence is rolled back with the data.
	tx, _ = s.Begin(ctx)
	if err := s.Entries().Create(ctx, tx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if entry.ID != 1 {
		t.Fatalf("expected id 1 after rollback, got %d", entry.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestReadsOutsideTransactionSeeCommittedState(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := domain.PoolAccount("USD")

	seed, _ := s.Begin(ctx)
	if _, _, err := s.Balances().GetOrCreateForUpdate(ctx, seed, account, testNow); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Balances().Set(ctx, seed, account, decimal.NewFromInt(10), testNow); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := seed.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, _ := s.Begin(ctx)
	if err := s.Balances().Set(ctx, tx, account, decimal.NewFromInt(100), testNow); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry := &domain.LedgerEntry{Account: account, TransactionAmount: decimal.NewFromInt(90), BalanceBefore: decimal.NewFromInt(10), BalanceAfter: decimal.NewFromInt(100), TransactionType: domain.TransactionTypeManual, CreatedAt: testNow}
	if err := s.Entries().Create(ctx, tx, entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, _, err := s.Balances().GetOrCreateForUpdate(ctx, tx, domain.PoolAccount("EUR"), testNow); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := s.Balances().Get(ctx, account)
	if err != nil || !b.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected committed balance 10 during open tx, got %+v %v", b, err)
	}
	if list, _ := s.Balances().List(ctx, domain.AccountKindPool); len(list) != 1 {
		t.Fatalf("expected only the committed pool row, got %d", len(list))
	}
	if history, _ := s.Entries().History(ctx, account, domain.HistoryFilter{}); len(history) != 0 {
		t.Fatalf("expected no committed history, got %d", len(history))
	}
	if latest, _ := s.Entries().LatestActiveByCreation(ctx, account); latest != nil {
		t.Fatalf("expected no committed entry, got %+v", latest)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	b, _ = s.Balances().Get(ctx, account)
	if !b.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected balance 10 after rollback, got %s", b.Balance)
	}

	tx, _ = s.Begin(ctx)
	_ = s.Balances().Set(ctx, tx, account, decimal.NewFromInt(25), testNow)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b, _ = s.Balances().Get(ctx, account)
	if !b.Balance.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected balance 25 after commit, got %s", b.Balance)
	}
}

func TestCommitWithCancelledContextDiscardsWrites(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	tx, _ := s.Begin(ctx)
	if _, _, err := s.Balances().GetOrCreateForUpdate(ctx, tx, domain.BankAccount(1), testNow); err != nil {
		t.Fatalf("create: %v", err)
	}
	cancel()
	if err := tx.Commit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := s.Balances().Get(context.Background(), domain.BankAccount(1)); !errors.Is(err, domain.ErrBalanceNotFound) {
		t.Fatalf("expected no balance after failed commit, got %v", err)
	}

	// The store is usable again.
	next, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_ = next.Rollback(context.Background())
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if _, _, err := s.Balances().GetOrCreateForUpdate(ctx, tx, domain.BankAccount(1), testNow); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback after commit: %v", err)
	}
	if _, err := s.Balances().Get(ctx, domain.BankAccount(1)); err != nil {
		t.Fatalf("committed balance lost: %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected ErrTxDone, got %v", err)
	}
}

func TestWritesRequireLiveTransaction(t *testing.T) {
	s := NewStore()
	other := NewStore()
	ctx := context.Background()

	foreign, _ := other.Begin(ctx)
	defer foreign.Rollback(ctx)

	err := s.Balances().Set(ctx, foreign, domain.BankAccount(1), decimal.Zero, testNow)
	if !errors.Is(err, ErrForeignTx) {
		t.Fatalf("expected ErrForeignTx, got %v", err)
	}
}

func TestEntryQueries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	account := domain.CustomerAccount(1, "USD")
	ref := int64(9)

	tx, _ := s.Begin(ctx)
	dates := []time.Time{testNow.Add(2 * time.Hour), testNow, testNow.Add(time.Hour)}
	for i, d := range dates {
		e := &domain.LedgerEntry{
			Account:           account,
			TransactionAmount: decimal.NewFromInt(int64(i + 1)),
			TransactionType:   domain.TransactionTypeOrder,
			TransactionDate:   d,
			CreatedAt:         testNow,
		}
		if i == 1 {
			e.ReferenceID = &ref
		}
		if err := s.Entries().Create(ctx, tx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	byRef, _ := s.Entries().FindActiveByReference(ctx, tx, domain.AccountKindCustomer, ref, domain.TransactionTypeOrder)
	if len(byRef) != 1 || byRef[0].ID != 2 {
		t.Fatalf("expected entry 2 by reference, got %+v", byRef)
	}

	byDate, _ := s.Entries().ListActiveByTransactionDate(ctx, tx, domain.AccountKindCustomer)
	if len(byDate) != 3 || byDate[0].ID != 2 || byDate[1].ID != 3 || byDate[2].ID != 1 {
		t.Fatalf("unexpected date order: %d %d %d", byDate[0].ID, byDate[1].ID, byDate[2].ID)
	}

	if err := s.Entries().MarkDeleted(ctx, tx, domain.AccountKindCustomer, []int64{2}, testNow, "tester"); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	anchor, _ := s.Entries().LatestActiveBefore(ctx, tx, account, 3)
	if anchor == nil || anchor.ID != 1 {
		t.Fatalf("expected anchor 1, got %+v", anchor)
	}
	after, _ := s.Entries().ListActiveAfter(ctx, tx, account, 1)
	if len(after) != 1 || after[0].ID != 3 {
		t.Fatalf("expected only entry 3 after 1, got %+v", after)
	}

	// Mutating a returned entry must not touch the store.
	after[0].BalanceAfter = decimal.NewFromInt(1000)
	again, _ := s.Entries().ListActiveAfter(ctx, tx, account, 1)
	if !again[0].BalanceAfter.IsZero() {
		t.Fatalf("store entry was mutated through a returned copy")
	}

	if err := s.Entries().UpdateSnapshots(ctx, tx, domain.AccountKindCustomer, []domain.BalanceSnapshot{{EntryID: 99}}); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}

	_ = tx.Commit(ctx)

	// Same created_at: the highest id wins.
	latest, _ := s.Entries().LatestActiveByCreation(ctx, account)
	if latest == nil || latest.ID != 3 {
		t.Fatalf("expected latest 3, got %+v", latest)
	}

	from := testNow.Add(30 * time.Minute)
	history, _ := s.Entries().History(ctx, account, domain.HistoryFilter{From: &from})
	if len(history) != 2 || history[0].ID != 3 || history[1].ID != 1 {
		t.Fatalf("unexpected filtered history: %+v", history)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	outbox := s.Outbox()

	tx, _ := s.Begin(ctx)
	for i, id := range []string{"a", "b"} {
		err := outbox.Create(ctx, tx, &domain.OutboxEvent{ID: id, EventType: domain.EventTypeOrderProcessed, CreatedAt: testNow.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_ = tx.Commit(ctx)

	events, _ := outbox.GetUnpublished(ctx, 1)
	if len(events) != 1 || events[0].ID != "a" {
		t.Fatalf("expected oldest event first, got %+v", events)
	}

	if err := outbox.MarkPublished(ctx, "a", testNow); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := outbox.MarkPublished(ctx, "zzz", testNow); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	events, _ = outbox.GetUnpublished(ctx, 10)
	if len(events) != 1 || events[0].ID != "b" {
		t.Fatalf("expected only b unpublished, got %+v", events)
	}

	if err := outbox.DeletePublished(ctx, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("delete published: %v", err)
	}
	if len(s.state.outbox) != 1 {
		t.Fatalf("expected 1 event left, got %d", len(s.state.outbox))
	}
}

func TestMasterData(t *testing.T) {
	s := NewStore()
	s.SeedDemo()
	ctx := context.Background()
	md := s.MasterData()

	c, err := md.GetCurrencyByCode(ctx, " usd ")
	if err != nil || c.ID != 1 {
		t.Fatalf("expected USD id 1, got %+v %v", c, err)
	}
	if _, err := md.GetCurrency(ctx, 99); !errors.Is(err, domain.ErrCurrencyNotFound) {
		t.Fatalf("expected ErrCurrencyNotFound, got %v", err)
	}
	if _, err := md.GetCustomer(ctx, 99); !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
	b, err := md.GetBankAccount(ctx, 2)
	if err != nil || b.CurrencyCode != "IRR" {
		t.Fatalf("expected IRR bank, got %+v %v", b, err)
	}
}
