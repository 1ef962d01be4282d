package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// DateReconciler rebuilds every balance by replaying the whole ledger in
// business-date order.
type DateReconciler struct {
	ledgerCore
}

// NewDateReconciler creates a new DateReconciler.
func NewDateReconciler(deps LedgerDeps) *DateReconciler {
	return &DateReconciler{ledgerCore: newLedgerCore(deps)}
}

// RebuildResult summarizes a date-ordered rebuild.
type RebuildResult struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	PerformedBy     string
	ReplayedEntries map[domain.AccountKind]int
	Accounts        int
}

// TotalReplayed returns the number of entries replayed across kinds.
func (r *RebuildResult) TotalReplayed() int {
	total := 0
	for _, n := range r.ReplayedEntries {
		total += n
	}
	return total
}

// RecalculateAllBalancesFromTransactionDates resets every balance to zero
// and replays all active entries ordered by (transactionDate, id), rewriting
// each entry's snapshot. Deleted entries are left untouched. The pass runs in
// one transaction holding an exclusive lock on the balance tables.
func (uc *DateReconciler) RecalculateAllBalancesFromTransactionDates(ctx context.Context, performedBy string) (*RebuildResult, error) {
	by := performer(performedBy)
	started := time.Now()

	var result *RebuildResult

	err := uc.inTx(ctx, RebuildTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		now := uc.Clock()
		res := &RebuildResult{
			StartedAt:       now,
			PerformedBy:     by,
			ReplayedEntries: make(map[domain.AccountKind]int, len(domain.AccountKinds)),
		}

		for _, kind := range domain.AccountKinds {
			if err := uc.Balances.LockKind(ctx, tx, kind); err != nil {
				return fmt.Errorf("lock %s balances: %w", kind, err)
			}
			if err := uc.Balances.ResetKind(ctx, tx, kind, now); err != nil {
				return fmt.Errorf("reset %s balances: %w", kind, err)
			}
		}

		for _, kind := range domain.AccountKinds {
			replayed, accounts, err := uc.replayKind(ctx, tx, kind, now)
			if err != nil {
				return err
			}
			res.ReplayedEntries[kind] = replayed
			res.Accounts += accounts
		}

		res.FinishedAt = uc.Clock()

		if err := uc.emit(ctx, tx, domain.AggregateTypeLedger, "balances", domain.EventTypeLedgerRebuilt, map[string]any{
			"performed_by": by,
			"replayed":     res.TotalReplayed(),
			"accounts":     res.Accounts,
		}); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		uc.Logger.Error().Err(err).Str("performed_by", by).Msg("date-ordered rebuild failed")
		return nil, err
	}

	uc.invalidateAll(ctx)
	uc.Metrics.ObserveRebuild(started, result.TotalReplayed())

	uc.Logger.Info().
		Str("performed_by", by).
		Int("replayed", result.TotalReplayed()).
		Int("accounts", result.Accounts).
		Dur("took", time.Since(started)).
		Msg("balances rebuilt from transaction dates")

	return result, nil
}

// replayKind replays one kind's entries and returns the number of entries
// and accounts visited.
func (uc *DateReconciler) replayKind(ctx context.Context, tx Transaction, kind domain.AccountKind, now time.Time) (int, int, error) {
	entries, err := uc.Entries.ListActiveByTransactionDate(ctx, tx, kind)
	if err != nil {
		return 0, 0, fmt.Errorf("list %s entries: %w", kind, err)
	}

	running := make(map[domain.AccountKey]decimal.Decimal)
	order := make([]domain.AccountKey, 0)
	snapshots := make([]domain.BalanceSnapshot, 0, len(entries))

	for _, e := range entries {
		before, ok := running[e.Account]
		if !ok {
			bal, _, err := uc.Balances.GetOrCreateForUpdate(ctx, tx, e.Account, now)
			if err != nil {
				return 0, 0, fmt.Errorf("lock balance %s: %w", e.Account, err)
			}
			before = bal.Balance
			order = append(order, e.Account)
		}

		after, err := e.Rebase(before)
		if err != nil {
			return 0, 0, err
		}
		running[e.Account] = after
		snapshots = append(snapshots, e.Snapshot())
	}

	if len(snapshots) > 0 {
		if err := uc.Entries.UpdateSnapshots(ctx, tx, kind, snapshots); err != nil {
			return 0, 0, fmt.Errorf("rewrite %s snapshots: %w", kind, err)
		}
	}

	for _, key := range order {
		if err := uc.Balances.Set(ctx, tx, key, running[key], now); err != nil {
			return 0, 0, fmt.Errorf("update balance %s: %w", key, err)
		}
	}

	return len(snapshots), len(order), nil
}
