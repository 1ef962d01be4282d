package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// ConsistencyValidator checks the balance cache against ledger history and
// can repair it by brute force.
type ConsistencyValidator struct {
	ledgerCore
}

// NewConsistencyValidator creates a new ConsistencyValidator.
func NewConsistencyValidator(deps LedgerDeps) *ConsistencyValidator {
	return &ConsistencyValidator{ledgerCore: newLedgerCore(deps)}
}

// BalanceMismatch is one account whose cached balance disagrees with its
// latest active entry.
type BalanceMismatch struct {
	Account    domain.AccountKey
	Cached     decimal.Decimal
	Expected   decimal.Decimal
	Difference decimal.Decimal
}

// ConsistencyReport is the result of a consistency check.
type ConsistencyReport struct {
	CheckedAt       time.Time
	Mismatches      []*BalanceMismatch
	CheckedAccounts int
	Consistent      bool
}

// ValidateBalanceConsistency compares every cached balance with the
// balanceAfter of the account's latest active entry by creation order.
// It reports and logs mismatches but never heals them.
func (uc *ConsistencyValidator) ValidateBalanceConsistency(ctx context.Context) (*ConsistencyReport, error) {
	report := &ConsistencyReport{CheckedAt: uc.Clock(), Consistent: true}

	for _, kind := range domain.AccountKinds {
		balances, err := uc.Balances.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s balances: %w", kind, err)
		}

		for _, b := range balances {
			expected, err := uc.expectedBalance(ctx, b.Account)
			if err != nil {
				return nil, err
			}
			report.CheckedAccounts++

			diff := b.Balance.Sub(expected)
			if diff.Abs().LessThanOrEqual(uc.Tolerance) {
				continue
			}

			report.Consistent = false
			report.Mismatches = append(report.Mismatches, &BalanceMismatch{
				Account:    b.Account,
				Cached:     b.Balance,
				Expected:   expected,
				Difference: diff,
			})

			uc.Logger.Warn().
				Str("account", b.Account.String()).
				Str("cached", b.Balance.String()).
				Str("expected", expected.String()).
				Str("difference", diff.String()).
				Err(domain.ErrInconsistentState).
				Msg("balance cache disagrees with history")
		}
	}

	uc.Metrics.SetMismatches(len(report.Mismatches))

	uc.Logger.Info().
		Bool("consistent", report.Consistent).
		Int("checked", report.CheckedAccounts).
		Int("mismatches", len(report.Mismatches)).
		Msg("balance consistency check finished")

	return report, nil
}

func (uc *ConsistencyValidator) expectedBalance(ctx context.Context, account domain.AccountKey) (decimal.Decimal, error) {
	latest, err := uc.Entries.LatestActiveByCreation(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest entry for %s: %w", account, err)
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

// RecalculateAllBalancesFromHistory overwrites every cached balance with the
// balanceAfter of its latest active entry (0 if none) and returns how many
// balances changed.
//
// It trusts entry snapshots as written; after a date-based rebuild with
// backdated entries use RecalculateAllBalancesFromTransactionDates instead.
func (uc *ConsistencyValidator) RecalculateAllBalancesFromHistory(ctx context.Context) (int, error) {
	var (
		repaired int
		changed  []domain.AccountKey
	)

	err := uc.inTx(ctx, RebuildTransactionTimeout, func(ctx context.Context, tx Transaction) error {
		repaired, changed = 0, nil
		now := uc.Clock()

		for _, kind := range domain.AccountKinds {
			if err := uc.Balances.LockKind(ctx, tx, kind); err != nil {
				return fmt.Errorf("lock %s balances: %w", kind, err)
			}

			balances, err := uc.Balances.List(ctx, kind)
			if err != nil {
				return fmt.Errorf("list %s balances: %w", kind, err)
			}

			for _, b := range balances {
				expected, err := uc.expectedBalance(ctx, b.Account)
				if err != nil {
					return err
				}
				if expected.Equal(b.Balance) {
					continue
				}

				if err := uc.Balances.Set(ctx, tx, b.Account, expected, now); err != nil {
					return fmt.Errorf("repair balance %s: %w", b.Account, err)
				}
				repaired++
				changed = append(changed, b.Account)

				uc.Logger.Warn().
					Str("account", b.Account.String()).
					Str("from", b.Balance.String()).
					Str("to", expected.String()).
					Msg("balance repaired from history")
			}
		}

		return uc.emit(ctx, tx, domain.AggregateTypeLedger, "balances", domain.EventTypeLedgerRepaired, map[string]any{
			"repaired": repaired,
		})
	})
	if err != nil {
		uc.Logger.Error().Err(err).Msg("balance repair failed")
		return 0, err
	}

	uc.invalidate(ctx, changed)
	uc.Metrics.AddRepaired(repaired)

	uc.Logger.Info().Int("repaired", repaired).Msg("balances recalculated from history")

	return repaired, nil
}
