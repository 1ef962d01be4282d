package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/infrastructure/metrics"
)

// BalanceQuery serves balance and history reads.
type BalanceQuery struct {
	entries  EntryRepository
	balances BalanceRepository
	cache    Cache
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewBalanceQuery creates a new BalanceQuery. cache may be nil.
func NewBalanceQuery(entries EntryRepository, balances BalanceRepository, cache Cache, m *metrics.Metrics, logger zerolog.Logger) *BalanceQuery {
	return &BalanceQuery{
		entries:  entries,
		balances: balances,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// GetBalance returns the cached effective balance of an account. Accounts
// that were never touched have a zero balance.
//
// A miss is filled under a lease: the reader reserves the key before loading
// the row and publishes the value only if the lease is still there. Writers
// delete the key after commit, which revokes any lease taken before it, so a
// value read before a commit can never land in the cache after it.
func (uc *BalanceQuery) GetBalance(ctx context.Context, account domain.AccountKey) (decimal.Decimal, error) {
	account.CurrencyCode = domain.NormalizeCurrency(account.CurrencyCode)
	if err := account.Validate(); err != nil {
		return decimal.Zero, err
	}

	key := balanceCacheKey(account)

	var lease []byte
	if uc.cache != nil {
		if cached, ok := uc.cachedBalance(ctx, key); ok {
			uc.metrics.CacheResult(true)
			return cached, nil
		}
		uc.metrics.CacheResult(false)
		lease = uc.takeLease(ctx, key)
	}

	balance := decimal.Zero
	current, err := uc.balances.Get(ctx, account)
	switch {
	case err == nil:
		balance = current.Balance
	case errors.Is(err, domain.ErrBalanceNotFound):
	default:
		return decimal.Zero, fmt.Errorf("get balance %s: %w", account, err)
	}

	if lease != nil {
		if _, err := uc.cache.CompareAndSwap(ctx, key, lease, []byte(balance.String()), BalanceCacheTTL); err != nil {
			uc.logger.Warn().Err(err).Str("key", key).Msg("balance cache write failed")
		}
	}

	return balance, nil
}

func (uc *BalanceQuery) cachedBalance(ctx context.Context, key string) (decimal.Decimal, bool) {
	raw, err := uc.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			uc.logger.Warn().Err(err).Str("key", key).Msg("balance cache read failed")
		}
		return decimal.Zero, false
	}
	if bytes.HasPrefix(raw, []byte(balanceLeasePrefix)) {
		return decimal.Zero, false
	}

	cached, err := decimal.NewFromString(string(raw))
	if err != nil {
		uc.logger.Warn().Str("key", key).Msg("discarding unparsable cached balance")
		return decimal.Zero, false
	}
	return cached, true
}

// takeLease reserves key for this reader, or returns nil when another
// reader holds it or the cache is unavailable.
func (uc *BalanceQuery) takeLease(ctx context.Context, key string) []byte {
	lease := []byte(balanceLeasePrefix + ulid.Make().String())

	ok, err := uc.cache.SetNX(ctx, key, lease, BalanceLeaseTTL)
	if err != nil {
		uc.logger.Warn().Err(err).Str("key", key).Msg("balance cache lease failed")
		return nil
	}
	if !ok {
		return nil
	}
	return lease
}

// GetHistory returns the account's active entries ordered by
// (transactionDate, id), optionally bounded by business date.
func (uc *BalanceQuery) GetHistory(ctx context.Context, account domain.AccountKey, filter domain.HistoryFilter) ([]*domain.LedgerEntry, error) {
	account.CurrencyCode = domain.NormalizeCurrency(account.CurrencyCode)
	if err := account.Validate(); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, domain.ErrInvalidDateRange
	}

	return uc.entries.History(ctx, account, filter)
}

// ListBalances returns every cached balance of one kind.
func (uc *BalanceQuery) ListBalances(ctx context.Context, kind domain.AccountKind) ([]*domain.CurrentBalance, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAccount, kind)
	}
	return uc.balances.List(ctx, kind)
}
