package usecase

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// RebuildTransactionTimeout bounds the full-ledger recalculation passes.
	RebuildTransactionTimeout = 5 * time.Minute

	// BalanceCacheTTL is how long a cached balance read is served.
	BalanceCacheTTL = 5 * time.Minute

	// BalanceLeaseTTL bounds how long a reader may hold a cache miss while
	// it loads the balance.
	BalanceLeaseTTL = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// SystemPerformer is recorded when a caller does not name itself.
	SystemPerformer = "system"

	balanceCachePrefix = "balance:"
	balanceLeasePrefix = "lease:"
)

// DefaultConsistencyTolerance is the largest cache/history difference the
// validator accepts.
var DefaultConsistencyTolerance = decimal.RequireFromString("0.01")

// ErrCacheMiss is returned by Cache implementations when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

func performer(by string) string {
	if by == "" {
		return SystemPerformer
	}
	return by
}
