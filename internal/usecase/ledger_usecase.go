package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/infrastructure/metrics"
)

// PoolSeedPolicy controls what happens when an order touches a currency
// pool that has no balance row yet. Disabled, the pool starts at zero like
// any other account. Enabled, it is opened with Balance through an audited
// manual entry.
type PoolSeedPolicy struct {
	Enabled bool
	Balance decimal.Decimal
}

// LedgerDeps holds the collaborators shared by the ledger use cases.
// Retrier, Outbox, Cache and Metrics are optional.
type LedgerDeps struct {
	TxManager  TransactionManager
	Retrier    Retrier
	Entries    EntryRepository
	Balances   BalanceRepository
	Orders     OrderRepository
	Documents  DocumentRepository
	MasterData MasterDataRepository
	Outbox     OutboxRepository
	IDGen      IDGenerator
	Cache      Cache
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	PoolSeed   PoolSeedPolicy
	Tolerance  decimal.Decimal
	Clock      func() time.Time
}

type directRetrier struct{}

func (directRetrier) Retry(_ context.Context, operation func() error) error {
	return operation()
}

// ledgerCore carries the plumbing every ledger use case needs: running a
// function in one transaction, emitting outbox events and invalidating
// cached balances.
type ledgerCore struct {
	LedgerDeps
}

func newLedgerCore(deps LedgerDeps) ledgerCore {
	if deps.Retrier == nil {
		deps.Retrier = directRetrier{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Tolerance.IsZero() {
		deps.Tolerance = DefaultConsistencyTolerance
	}
	return ledgerCore{LedgerDeps: deps}
}

// inTx runs fn inside one transaction and retries the whole unit on
// transient storage errors. fn must not keep state across attempts.
func (c *ledgerCore) inTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx Transaction) error) error {
	return c.Retrier.Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		tx, err := c.TxManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	})
}

func (c *ledgerCore) emit(ctx context.Context, tx Transaction, aggregateType, aggregateID, eventType string, payload map[string]any) error {
	if c.Outbox == nil {
		return nil
	}

	return c.Outbox.Create(ctx, tx, &domain.OutboxEvent{
		ID:            c.IDGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     c.Clock(),
	})
}

// invalidate drops cached balances after a commit. Failures only cost a
// stale read until the TTL expires, so they are logged and swallowed.
func (c *ledgerCore) invalidate(ctx context.Context, accounts []domain.AccountKey) {
	if c.Cache == nil || len(accounts) == 0 {
		return
	}

	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, balanceCacheKey(a))
	}

	if err := c.Cache.Delete(ctx, keys...); err != nil {
		c.Logger.Warn().Err(err).Int("keys", len(keys)).Msg("failed to invalidate cached balances")
	}
}

func (c *ledgerCore) invalidateAll(ctx context.Context) {
	if c.Cache == nil {
		return
	}

	for _, kind := range domain.AccountKinds {
		balances, err := c.Balances.List(ctx, kind)
		if err != nil {
			c.Logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to list balances for cache invalidation")
			continue
		}

		accounts := make([]domain.AccountKey, 0, len(balances))
		for _, b := range balances {
			accounts = append(accounts, b.Account)
		}
		c.invalidate(ctx, accounts)
	}
}

func balanceCacheKey(account domain.AccountKey) string {
	return balanceCachePrefix + account.String()
}

// posting is one signed movement on one account.
type posting struct {
	Account         domain.AccountKey
	Amount          decimal.Decimal
	Type            domain.TransactionType
	ReferenceID     *int64
	Description     string
	TransactionDate time.Time
}

// postingBatch applies the generic account-balance update to every posting
// of one domain event inside the caller's transaction.
type postingBatch struct {
	core        *ledgerCore
	tx          Transaction
	performedBy string
	now         time.Time
	seedPools   bool

	balances map[domain.AccountKey]*domain.CurrentBalance
	written  []*domain.LedgerEntry
}

func (c *ledgerCore) newBatch(tx Transaction, performedBy string, now time.Time) *postingBatch {
	return &postingBatch{
		core:        c,
		tx:          tx,
		performedBy: performer(performedBy),
		now:         now,
		balances:    make(map[domain.AccountKey]*domain.CurrentBalance),
	}
}

// lock loads or lazily creates every balance row the postings touch. Rows
// are locked in key order so concurrent events cannot deadlock.
func (b *postingBatch) lock(ctx context.Context, postings []posting) error {
	keys := make([]domain.AccountKey, 0, len(postings))
	for _, p := range postings {
		if _, ok := b.balances[p.Account]; ok {
			continue
		}
		b.balances[p.Account] = nil
		keys = append(keys, p.Account)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, key := range keys {
		bal, created, err := b.core.Balances.GetOrCreateForUpdate(ctx, b.tx, key, b.now)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		b.balances[key] = bal

		if created && b.seedPools && key.Kind == domain.AccountKindPool && b.core.PoolSeed.Enabled {
			if err := b.seedPool(ctx, key); err != nil {
				return err
			}
		}
	}

	return nil
}

// seedPool opens a freshly created pool with the configured balance.
func (b *postingBatch) seedPool(ctx context.Context, key domain.AccountKey) error {
	b.core.Logger.Warn().
		Str("account", key.String()).
		Str("seed_balance", b.core.PoolSeed.Balance.String()).
		Str("performed_by", b.performedBy).
		Msg("currency pool missing, opening it with seed balance")

	if _, err := b.post(ctx, posting{
		Account:         key,
		Amount:          b.core.PoolSeed.Balance,
		Type:            domain.TransactionTypeManual,
		Description:     "pool opening balance",
		TransactionDate: b.now,
	}); err != nil {
		return fmt.Errorf("seed pool %s: %w", key, err)
	}

	b.core.Metrics.IncPoolSeeded()
	return nil
}

// apply locks every touched account then posts each movement in order.
func (b *postingBatch) apply(ctx context.Context, postings []posting) error {
	if err := b.lock(ctx, postings); err != nil {
		return err
	}

	for _, p := range postings {
		if _, err := b.post(ctx, p); err != nil {
			return err
		}
	}

	return nil
}

// post is the generic account-balance update for one locked account.
func (b *postingBatch) post(ctx context.Context, p posting) (*domain.LedgerEntry, error) {
	bal := b.balances[p.Account]
	if bal == nil {
		return nil, fmt.Errorf("%w: balance %s was not locked", domain.ErrValidationFailed, p.Account)
	}

	previous := bal.Balance
	next := previous.Add(p.Amount)
	if !next.Sub(previous).Equal(p.Amount) {
		return nil, fmt.Errorf("%w: %s: %s - %s != %s", domain.ErrValidationFailed, p.Account, next, previous, p.Amount)
	}

	txDate := p.TransactionDate
	if txDate.IsZero() {
		txDate = b.now
	}

	entry := &domain.LedgerEntry{
		Account:           p.Account,
		BalanceBefore:     previous,
		TransactionAmount: p.Amount,
		BalanceAfter:      next,
		TransactionType:   p.Type,
		ReferenceID:       p.ReferenceID,
		Description:       p.Description,
		TransactionDate:   txDate,
		CreatedAt:         b.now,
		CreatedBy:         b.performedBy,
	}

	if err := entry.Verify(); err != nil {
		return nil, err
	}
	if err := entry.CheckOrigin(); err != nil {
		return nil, err
	}

	if err := b.core.Entries.Create(ctx, b.tx, entry); err != nil {
		return nil, fmt.Errorf("insert entry for %s: %w", p.Account, err)
	}

	if err := b.core.Balances.Set(ctx, b.tx, p.Account, next, b.now); err != nil {
		return nil, fmt.Errorf("update balance %s: %w", p.Account, err)
	}

	bal.Balance = next
	bal.LastUpdated = b.now
	b.written = append(b.written, entry)

	return entry, nil
}

// touched returns the distinct accounts written by the batch.
func (b *postingBatch) touched() []domain.AccountKey {
	out := make([]domain.AccountKey, 0, len(b.balances))
	for k := range b.balances {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (c *ledgerCore) countEntries(written []*domain.LedgerEntry) {
	counts := make(map[domain.AccountKind]int)
	for _, e := range written {
		counts[e.Account.Kind]++
	}
	for kind, n := range counts {
		c.Metrics.AddEntries(string(kind), n)
	}
}
