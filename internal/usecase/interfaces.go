package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// EntryRepository defines data access for the per-kind ledger history tables.
type EntryRepository interface {
	// Create inserts the entry and assigns its ID.
	Create(ctx context.Context, tx Transaction, entry *domain.LedgerEntry) error
	// FindActiveByReference returns non-deleted entries of one kind that were
	// posted for referenceID with the given type, ordered by ID.
	FindActiveByReference(ctx context.Context, tx Transaction, kind domain.AccountKind, referenceID int64, txType domain.TransactionType) ([]*domain.LedgerEntry, error)
	// LatestActiveBefore returns the newest non-deleted entry of the account
	// with ID < beforeID, or nil.
	LatestActiveBefore(ctx context.Context, tx Transaction, account domain.AccountKey, beforeID int64) (*domain.LedgerEntry, error)
	// ListActiveAfter returns non-deleted entries of the account with
	// ID > afterID in ascending ID order.
	ListActiveAfter(ctx context.Context, tx Transaction, account domain.AccountKey, afterID int64) ([]*domain.LedgerEntry, error)
	// ListActiveByTransactionDate returns every non-deleted entry of a kind
	// ordered by (transaction_date, id).
	ListActiveByTransactionDate(ctx context.Context, tx Transaction, kind domain.AccountKind) ([]*domain.LedgerEntry, error)
	// LatestActiveByCreation returns the newest non-deleted entry of the
	// account ordered by (created_at, id), or nil.
	LatestActiveByCreation(ctx context.Context, account domain.AccountKey) (*domain.LedgerEntry, error)
	MarkDeleted(ctx context.Context, tx Transaction, kind domain.AccountKind, ids []int64, deletedAt time.Time, deletedBy string) error
	UpdateSnapshots(ctx context.Context, tx Transaction, kind domain.AccountKind, snapshots []domain.BalanceSnapshot) error
	// History returns non-deleted entries of the account ordered by
	// (transaction_date, id).
	History(ctx context.Context, account domain.AccountKey, filter domain.HistoryFilter) ([]*domain.LedgerEntry, error)
}

// BalanceRepository defines data access for the balance cache tables.
type BalanceRepository interface {
	// GetOrCreateForUpdate returns the row-locked balance, inserting it at
	// zero when absent. created reports whether the row was inserted.
	GetOrCreateForUpdate(ctx context.Context, tx Transaction, account domain.AccountKey, now time.Time) (balance *domain.CurrentBalance, created bool, err error)
	Get(ctx context.Context, account domain.AccountKey) (*domain.CurrentBalance, error)
	Set(ctx context.Context, tx Transaction, account domain.AccountKey, balance decimal.Decimal, updatedAt time.Time) error
	List(ctx context.Context, kind domain.AccountKind) ([]*domain.CurrentBalance, error)
	// LockKind takes an exclusive lock on every balance row of a kind.
	LockKind(ctx context.Context, tx Transaction, kind domain.AccountKind) error
	ResetKind(ctx context.Context, tx Transaction, kind domain.AccountKind, updatedAt time.Time) error
}

// OrderRepository defines data access for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx Transaction, order *domain.Order) error
	GetByIDForUpdate(ctx context.Context, tx Transaction, id int64) (*domain.Order, error)
	MarkDeleted(ctx context.Context, tx Transaction, id int64, deletedAt time.Time, deletedBy string) error
}

// DocumentRepository defines data access for accounting documents.
type DocumentRepository interface {
	Create(ctx context.Context, tx Transaction, doc *domain.AccountingDocument) error
	GetByIDForUpdate(ctx context.Context, tx Transaction, id int64) (*domain.AccountingDocument, error)
	MarkDeleted(ctx context.Context, tx Transaction, id int64, deletedAt time.Time, deletedBy string) error
}

// MasterDataRepository resolves customers, currencies and bank accounts.
type MasterDataRepository interface {
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	GetCurrency(ctx context.Context, id int64) (*domain.Currency, error)
	GetCurrencyByCode(ctx context.Context, code string) (*domain.Currency, error)
	GetBankAccount(ctx context.Context, id int64) (*domain.BankAccountInfo, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation on transient storage errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces value only if key still holds old.
	CompareAndSwap(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a claim so a failed request can be retried.
	Release(ctx context.Context, key string) error
}
