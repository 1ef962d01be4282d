// Package memory provides in-memory repository implementations for
// development and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("memory: transaction already finished")

// ErrForeignTx is returned when a transaction from another store is passed in.
var ErrForeignTx = errors.New("memory: transaction does not belong to this store")

// Store holds all ledger state in memory.
//
// Transactions are serialized by txMu. A transaction works on a private copy
// of the state taken on Begin, and Commit swaps it in under mu, so reads
// outside a transaction only ever see committed state. Writes made outside
// a transaction (outbox publishing, master data) also take txMu so a commit
// cannot overwrite them.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	state *state
}

type state struct {
	entries   map[domain.AccountKind][]domain.LedgerEntry
	balances  map[domain.AccountKey]domain.CurrentBalance
	orders    map[int64]domain.Order
	documents map[int64]domain.AccountingDocument
	outbox    []domain.OutboxEvent

	customers  map[int64]domain.Customer
	currencies map[int64]domain.Currency
	banks      map[int64]domain.BankAccountInfo

	nextOrderID    int64
	nextDocumentID int64
}

func newState() *state {
	return &state{
		entries:    make(map[domain.AccountKind][]domain.LedgerEntry),
		balances:   make(map[domain.AccountKey]domain.CurrentBalance),
		orders:     make(map[int64]domain.Order),
		documents:  make(map[int64]domain.AccountingDocument),
		customers:  make(map[int64]domain.Customer),
		currencies: make(map[int64]domain.Currency),
		banks:      make(map[int64]domain.BankAccountInfo),
	}
}

// clone copies the mutable ledger state. Master data is shared because no
// transaction writes it.
func (s *state) clone() *state {
	c := &state{
		entries:        make(map[domain.AccountKind][]domain.LedgerEntry, len(s.entries)),
		balances:       make(map[domain.AccountKey]domain.CurrentBalance, len(s.balances)),
		orders:         make(map[int64]domain.Order, len(s.orders)),
		documents:      make(map[int64]domain.AccountingDocument, len(s.documents)),
		outbox:         append([]domain.OutboxEvent(nil), s.outbox...),
		customers:      s.customers,
		currencies:     s.currencies,
		banks:          s.banks,
		nextOrderID:    s.nextOrderID,
		nextDocumentID: s.nextDocumentID,
	}
	for k, v := range s.entries {
		c.entries[k] = append([]domain.LedgerEntry(nil), v...)
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.documents {
		c.documents[k] = v
	}
	return c
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Tx is an in-memory transaction.
type Tx struct {
	store *Store
	work  *state
	done  bool
}

// Begin starts a transaction. It blocks until every other transaction on
// the store has finished.
func (s *Store) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.txMu.Lock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	return &Tx{store: s, work: work}, nil
}

// Commit publishes the writes made in the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}

	t.store.mu.Lock()
	t.store.state = t.work
	t.store.mu.Unlock()

	t.done = true
	t.work = nil
	t.store.txMu.Unlock()
	return nil
}

// Rollback discards the writes made in the transaction. It is a no-op after
// Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.rollback()
	return nil
}

func (t *Tx) rollback() {
	t.done = true
	t.work = nil
	t.store.txMu.Unlock()
}

// working returns the private state of a live transaction of this store.
// Only the goroutine holding txMu touches it, so no further locking is
// needed.
func (s *Store) working(tx usecase.Transaction) (*state, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t.work, nil
}

// committed runs fn against the committed state.
func (s *Store) committed(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// writeOutsideTx runs fn against the committed state once no transaction
// is open.
func (s *Store) writeOutsideTx(fn func(st *state)) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// TxManager returns the store as a usecase.TransactionManager.
func (s *Store) TxManager() usecase.TransactionManager { return s }

// Entries returns the ledger history repository.
func (s *Store) Entries() *EntryRepository { return &EntryRepository{store: s} }

// Balances returns the balance cache repository.
func (s *Store) Balances() *BalanceRepository { return &BalanceRepository{store: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{store: s} }

// Documents returns the accounting document repository.
func (s *Store) Documents() *DocumentRepository { return &DocumentRepository{store: s} }

// MasterData returns the master data repository.
func (s *Store) MasterData() *MasterDataRepository { return &MasterDataRepository{store: s} }

// Outbox returns the outbox repository.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{store: s} }
