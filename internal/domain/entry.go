package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the origin of a ledger entry.
type TransactionType string

const (
	TransactionTypeOrder              TransactionType = "order"
	TransactionTypeAccountingDocument TransactionType = "accounting_document"
	TransactionTypeManual             TransactionType = "manual"
	TransactionTypeManualEdit         TransactionType = "manual_edit"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeOrder, TransactionTypeAccountingDocument, TransactionTypeManual, TransactionTypeManualEdit:
		return true
	}
	return false
}

// IsManual reports whether entries of this type are posted by an operator.
func (t TransactionType) IsManual() bool {
	return t == TransactionTypeManual || t == TransactionTypeManualEdit
}

// LedgerEntry is one balance change with its before/after snapshot.
//
// ID is assigned by the store and defines entry-sequence order. Only the
// balance snapshot and the soft-delete fields are ever rewritten.
type LedgerEntry struct {
	ID                int64
	Account           AccountKey
	BalanceBefore     decimal.Decimal
	TransactionAmount decimal.Decimal
	BalanceAfter      decimal.Decimal
	TransactionType   TransactionType
	ReferenceID       *int64
	Description       string
	TransactionDate   time.Time
	CreatedAt         time.Time
	CreatedBy         string
	IsDeleted         bool
	DeletedAt         *time.Time
	DeletedBy         string
}

// Verify checks balanceAfter == balanceBefore + transactionAmount.
func (e *LedgerEntry) Verify() error {
	if !e.BalanceBefore.Add(e.TransactionAmount).Equal(e.BalanceAfter) {
		return fmt.Errorf("%w: entry %d on %s: %s + %s != %s",
			ErrValidationFailed, e.ID, e.Account, e.BalanceBefore, e.TransactionAmount, e.BalanceAfter)
	}
	return nil
}

// CheckOrigin checks the type against the reference: operator entries
// carry none, order and document entries point at their source row.
func (e *LedgerEntry) CheckOrigin() error {
	switch {
	case !e.TransactionType.IsValid():
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, e.TransactionType)
	case e.TransactionType.IsManual() && e.ReferenceID != nil:
		return fmt.Errorf("%w: %s entry must not reference a source", ErrInvalidTransactionType, e.TransactionType)
	case !e.TransactionType.IsManual() && e.ReferenceID == nil:
		return fmt.Errorf("%w: %s entry needs a source reference", ErrInvalidTransactionType, e.TransactionType)
	}
	return nil
}

// Rebase rewrites the snapshot so the entry starts at running and returns
// the new balanceAfter.
func (e *LedgerEntry) Rebase(running decimal.Decimal) (decimal.Decimal, error) {
	e.BalanceBefore = running
	e.BalanceAfter = running.Add(e.TransactionAmount)
	if err := e.Verify(); err != nil {
		return decimal.Zero, err
	}
	return e.BalanceAfter, nil
}

// BalanceSnapshot is the rewrite applied to an entry during recalculation.
type BalanceSnapshot struct {
	EntryID       int64
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// Snapshot returns the entry's current before/after pair.
func (e *LedgerEntry) Snapshot() BalanceSnapshot {
	return BalanceSnapshot{EntryID: e.ID, BalanceBefore: e.BalanceBefore, BalanceAfter: e.BalanceAfter}
}

// CurrentBalance is the cached effective balance of one account.
type CurrentBalance struct {
	Account     AccountKey
	Balance     decimal.Decimal
	LastUpdated time.Time
}

// HistoryFilter narrows a history query by business date. Bounds are inclusive.
type HistoryFilter struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the filter.
func (f HistoryFilter) Contains(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && t.After(*f.To) {
		return false
	}
	return true
}
