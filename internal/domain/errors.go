package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is wrapped by every lookup failure below.
	ErrNotFound = errors.New("not found")

	ErrCustomerNotFound    = fmt.Errorf("customer %w", ErrNotFound)
	ErrCurrencyNotFound    = fmt.Errorf("currency %w", ErrNotFound)
	ErrBankAccountNotFound = fmt.Errorf("bank account %w", ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrDocumentNotFound    = fmt.Errorf("accounting document %w", ErrNotFound)
	ErrBalanceNotFound     = fmt.Errorf("balance %w", ErrNotFound)
	ErrEntryNotFound       = fmt.Errorf("ledger entry %w", ErrNotFound)

	// ErrValidationFailed means a computed balance does not match
	// before + amount. It indicates a logic bug, not a user error.
	ErrValidationFailed = errors.New("balance validation failed")

	// ErrInconsistentState means the balance cache disagrees with history.
	ErrInconsistentState = errors.New("balance cache is inconsistent with history")

	// Input errors
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrZeroAdjustment         = errors.New("adjustment amount must not be zero")
	ErrInvalidAccount         = errors.New("invalid account")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrDocumentNotVerified    = errors.New("accounting document is not verified")
	ErrDocumentHasNoParties   = errors.New("accounting document has no payer or receiver")
	ErrAlreadyDeleted         = errors.New("record is already deleted")
	ErrAlreadyProcessed       = errors.New("reference already has ledger entries")
	ErrSameCurrency           = errors.New("order must exchange two different currencies")
	ErrCurrencyMismatch       = errors.New("bank account currency does not match document currency")
)
