package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a currency exchange for a customer: the customer gives
// FromAmount of one currency and receives ToAmount of another.
type Order struct {
	ID             int64
	CustomerID     int64
	FromCurrencyID int64
	ToCurrencyID   int64
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	Rate           decimal.Decimal
	Description    string
	CreatedAt      time.Time
	CreatedBy      string
	IsDeleted      bool
	DeletedAt      *time.Time
	DeletedBy      string
}

// Validate validates the order amounts and parties.
func (o *Order) Validate() error {
	if o.CustomerID <= 0 {
		return ErrCustomerNotFound
	}
	if o.FromAmount.LessThanOrEqual(decimal.Zero) || o.ToAmount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

// AccountingDocument records money moving between customers and bank
// accounts. Any of the four parties may be absent.
type AccountingDocument struct {
	ID                    int64
	Amount                decimal.Decimal
	CurrencyCode          string
	PayerCustomerID       *int64
	ReceiverCustomerID    *int64
	PayerBankAccountID    *int64
	ReceiverBankAccountID *int64
	DocumentDate          time.Time
	IsVerified            bool
	Description           string
	CreatedAt             time.Time
	CreatedBy             string
	IsDeleted             bool
	DeletedAt             *time.Time
	DeletedBy             string
}

// Validate validates the document before it is posted to the ledger.
func (d *AccountingDocument) Validate() error {
	if d.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !d.IsVerified {
		return ErrDocumentNotVerified
	}
	if d.PayerCustomerID == nil && d.ReceiverCustomerID == nil &&
		d.PayerBankAccountID == nil && d.ReceiverBankAccountID == nil {
		return ErrDocumentHasNoParties
	}
	return nil
}

// Customer is master data owned by the customer workflow.
type Customer struct {
	ID   int64
	Name string
}

// Currency is master data mapping a numeric id to an ISO code.
type Currency struct {
	ID   int64
	Code string
	Name string
}

// BankAccountInfo is master data for a bank account. Each bank account
// holds a single currency.
type BankAccountInfo struct {
	ID           int64
	Name         string
	CurrencyCode string
}
