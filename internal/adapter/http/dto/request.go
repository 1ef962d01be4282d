package dto

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// ProcessOrderRequest represents a request to store and post a currency exchange.
type ProcessOrderRequest struct {
	CustomerID     int64           `json:"customer_id"`
	FromCurrencyID int64           `json:"from_currency_id"`
	ToCurrencyID   int64           `json:"to_currency_id"`
	FromAmount     decimal.Decimal `json:"from_amount"`
	ToAmount       decimal.Decimal `json:"to_amount"`
	Rate           decimal.Decimal `json:"rate"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`
	PerformedBy    string          `json:"performed_by,omitempty"`
}

// ToDomain converts the request to a new, unsaved order.
func (r *ProcessOrderRequest) ToDomain() *domain.Order {
	order := &domain.Order{
		CustomerID:     r.CustomerID,
		FromCurrencyID: r.FromCurrencyID,
		ToCurrencyID:   r.ToCurrencyID,
		FromAmount:     r.FromAmount,
		ToAmount:       r.ToAmount,
		Rate:           r.Rate,
		Description:    r.Description,
	}
	if r.CreatedAt != nil {
		order.CreatedAt = *r.CreatedAt
	}
	return order
}

// ProcessDocumentRequest represents a request to store and post an
// accounting document.
type ProcessDocumentRequest struct {
	Amount                decimal.Decimal `json:"amount"`
	CurrencyCode          string          `json:"currency_code"`
	PayerCustomerID       *int64          `json:"payer_customer_id,omitempty"`
	ReceiverCustomerID    *int64          `json:"receiver_customer_id,omitempty"`
	PayerBankAccountID    *int64          `json:"payer_bank_account_id,omitempty"`
	ReceiverBankAccountID *int64          `json:"receiver_bank_account_id,omitempty"`
	DocumentDate          *time.Time      `json:"document_date,omitempty"`
	IsVerified            bool            `json:"is_verified"`
	Description           string          `json:"description,omitempty"`
	PerformedBy           string          `json:"performed_by,omitempty"`
}

// ToDomain converts the request to a new, unsaved document.
func (r *ProcessDocumentRequest) ToDomain() *domain.AccountingDocument {
	doc := &domain.AccountingDocument{
		Amount:                r.Amount,
		CurrencyCode:          r.CurrencyCode,
		PayerCustomerID:       r.PayerCustomerID,
		ReceiverCustomerID:    r.ReceiverCustomerID,
		PayerBankAccountID:    r.PayerBankAccountID,
		ReceiverBankAccountID: r.ReceiverBankAccountID,
		IsVerified:            r.IsVerified,
		Description:           r.Description,
	}
	if r.DocumentDate != nil {
		doc.DocumentDate = *r.DocumentDate
	}
	return doc
}

// AccountRequest addresses one balance holder in a request body.
type AccountRequest struct {
	Kind          string `json:"kind"`
	CustomerID    int64  `json:"customer_id,omitempty"`
	CurrencyCode  string `json:"currency_code,omitempty"`
	BankAccountID int64  `json:"bank_account_id,omitempty"`
}

// ToDomain builds and validates the account key.
func (r AccountRequest) ToDomain() (domain.AccountKey, error) {
	var key domain.AccountKey
	switch domain.AccountKind(r.Kind) {
	case domain.AccountKindCustomer:
		key = domain.CustomerAccount(r.CustomerID, r.CurrencyCode)
	case domain.AccountKindPool:
		key = domain.PoolAccount(r.CurrencyCode)
	case domain.AccountKindBank:
		key = domain.BankAccount(r.BankAccountID)
	default:
		return domain.AccountKey{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAccount, r.Kind)
	}
	if err := key.Validate(); err != nil {
		return domain.AccountKey{}, err
	}
	return key, nil
}

// AdjustBalanceRequest represents a manual adjustment of one account.
type AdjustBalanceRequest struct {
	Account         AccountRequest  `json:"account"`
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
	TransactionDate *time.Time      `json:"transaction_date,omitempty"`
	Correction      bool            `json:"correction,omitempty"`
	PerformedBy     string          `json:"performed_by,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *AdjustBalanceRequest) ToUseCaseInput() (usecase.AdjustBalanceInput, error) {
	account, err := r.Account.ToDomain()
	if err != nil {
		return usecase.AdjustBalanceInput{}, err
	}

	return usecase.AdjustBalanceInput{
		Account:         account,
		Amount:          r.Amount,
		Reason:          r.Reason,
		TransactionDate: r.TransactionDate,
		Correction:      r.Correction,
		PerformedBy:     r.PerformedBy,
	}, nil
}

// OperatorRequest carries the operator for requests without a payload.
type OperatorRequest struct {
	PerformedBy string `json:"performed_by,omitempty"`
}
