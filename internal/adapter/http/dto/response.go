package dto

import (
	"time"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// AccountResponse identifies a balance holder in API responses.
type AccountResponse struct {
	Key           string `json:"key"`
	Kind          string `json:"kind"`
	CustomerID    int64  `json:"customer_id,omitempty"`
	CurrencyCode  string `json:"currency_code,omitempty"`
	BankAccountID int64  `json:"bank_account_id,omitempty"`
}

// AccountFromDomain converts a domain account key to a response.
func AccountFromDomain(k domain.AccountKey) AccountResponse {
	return AccountResponse{
		Key:           k.String(),
		Kind:          string(k.Kind),
		CustomerID:    k.CustomerID,
		CurrencyCode:  k.CurrencyCode,
		BankAccountID: k.BankAccountID,
	}
}

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	ID                int64           `json:"id"`
	Account           AccountResponse `json:"account"`
	BalanceBefore     string          `json:"balance_before"`
	TransactionAmount string          `json:"transaction_amount"`
	BalanceAfter      string          `json:"balance_after"`
	TransactionType   string          `json:"transaction_type"`
	ReferenceID       *int64          `json:"reference_id,omitempty"`
	Description       string          `json:"description,omitempty"`
	TransactionDate   time.Time       `json:"transaction_date"`
	CreatedAt         time.Time       `json:"created_at"`
	CreatedBy         string          `json:"created_by"`
}

// EntryFromDomain converts a domain entry to a response.
func EntryFromDomain(e *domain.LedgerEntry) *EntryResponse {
	return &EntryResponse{
		ID:                e.ID,
		Account:           AccountFromDomain(e.Account),
		BalanceBefore:     e.BalanceBefore.String(),
		TransactionAmount: e.TransactionAmount.String(),
		BalanceAfter:      e.BalanceAfter.String(),
		TransactionType:   string(e.TransactionType),
		ReferenceID:       e.ReferenceID,
		Description:       e.Description,
		TransactionDate:   e.TransactionDate,
		CreatedAt:         e.CreatedAt,
		CreatedBy:         e.CreatedBy,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.LedgerEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// HistoryResponse is one page of an account's history.
type HistoryResponse struct {
	Account AccountResponse  `json:"account"`
	Entries []*EntryResponse `json:"entries"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// BalanceResponse represents an account balance.
type BalanceResponse struct {
	Account     AccountResponse `json:"account"`
	Balance     string          `json:"balance"`
	LastUpdated *time.Time      `json:"last_updated,omitempty"`
}

// BalanceFromDomain converts a cached balance row to a response.
func BalanceFromDomain(b *domain.CurrentBalance) *BalanceResponse {
	updated := b.LastUpdated
	return &BalanceResponse{
		Account:     AccountFromDomain(b.Account),
		Balance:     b.Balance.String(),
		LastUpdated: &updated,
	}
}

// ListBalancesResponse represents every balance of one kind.
type ListBalancesResponse struct {
	Kind     string             `json:"kind"`
	Balances []*BalanceResponse `json:"balances"`
	Total    int                `json:"total"`
}

// BalancesFromDomain converts cached balance rows to responses.
func BalancesFromDomain(kind domain.AccountKind, balances []*domain.CurrentBalance) ListBalancesResponse {
	result := make([]*BalanceResponse, len(balances))
	for i, b := range balances {
		result[i] = BalanceFromDomain(b)
	}
	return ListBalancesResponse{Kind: string(kind), Balances: result, Total: len(result)}
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID             int64      `json:"id"`
	CustomerID     int64      `json:"customer_id"`
	FromCurrencyID int64      `json:"from_currency_id"`
	ToCurrencyID   int64      `json:"to_currency_id"`
	FromAmount     string     `json:"from_amount"`
	ToAmount       string     `json:"to_amount"`
	Rate           string     `json:"rate"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CreatedBy      string     `json:"created_by"`
	IsDeleted      bool       `json:"is_deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedBy      string     `json:"deleted_by,omitempty"`
}

// OrderFromDomain converts a domain order to a response.
func OrderFromDomain(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		FromCurrencyID: o.FromCurrencyID,
		ToCurrencyID:   o.ToCurrencyID,
		FromAmount:     o.FromAmount.String(),
		ToAmount:       o.ToAmount.String(),
		Rate:           o.Rate.String(),
		Description:    o.Description,
		CreatedAt:      o.CreatedAt,
		CreatedBy:      o.CreatedBy,
		IsDeleted:      o.IsDeleted,
		DeletedAt:      o.DeletedAt,
		DeletedBy:      o.DeletedBy,
	}
}

// DocumentResponse represents an accounting document in API responses.
type DocumentResponse struct {
	ID                    int64      `json:"id"`
	Amount                string     `json:"amount"`
	CurrencyCode          string     `json:"currency_code"`
	PayerCustomerID       *int64     `json:"payer_customer_id,omitempty"`
	ReceiverCustomerID    *int64     `json:"receiver_customer_id,omitempty"`
	PayerBankAccountID    *int64     `json:"payer_bank_account_id,omitempty"`
	ReceiverBankAccountID *int64     `json:"receiver_bank_account_id,omitempty"`
	DocumentDate          time.Time  `json:"document_date"`
	IsVerified            bool       `json:"is_verified"`
	Description           string     `json:"description,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	CreatedBy             string     `json:"created_by"`
	IsDeleted             bool       `json:"is_deleted"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty"`
	DeletedBy             string     `json:"deleted_by,omitempty"`
}

// DocumentFromDomain converts a domain document to a response.
func DocumentFromDomain(d *domain.AccountingDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:                    d.ID,
		Amount:                d.Amount.String(),
		CurrencyCode:          d.CurrencyCode,
		PayerCustomerID:       d.PayerCustomerID,
		ReceiverCustomerID:    d.ReceiverCustomerID,
		PayerBankAccountID:    d.PayerBankAccountID,
		ReceiverBankAccountID: d.ReceiverBankAccountID,
		DocumentDate:          d.DocumentDate,
		IsVerified:            d.IsVerified,
		Description:           d.Description,
		CreatedAt:             d.CreatedAt,
		CreatedBy:             d.CreatedBy,
		IsDeleted:             d.IsDeleted,
		DeletedAt:             d.DeletedAt,
		DeletedBy:             d.DeletedBy,
	}
}

// SoftDeleteResponse summarizes a soft delete and the replay it caused.
type SoftDeleteResponse struct {
	SourceID        int64              `json:"source_id"`
	DeletedEntries  int                `json:"deleted_entries"`
	ReplayedEntries int                `json:"replayed_entries"`
	Accounts        []*BalanceResponse `json:"accounts"`
}

// SoftDeleteFromUseCase converts a soft delete result to a response.
func SoftDeleteFromUseCase(r *usecase.SoftDeleteResult) *SoftDeleteResponse {
	accounts := make([]*BalanceResponse, len(r.Accounts))
	for i, b := range r.Accounts {
		accounts[i] = BalanceFromDomain(b)
	}
	return &SoftDeleteResponse{
		SourceID:        r.SourceID,
		DeletedEntries:  r.DeletedEntries,
		ReplayedEntries: r.ReplayedEntries,
		Accounts:        accounts,
	}
}

// MismatchResponse describes one account whose cache disagrees with history.
type MismatchResponse struct {
	Account    AccountResponse `json:"account"`
	Cached     string          `json:"cached"`
	Expected   string          `json:"expected"`
	Difference string          `json:"difference"`
}

// ConsistencyReportResponse represents the result of a consistency check.
type ConsistencyReportResponse struct {
	Status          string              `json:"status"`
	Consistent      bool                `json:"consistent"`
	CheckedAt       time.Time           `json:"checked_at"`
	CheckedAccounts int                 `json:"checked_accounts"`
	Mismatches      []*MismatchResponse `json:"mismatches"`
}

// ConsistencyReportFromUseCase converts a report to a response.
func ConsistencyReportFromUseCase(r *usecase.ConsistencyReport) *ConsistencyReportResponse {
	mismatches := make([]*MismatchResponse, len(r.Mismatches))
	for i, m := range r.Mismatches {
		mismatches[i] = &MismatchResponse{
			Account:    AccountFromDomain(m.Account),
			Cached:     m.Cached.String(),
			Expected:   m.Expected.String(),
			Difference: m.Difference.String(),
		}
	}

	status := "consistent"
	if !r.Consistent {
		status = "inconsistent"
	}

	return &ConsistencyReportResponse{
		Status:          status,
		Consistent:      r.Consistent,
		CheckedAt:       r.CheckedAt,
		CheckedAccounts: r.CheckedAccounts,
		Mismatches:      mismatches,
	}
}

// RepairResponse reports how many balances a repair rewrote.
type RepairResponse struct {
	Repaired int `json:"repaired"`
}

// RebuildResponse summarizes a date-ordered rebuild.
type RebuildResponse struct {
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	PerformedBy     string         `json:"performed_by"`
	ReplayedEntries map[string]int `json:"replayed_entries"`
	TotalReplayed   int            `json:"total_replayed"`
	Accounts        int            `json:"accounts"`
}

// RebuildFromUseCase converts a rebuild result to a response.
func RebuildFromUseCase(r *usecase.RebuildResult) *RebuildResponse {
	replayed := make(map[string]int, len(r.ReplayedEntries))
	for kind, n := range r.ReplayedEntries {
		replayed[string(kind)] = n
	}
	return &RebuildResponse{
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		PerformedBy:     r.PerformedBy,
		ReplayedEntries: replayed,
		TotalReplayed:   r.TotalReplayed(),
		Accounts:        r.Accounts,
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
