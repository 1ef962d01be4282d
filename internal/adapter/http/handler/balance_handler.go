package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
)

// BalanceService defines the read side needed by BalanceHandler.
type BalanceService interface {
	GetBalance(ctx context.Context, account domain.AccountKey) (decimal.Decimal, error)
	GetHistory(ctx context.Context, account domain.AccountKey, filter domain.HistoryFilter) ([]*domain.LedgerEntry, error)
	ListBalances(ctx context.Context, kind domain.AccountKind) ([]*domain.CurrentBalance, error)
}

// BalanceHandler serves balances and account history.
type BalanceHandler struct {
	balanceUC BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(balanceUC BalanceService) *BalanceHandler {
	return &BalanceHandler{balanceUC: balanceUC}
}

// List returns every balance of the kind given in the query.
func (h *BalanceHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := domain.AccountKind(r.URL.Query().Get("kind"))

	balances, err := h.balanceUC.ListBalances(r.Context(), kind)
	if err != nil {
		writeDomainError(w, "failed to list balances", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalancesFromDomain(kind, balances))
}

// Balance returns a handler for the effective balance of one account of kind.
func (h *BalanceHandler) Balance(kind domain.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := accountFromPath(r, kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account", err.Error())
			return
		}

		balance, err := h.balanceUC.GetBalance(r.Context(), account)
		if err != nil {
			writeDomainError(w, "failed to get balance", err)
			return
		}

		writeJSON(w, http.StatusOK, dto.BalanceResponse{
			Account: dto.AccountFromDomain(account),
			Balance: balance.String(),
		})
	}
}

// History returns a handler for one page of an account's active entries.
func (h *BalanceHandler) History(kind domain.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := accountFromPath(r, kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account", err.Error())
			return
		}

		from, err := parseTimeQuery(r, "from")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date range", err.Error())
			return
		}
		to, err := parseTimeQuery(r, "to")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date range", err.Error())
			return
		}

		limit, offset, err := domain.ValidatePagination(parseIntQuery(r, "limit", 0), parseIntQuery(r, "offset", 0))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid pagination", err.Error())
			return
		}

		entries, err := h.balanceUC.GetHistory(r.Context(), account, domain.HistoryFilter{From: from, To: to})
		if err != nil {
			writeDomainError(w, "failed to get history", err)
			return
		}

		page := entries[min(offset, len(entries)):min(offset+limit, len(entries))]

		writeJSON(w, http.StatusOK, dto.HistoryResponse{
			Account: dto.AccountFromDomain(account),
			Entries: dto.EntriesFromDomain(page),
			Total:   len(entries),
			Limit:   limit,
			Offset:  offset,
		})
	}
}

// accountFromPath builds the account key of kind from URL parameters.
func accountFromPath(r *http.Request, kind domain.AccountKind) (domain.AccountKey, error) {
	var key domain.AccountKey
	switch kind {
	case domain.AccountKindCustomer:
		id, err := parseIDParam(r, "customerID")
		if err != nil {
			return key, err
		}
		key = domain.CustomerAccount(id, chi.URLParam(r, "currency"))
	case domain.AccountKindPool:
		key = domain.PoolAccount(chi.URLParam(r, "currency"))
	case domain.AccountKindBank:
		id, err := parseIDParam(r, "bankAccountID")
		if err != nil {
			return key, err
		}
		key = domain.BankAccount(id)
	default:
		return key, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAccount, kind)
	}
	return key, key.Validate()
}
