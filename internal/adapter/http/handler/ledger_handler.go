package handler

import (
	"context"
	"net/http"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/usecase"
)

// ConsistencyService checks and repairs the balance cache against history.
type ConsistencyService interface {
	ValidateBalanceConsistency(ctx context.Context) (*usecase.ConsistencyReport, error)
	RecalculateAllBalancesFromHistory(ctx context.Context) (int, error)
}

// RebuildService replays history in business-date order.
type RebuildService interface {
	RecalculateAllBalancesFromTransactionDates(ctx context.Context, performedBy string) (*usecase.RebuildResult, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	consistency ConsistencyService
	rebuilder   RebuildService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(consistency ConsistencyService, rebuilder RebuildService) *LedgerHandler {
	return &LedgerHandler{consistency: consistency, rebuilder: rebuilder}
}

// CheckConsistency compares every cached balance with its history. An
// inconsistent ledger answers 409 with the mismatches.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.consistency.ValidateBalanceConsistency(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check consistency", err.Error())
		return
	}

	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}

	writeJSON(w, status, dto.ConsistencyReportFromUseCase(report))
}

// Repair overwrites drifted balances with the value history implies.
func (h *LedgerHandler) Repair(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.consistency.RecalculateAllBalancesFromHistory(r.Context())
	if err != nil {
		writeDomainError(w, "failed to repair balances", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RepairResponse{Repaired: repaired})
}

// Rebuild recomputes every snapshot and balance in transaction date order.
func (h *LedgerHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req dto.OperatorRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.rebuilder.RecalculateAllBalancesFromTransactionDates(r.Context(), performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to rebuild ledger", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RebuildFromUseCase(result))
}
