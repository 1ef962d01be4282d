package handler

import (
	"context"
	"net/http"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// BalanceAdjuster posts manual adjustments.
type BalanceAdjuster interface {
	AdjustBalance(ctx context.Context, input usecase.AdjustBalanceInput) (*domain.LedgerEntry, error)
}

// AdjustmentHandler handles manual balance adjustments.
type AdjustmentHandler struct {
	adjuster BalanceAdjuster
}

// NewAdjustmentHandler creates a new AdjustmentHandler.
func NewAdjustmentHandler(adjuster BalanceAdjuster) *AdjustmentHandler {
	return &AdjustmentHandler{adjuster: adjuster}
}

// Create posts a signed adjustment to one account.
func (h *AdjustmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustBalanceRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account", err.Error())
		return
	}
	input.PerformedBy = performedBy(r, input.PerformedBy)

	entry, err := h.adjuster.AdjustBalance(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to adjust balance", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}
