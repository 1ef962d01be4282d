package handler

import (
	"context"
	"net/http"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// OrderProcessor posts orders to the ledger.
type OrderProcessor interface {
	ProcessOrderCreation(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error)
}

// OrderDeleter soft-deletes orders and replays affected balances.
type OrderDeleter interface {
	DeleteOrder(ctx context.Context, orderID int64, performedBy string) (*usecase.SoftDeleteResult, error)
}

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	processor OrderProcessor
	deleter   OrderDeleter
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(processor OrderProcessor, deleter OrderDeleter) *OrderHandler {
	return &OrderHandler{processor: processor, deleter: deleter}
}

// Create stores a new order and posts it.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessOrderRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	order, err := h.processor.ProcessOrderCreation(r.Context(), req.ToDomain(), performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to process order", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.OrderFromDomain(order))
}

// Process posts an order that was stored without ledger entries.
func (h *OrderHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID", err.Error())
		return
	}

	var req dto.OperatorRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	order, err := h.processor.ProcessOrderCreation(r.Context(), &domain.Order{ID: id}, performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to process order", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.OrderFromDomain(order))
}

// Delete soft-deletes an order and its ledger entries.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order ID", err.Error())
		return
	}

	var req dto.OperatorRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.deleter.DeleteOrder(r.Context(), id, performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to delete order", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SoftDeleteFromUseCase(result))
}
