package handler

import (
	"context"
	"net/http"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// DocumentProcessor posts accounting documents to the ledger.
type DocumentProcessor interface {
	ProcessAccountingDocument(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error)
}

// DocumentDeleter soft-deletes documents and replays affected balances.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, documentID int64, performedBy string) (*usecase.SoftDeleteResult, error)
}

// DocumentHandler handles accounting document HTTP requests.
type DocumentHandler struct {
	processor DocumentProcessor
	deleter   DocumentDeleter
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(processor DocumentProcessor, deleter DocumentDeleter) *DocumentHandler {
	return &DocumentHandler{processor: processor, deleter: deleter}
}

// Create stores a new document and posts it.
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessDocumentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	doc, err := h.processor.ProcessAccountingDocument(r.Context(), req.ToDomain(), performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to process document", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DocumentFromDomain(doc))
}

// Process posts a stored document that has no ledger entries yet.
func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID", err.Error())
		return
	}

	var req dto.OperatorRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	doc, err := h.processor.ProcessAccountingDocument(r.Context(), &domain.AccountingDocument{ID: id}, performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to process document", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DocumentFromDomain(doc))
}

// Delete soft-deletes a document and its ledger entries.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document ID", err.Error())
		return
	}

	var req dto.OperatorRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.deleter.DeleteDocument(r.Context(), id, performedBy(r, req.PerformedBy))
	if err != nil {
		writeDomainError(w, "failed to delete document", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SoftDeleteFromUseCase(result))
}
