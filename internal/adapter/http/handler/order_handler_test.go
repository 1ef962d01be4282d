package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/adapter/http/dto"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

type processorStub struct {
	orderFn    func(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error)
	documentFn func(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error)
	adjustFn   func(ctx context.Context, input usecase.AdjustBalanceInput) (*domain.LedgerEntry, error)
}

func (s *processorStub) ProcessOrderCreation(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
	return s.orderFn(ctx, order, performedBy)
}

func (s *processorStub) ProcessAccountingDocument(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error) {
	return s.documentFn(ctx, doc, performedBy)
}

func (s *processorStub) AdjustBalance(ctx context.Context, input usecase.AdjustBalanceInput) (*domain.LedgerEntry, error) {
	return s.adjustFn(ctx, input)
}

type deleterStub struct {
	orderFn    func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error)
	documentFn func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error)
}

func (s *deleterStub) DeleteOrder(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
	return s.orderFn(ctx, id, performedBy)
}

func (s *deleterStub) DeleteDocument(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
	return s.documentFn(ctx, id, performedBy)
}

func TestOrderHandler_Create_Success(t *testing.T) {
	var (
		captured *domain.Order
		by       string
	)
	h := NewOrderHandler(&processorStub{
		orderFn: func(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
			captured, by = order, performedBy
			stored := *order
			stored.ID = 11
			stored.CreatedBy = performedBy
			return &stored, nil
		},
	}, &deleterStub{})

	body, _ := json.Marshal(dto.ProcessOrderRequest{
		CustomerID:     7,
		FromCurrencyID: 1,
		ToCurrencyID:   2,
		FromAmount:     decimal.RequireFromString("100"),
		ToAmount:       decimal.RequireFromString("90"),
		Rate:           decimal.RequireFromString("0.9"),
		PerformedBy:    "alice",
	})

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.ID != 0 || captured.CustomerID != 7 || by != "alice" {
		t.Fatalf("unexpected input %+v by %q", captured, by)
	}

	var resp dto.OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != 11 || resp.ToAmount != "90" || resp.CreatedBy != "alice" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandler_Create_InvalidBody(t *testing.T) {
	h := NewOrderHandler(&processorStub{}, &deleterStub{})

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrderHandler_Create_MapsDomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrSameCurrency, http.StatusBadRequest},
		{fmt.Errorf("%w: id 3", domain.ErrCustomerNotFound), http.StatusNotFound},
		{domain.ErrValidationFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewOrderHandler(&processorStub{
				orderFn: func(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
					return nil, tt.err
				},
			}, &deleterStub{})

			rec := httptest.NewRecorder()
			h.Create(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"customer_id":1}`)))

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestOrderHandler_Process_UsesPathID(t *testing.T) {
	var captured *domain.Order
	h := NewOrderHandler(&processorStub{
		orderFn: func(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
			captured = order
			return &domain.Order{ID: order.ID}, nil
		},
	}, &deleterStub{})

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/orders/5/process", nil), map[string]string{"id": "5"})
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil || captured.ID != 5 {
		t.Fatalf("expected order 5 to be processed, got %+v", captured)
	}
}

func TestOrderHandler_Process_AlreadyProcessed(t *testing.T) {
	h := NewOrderHandler(&processorStub{
		orderFn: func(ctx context.Context, order *domain.Order, performedBy string) (*domain.Order, error) {
			return nil, domain.ErrAlreadyProcessed
		},
	}, &deleterStub{})

	req := withURLParams(httptest.NewRequest(http.MethodPost, "/orders/5/process", nil), map[string]string{"id": "5"})
	rec := httptest.NewRecorder()

	h.Process(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestOrderHandler_Delete(t *testing.T) {
	var by string
	h := NewOrderHandler(&processorStub{}, &deleterStub{
		orderFn: func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
			by = performedBy
			return &usecase.SoftDeleteResult{SourceID: id, DeletedEntries: 4}, nil
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/orders/9", nil), map[string]string{"id": "9"})
	req.Header.Set(PerformedByHeader, "auditor")
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dto.SoftDeleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SourceID != 9 || resp.DeletedEntries != 4 || by != "auditor" {
		t.Fatalf("unexpected response %+v by %q", resp, by)
	}
}

func TestOrderHandler_Delete_InvalidID(t *testing.T) {
	h := NewOrderHandler(&processorStub{}, &deleterStub{})

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/orders/abc", nil), map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrderHandler_Delete_AlreadyDeleted(t *testing.T) {
	h := NewOrderHandler(&processorStub{}, &deleterStub{
		orderFn: func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
			return nil, domain.ErrAlreadyDeleted
		},
	})

	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/orders/9", nil), map[string]string{"id": "9"})
	rec := httptest.NewRecorder()

	h.Delete(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestDocumentHandler_Create_Success(t *testing.T) {
	var captured *domain.AccountingDocument
	h := NewDocumentHandler(&processorStub{
		documentFn: func(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error) {
			captured = doc
			stored := *doc
			stored.ID = 3
			return &stored, nil
		},
	}, &deleterStub{})

	body := `{"amount":"250","currency_code":"EUR","payer_customer_id":7,"receiver_bank_account_id":2,"is_verified":true}`
	rec := httptest.NewRecorder()

	h.Create(rec, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.PayerCustomerID == nil || *captured.PayerCustomerID != 7 || captured.ReceiverBankAccountID == nil {
		t.Fatalf("unexpected document %+v", captured)
	}
	if !captured.Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("unexpected amount %s", captured.Amount)
	}
}

func TestDocumentHandler_Create_NotVerified(t *testing.T) {
	h := NewDocumentHandler(&processorStub{
		documentFn: func(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error) {
			return nil, domain.ErrDocumentNotVerified
		},
	}, &deleterStub{})

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(`{"amount":"1"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "failed to process document" {
		t.Fatalf("unexpected error response %+v", resp)
	}
}

func TestDocumentHandler_ProcessAndDelete(t *testing.T) {
	var processed, deleted int64
	h := NewDocumentHandler(&processorStub{
		documentFn: func(ctx context.Context, doc *domain.AccountingDocument, performedBy string) (*domain.AccountingDocument, error) {
			processed = doc.ID
			return doc, nil
		},
	}, &deleterStub{
		documentFn: func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
			deleted = id
			return &usecase.SoftDeleteResult{SourceID: id}, nil
		},
	})

	rec := httptest.NewRecorder()
	h.Process(rec, withURLParams(httptest.NewRequest(http.MethodPost, "/documents/4/process", nil), map[string]string{"id": "4"}))
	if rec.Code != http.StatusOK || processed != 4 {
		t.Fatalf("process: status %d, id %d", rec.Code, processed)
	}

	rec = httptest.NewRecorder()
	req := withURLParams(httptest.NewRequest(http.MethodDelete, "/documents/4", strings.NewReader(`{"performed_by":"ops"}`)), map[string]string{"id": "4"})
	h.Delete(rec, req)
	if rec.Code != http.StatusOK || deleted != 4 {
		t.Fatalf("delete: status %d, id %d", rec.Code, deleted)
	}
}

func TestDocumentHandler_Delete_NotFound(t *testing.T) {
	h := NewDocumentHandler(&processorStub{}, &deleterStub{
		documentFn: func(ctx context.Context, id int64, performedBy string) (*usecase.SoftDeleteResult, error) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
		},
	})

	rec := httptest.NewRecorder()
	h.Delete(rec, withURLParams(httptest.NewRequest(http.MethodDelete, "/documents/4", nil), map[string]string{"id": "4"}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
