package memory

import (
	"context"
	"time"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// OrderRepository implements usecase.OrderRepository.
type OrderRepository struct {
	store *Store
}

// Create stores the order and assigns its ID.
func (r *OrderRepository) Create(_ context.Context, tx usecase.Transaction, order *domain.Order) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	st.nextOrderID++
	order.ID = st.nextOrderID
	st.orders[order.ID] = *order
	return nil
}

// GetByIDForUpdate returns an order.
func (r *OrderRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id int64) (*domain.Order, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	o, ok := st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

// MarkDeleted stamps the order's soft-delete fields.
func (r *OrderRepository) MarkDeleted(_ context.Context, tx usecase.Transaction, id int64, deletedAt time.Time, deletedBy string) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	o, ok := st.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.IsDeleted = true
	o.DeletedAt = &deletedAt
	o.DeletedBy = deletedBy
	st.orders[id] = o
	return nil
}

// DocumentRepository implements usecase.DocumentRepository.
type DocumentRepository struct {
	store *Store
}

// Create stores the document and assigns its ID.
func (r *DocumentRepository) Create(_ context.Context, tx usecase.Transaction, doc *domain.AccountingDocument) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	st.nextDocumentID++
	doc.ID = st.nextDocumentID
	st.documents[doc.ID] = *doc
	return nil
}

// GetByIDForUpdate returns a document.
func (r *DocumentRepository) GetByIDForUpdate(_ context.Context, tx usecase.Transaction, id int64) (*domain.AccountingDocument, error) {
	st, err := r.store.working(tx)
	if err != nil {
		return nil, err
	}

	d, ok := st.documents[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return &d, nil
}

// MarkDeleted stamps the document's soft-delete fields.
func (r *DocumentRepository) MarkDeleted(_ context.Context, tx usecase.Transaction, id int64, deletedAt time.Time, deletedBy string) error {
	st, err := r.store.working(tx)
	if err != nil {
		return err
	}

	d, ok := st.documents[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.IsDeleted = true
	d.DeletedAt = &deletedAt
	d.DeletedBy = deletedBy
	st.documents[id] = d
	return nil
}
