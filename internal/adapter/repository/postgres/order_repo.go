package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// OrderRepository implements usecase.OrderRepository. Every operation runs
// inside the caller's transaction.
type OrderRepository struct{}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// Create inserts an order and assigns its ID.
func (r *OrderRepository) Create(ctx context.Context, tx usecase.Transaction, order *domain.Order) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	return q.QueryRow(ctx, `
		INSERT INTO orders (customer_id, from_currency_id, to_currency_id, from_amount, to_amount,
			rate, description, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		order.CustomerID,
		order.FromCurrencyID,
		order.ToCurrencyID,
		decimalToNumeric(order.FromAmount),
		decimalToNumeric(order.ToAmount),
		decimalToNumeric(order.Rate),
		order.Description,
		timeToPgTimestamptz(order.CreatedAt),
		order.CreatedBy,
	).Scan(&order.ID)
}

// GetByIDForUpdate reads and row-locks an order.
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id int64) (*domain.Order, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		SELECT id, customer_id, from_currency_id, to_currency_id, from_amount, to_amount, rate,
			description, created_at, created_by, is_deleted, deleted_at, deleted_by
		FROM orders WHERE id = $1 FOR UPDATE`, id)

	var (
		o                          domain.Order
		fromAmount, toAmount, rate pgtype.Numeric
		createdAt, deletedAt       pgtype.Timestamptz
		deletedBy                  pgtype.Text
	)
	err = row.Scan(&o.ID, &o.CustomerID, &o.FromCurrencyID, &o.ToCurrencyID, &fromAmount, &toAmount, &rate,
		&o.Description, &createdAt, &o.CreatedBy, &o.IsDeleted, &deletedAt, &deletedBy)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	o.FromAmount = numericToDecimal(fromAmount)
	o.ToAmount = numericToDecimal(toAmount)
	o.Rate = numericToDecimal(rate)
	o.CreatedAt = createdAt.Time
	o.DeletedAt = timestamptzPtr(deletedAt)
	o.DeletedBy = textValue(deletedBy)

	return &o, nil
}

// MarkDeleted soft-deletes an order.
func (r *OrderRepository) MarkDeleted(ctx context.Context, tx usecase.Transaction, id int64, deletedAt time.Time, deletedBy string) error {
	return markDeleted(ctx, tx, "orders", id, deletedAt, deletedBy, domain.ErrOrderNotFound)
}

// DocumentRepository implements usecase.DocumentRepository.
type DocumentRepository struct{}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{}
}

// Create inserts an accounting document and assigns its ID.
func (r *DocumentRepository) Create(ctx context.Context, tx usecase.Transaction, doc *domain.AccountingDocument) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	return q.QueryRow(ctx, `
		INSERT INTO accounting_documents (amount, currency_code, payer_customer_id, receiver_customer_id,
			payer_bank_account_id, receiver_bank_account_id, document_date, is_verified, description,
			created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		decimalToNumeric(doc.Amount),
		doc.CurrencyCode,
		doc.PayerCustomerID,
		doc.ReceiverCustomerID,
		doc.PayerBankAccountID,
		doc.ReceiverBankAccountID,
		timeToPgTimestamptz(doc.DocumentDate),
		doc.IsVerified,
		doc.Description,
		timeToPgTimestamptz(doc.CreatedAt),
		doc.CreatedBy,
	).Scan(&doc.ID)
}

// GetByIDForUpdate reads and row-locks a document.
func (r *DocumentRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id int64) (*domain.AccountingDocument, error) {
	q, err := pgxTx(tx)
	if err != nil {
		return nil, err
	}

	row := q.QueryRow(ctx, `
		SELECT id, amount, currency_code, payer_customer_id, receiver_customer_id, payer_bank_account_id,
			receiver_bank_account_id, document_date, is_verified, description, created_at, created_by,
			is_deleted, deleted_at, deleted_by
		FROM accounting_documents WHERE id = $1 FOR UPDATE`, id)

	var (
		d                                  domain.AccountingDocument
		amount                             pgtype.Numeric
		documentDate, createdAt, deletedAt pgtype.Timestamptz
		deletedBy                          pgtype.Text
	)
	err = row.Scan(&d.ID, &amount, &d.CurrencyCode, &d.PayerCustomerID, &d.ReceiverCustomerID,
		&d.PayerBankAccountID, &d.ReceiverBankAccountID, &documentDate, &d.IsVerified, &d.Description,
		&createdAt, &d.CreatedBy, &d.IsDeleted, &deletedAt, &deletedBy)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	d.Amount = numericToDecimal(amount)
	d.DocumentDate = documentDate.Time
	d.CreatedAt = createdAt.Time
	d.DeletedAt = timestamptzPtr(deletedAt)
	d.DeletedBy = textValue(deletedBy)

	return &d, nil
}

// MarkDeleted soft-deletes a document.
func (r *DocumentRepository) MarkDeleted(ctx context.Context, tx usecase.Transaction, id int64, deletedAt time.Time, deletedBy string) error {
	return markDeleted(ctx, tx, "accounting_documents", id, deletedAt, deletedBy, domain.ErrDocumentNotFound)
}

func markDeleted(ctx context.Context, tx usecase.Transaction, table string, id int64, deletedAt time.Time, deletedBy string, notFound error) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `UPDATE `+table+` SET is_deleted = TRUE, deleted_at = $2, deleted_by = $3
		WHERE id = $1 AND NOT is_deleted`, id, timeToPgTimestamptz(deletedAt), deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", notFound, id)
	}
	return nil
}
