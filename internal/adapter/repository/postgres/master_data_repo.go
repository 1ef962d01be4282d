package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/fxledger/internal/domain"
)

// MasterDataRepository implements usecase.MasterDataRepository. The tables
// it reads are owned by the customer and treasury workflows.
type MasterDataRepository struct {
	db querier
}

// NewMasterDataRepository creates a new MasterDataRepository.
func NewMasterDataRepository(pool *pgxpool.Pool) *MasterDataRepository {
	return &MasterDataRepository{db: pool}
}

func (r *MasterDataRepository) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := r.db.QueryRow(ctx, `SELECT id, name FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MasterDataRepository) GetCurrency(ctx context.Context, id int64) (*domain.Currency, error) {
	var c domain.Currency
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM currencies WHERE id = $1`, id).Scan(&c.ID, &c.Code, &c.Name)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrCurrencyNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MasterDataRepository) GetCurrencyByCode(ctx context.Context, code string) (*domain.Currency, error) {
	code = domain.NormalizeCurrency(code)

	var c domain.Currency
	err := r.db.QueryRow(ctx, `SELECT id, code, name FROM currencies WHERE code = $1`, code).Scan(&c.ID, &c.Code, &c.Name)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: code %q", domain.ErrCurrencyNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MasterDataRepository) GetBankAccount(ctx context.Context, id int64) (*domain.BankAccountInfo, error) {
	var b domain.BankAccountInfo
	err := r.db.QueryRow(ctx, `SELECT id, name, currency_code FROM bank_accounts WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.CurrencyCode)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrBankAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
