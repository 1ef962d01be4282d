package memory

import (
	"context"

	"github.com/iho/fxledger/internal/domain"
)

// MasterDataRepository implements usecase.MasterDataRepository.
type MasterDataRepository struct {
	store *Store
}

func (r *MasterDataRepository) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.state.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &c, nil
}

func (r *MasterDataRepository) GetCurrency(_ context.Context, id int64) (*domain.Currency, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	c, ok := r.store.state.currencies[id]
	if !ok {
		return nil, domain.ErrCurrencyNotFound
	}
	return &c, nil
}

func (r *MasterDataRepository) GetCurrencyByCode(_ context.Context, code string) (*domain.Currency, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	code = domain.NormalizeCurrency(code)
	for _, c := range r.store.state.currencies {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, domain.ErrCurrencyNotFound
}

func (r *MasterDataRepository) GetBankAccount(_ context.Context, id int64) (*domain.BankAccountInfo, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	b, ok := r.store.state.banks[id]
	if !ok {
		return nil, domain.ErrBankAccountNotFound
	}
	return &b, nil
}

// AddCustomer registers a customer.
func (s *Store) AddCustomer(c domain.Customer) {
	s.writeOutsideTx(func(st *state) {
		st.customers[c.ID] = c
	})
}

// AddCurrency registers a currency. The code is normalized.
func (s *Store) AddCurrency(c domain.Currency) {
	c.Code = domain.NormalizeCurrency(c.Code)
	s.writeOutsideTx(func(st *state) {
		st.currencies[c.ID] = c
	})
}

// AddBankAccount registers a bank account.
func (s *Store) AddBankAccount(b domain.BankAccountInfo) {
	b.CurrencyCode = domain.NormalizeCurrency(b.CurrencyCode)
	s.writeOutsideTx(func(st *state) {
		st.banks[b.ID] = b
	})
}

// SeedDemo registers a small master data set for local runs.
func (s *Store) SeedDemo() {
	for _, c := range []domain.Currency{
		{ID: 1, Code: "USD", Name: "US Dollar"},
		{ID: 2, Code: "EUR", Name: "Euro"},
		{ID: 3, Code: "IRR", Name: "Iranian Rial"},
		{ID: 4, Code: "AED", Name: "UAE Dirham"},
	} {
		s.AddCurrency(c)
	}
	for _, c := range []domain.Customer{
		{ID: 1, Name: "Demo Customer 1"},
		{ID: 2, Name: "Demo Customer 2"},
		{ID: 3, Name: "Demo Customer 3"},
	} {
		s.AddCustomer(c)
	}
	for _, b := range []domain.BankAccountInfo{
		{ID: 1, Name: "Main USD", CurrencyCode: "USD"},
		{ID: 2, Name: "Main IRR", CurrencyCode: "IRR"},
		{ID: 3, Name: "Main AED", CurrencyCode: "AED"},
	} {
		s.AddBankAccount(b)
	}
}
