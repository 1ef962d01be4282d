package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountKind identifies which balance table an account lives in.
type AccountKind string

const (
	AccountKindCustomer AccountKind = "customer"
	AccountKindPool     AccountKind = "pool"
	AccountKindBank     AccountKind = "bank"
)

// AccountKinds lists every kind in AccountKey.Less order. Whole-kind locks
// are taken in this order so they never invert the row lock order.
var AccountKinds = []AccountKind{AccountKindBank, AccountKindCustomer, AccountKindPool}

// IsValid reports whether k is a known account kind.
func (k AccountKind) IsValid() bool {
	switch k {
	case AccountKindCustomer, AccountKindPool, AccountKindBank:
		return true
	}
	return false
}

// AccountKey addresses a single balance holder.
//
// Customer accounts use CustomerID and CurrencyCode, pool accounts use only
// CurrencyCode and bank accounts use only BankAccountID.
type AccountKey struct {
	Kind          AccountKind
	CustomerID    int64
	CurrencyCode  string
	BankAccountID int64
}

// CustomerAccount returns the key of a customer's balance in one currency.
func CustomerAccount(customerID int64, currencyCode string) AccountKey {
	return AccountKey{Kind: AccountKindCustomer, CustomerID: customerID, CurrencyCode: NormalizeCurrency(currencyCode)}
}

// PoolAccount returns the key of a currency pool.
func PoolAccount(currencyCode string) AccountKey {
	return AccountKey{Kind: AccountKindPool, CurrencyCode: NormalizeCurrency(currencyCode)}
}

// BankAccount returns the key of a bank account balance.
func BankAccount(bankAccountID int64) AccountKey {
	return AccountKey{Kind: AccountKindBank, BankAccountID: bankAccountID}
}

// Validate checks that the key carries exactly the fields its kind needs.
func (k AccountKey) Validate() error {
	switch k.Kind {
	case AccountKindCustomer:
		if k.CustomerID <= 0 || k.CurrencyCode == "" {
			return fmt.Errorf("%w: customer account needs customer id and currency", ErrInvalidAccount)
		}
	case AccountKindPool:
		if k.CurrencyCode == "" {
			return fmt.Errorf("%w: pool account needs currency", ErrInvalidAccount)
		}
	case AccountKindBank:
		if k.BankAccountID <= 0 {
			return fmt.Errorf("%w: bank account needs bank account id", ErrInvalidAccount)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAccount, k.Kind)
	}
	return nil
}

// String renders the key as kind:part[:part], e.g. "customer:42:USD".
// It is stable and used as the cache key suffix.
func (k AccountKey) String() string {
	switch k.Kind {
	case AccountKindCustomer:
		return "customer:" + strconv.FormatInt(k.CustomerID, 10) + ":" + k.CurrencyCode
	case AccountKindPool:
		return "pool:" + k.CurrencyCode
	case AccountKindBank:
		return "bank:" + strconv.FormatInt(k.BankAccountID, 10)
	}
	return string(k.Kind)
}

// Less orders keys deterministically. Row locks are taken in this order.
func (k AccountKey) Less(o AccountKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	if k.CustomerID != o.CustomerID {
		return k.CustomerID < o.CustomerID
	}
	if k.CurrencyCode != o.CurrencyCode {
		return k.CurrencyCode < o.CurrencyCode
	}
	return k.BankAccountID < o.BankAccountID
}

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
