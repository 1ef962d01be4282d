package postgres

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/fxledger/internal/domain"
)

// tableSpec describes the history and balance tables of one account kind.
// Every kind shares the entry shape and differs only in its key columns.
type tableSpec struct {
	kind     domain.AccountKind
	history  string
	balances string
	keyCols  []string
	// keySelect projects the key as (customer_id, currency_code,
	// bank_account_id) so rows of every kind scan the same way.
	keySelect string
}

var tableSpecs = map[domain.AccountKind]tableSpec{
	domain.AccountKindCustomer: {
		kind:      domain.AccountKindCustomer,
		history:   "customer_balance_history",
		balances:  "customer_balances",
		keyCols:   []string{"customer_id", "currency_code"},
		keySelect: "customer_id, currency_code, 0::BIGINT",
	},
	domain.AccountKindPool: {
		kind:      domain.AccountKindPool,
		history:   "pool_balance_history",
		balances:  "pool_balances",
		keyCols:   []string{"currency_code"},
		keySelect: "0::BIGINT, currency_code, 0::BIGINT",
	},
	domain.AccountKindBank: {
		kind:      domain.AccountKindBank,
		history:   "bank_balance_history",
		balances:  "bank_balances",
		keyCols:   []string{"bank_account_id"},
		keySelect: "0::BIGINT, ''::VARCHAR, bank_account_id",
	},
}

func specFor(kind domain.AccountKind) (tableSpec, error) {
	spec, ok := tableSpecs[kind]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidAccount, kind)
	}
	return spec, nil
}

func specForAccount(account domain.AccountKey) (tableSpec, error) {
	if err := account.Validate(); err != nil {
		return tableSpec{}, err
	}
	return specFor(account.Kind)
}

// keyArgs returns the key column values in keyCols order.
func (s tableSpec) keyArgs(account domain.AccountKey) []any {
	switch s.kind {
	case domain.AccountKindCustomer:
		return []any{account.CustomerID, account.CurrencyCode}
	case domain.AccountKindPool:
		return []any{account.CurrencyCode}
	default:
		return []any{account.BankAccountID}
	}
}

// keyWhere renders "col = $n AND ..." starting at placeholder first.
func (s tableSpec) keyWhere(first int) string {
	parts := make([]string, len(s.keyCols))
	for i, col := range s.keyCols {
		parts[i] = col + " = $" + strconv.Itoa(first+i)
	}
	return strings.Join(parts, " AND ")
}

func (s tableSpec) keyList() string {
	return strings.Join(s.keyCols, ", ")
}

func (s tableSpec) account(customerID int64, currencyCode string, bankAccountID int64) domain.AccountKey {
	switch s.kind {
	case domain.AccountKindCustomer:
		return domain.CustomerAccount(customerID, currencyCode)
	case domain.AccountKindPool:
		return domain.PoolAccount(currencyCode)
	default:
		return domain.BankAccount(bankAccountID)
	}
}

func placeholders(first, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(first+i)
	}
	return strings.Join(parts, ", ")
}

// Type conversion helpers.
func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric

	_ = n.Scan(d.String())

	return n
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}

	d, _ := decimal.NewFromString(n.Int.String())
	if n.Exp != 0 {
		d = d.Shift(n.Exp)
	}

	return d
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func textValue(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
