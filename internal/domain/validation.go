package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation errors
var (
	ErrInvalidCurrency     = errors.New("invalid currency code")
	ErrAmountTooLarge      = errors.New("amount exceeds maximum allowed")
	ErrDescriptionTooLarge = errors.New("description exceeds limit")
	ErrInvalidDateRange    = errors.New("date range starts after it ends")
)

// Validation constants
const (
	MaxDescriptionLength = 500
	MaxPostingAmount     = "1000000000000000" // 1 quadrillion, large enough for IRR
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// ValidateCurrency validates the shape of an ISO 4217 code. Whether the
// currency exists is decided by master data, not here.
func ValidateCurrency(currency string) error {
	currency = NormalizeCurrency(currency)

	if !currencyRegex.MatchString(currency) {
		return fmt.Errorf("%w: %q is not a three letter code", ErrInvalidCurrency, currency)
	}

	return nil
}

// ValidateAmount validates a positive posting amount.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	return validateMagnitude(amount)
}

// ValidateAdjustment validates a signed manual adjustment.
func ValidateAdjustment(amount decimal.Decimal) error {
	if amount.IsZero() {
		return ErrZeroAdjustment
	}

	return validateMagnitude(amount)
}

func validateMagnitude(amount decimal.Decimal) error {
	maxAmount, _ := decimal.NewFromString(MaxPostingAmount)
	if amount.Abs().GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrAmountTooLarge, MaxPostingAmount)
	}

	return nil
}

// ValidateDescription validates free-text reasons attached to entries.
func ValidateDescription(description string) error {
	if len(strings.TrimSpace(description)) > MaxDescriptionLength {
		return fmt.Errorf("%w: %d characters", ErrDescriptionTooLarge, MaxDescriptionLength)
	}

	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
