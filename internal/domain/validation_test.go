package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "upper case code", input: "USD"},
		{name: "lower case code normalized", input: "irr"},
		{name: "padded code normalized", input: " eur "},
		{name: "too short", input: "US", wantErr: true},
		{name: "digits", input: "U5D", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCurrency(tt.input)
			if tt.wantErr && !errors.Is(err, ErrInvalidCurrency) {
				t.Fatalf("expected ErrInvalidCurrency, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.NewFromInt(5_000_000)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := ValidateAmount(decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}

	if err := ValidateAmount(decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}

	tooLarge, _ := decimal.NewFromString("1000000000000001")
	if err := ValidateAmount(tooLarge); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
}

func TestValidateAdjustment(t *testing.T) {
	t.Parallel()

	if err := ValidateAdjustment(decimal.NewFromInt(-20)); err != nil {
		t.Fatalf("negative adjustments are allowed, got %v", err)
	}

	if err := ValidateAdjustment(decimal.Zero); !errors.Is(err, ErrZeroAdjustment) {
		t.Fatalf("expected ErrZeroAdjustment, got %v", err)
	}
}

func TestValidateDescription(t *testing.T) {
	t.Parallel()

	if err := ValidateDescription("opening balance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateDescription(strings.Repeat("x", MaxDescriptionLength+1))
	if !errors.Is(err, ErrDescriptionTooLarge) {
		t.Fatalf("expected ErrDescriptionTooLarge, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, _ := ValidatePagination(0, -5)
	if limit != 50 || offset != 0 {
		t.Fatalf("expected defaults 50/0, got %d/%d", limit, offset)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit capped at 1000, got %d", limit)
	}
}
