package priceparse

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseConvertsBrazilianFormat(t *testing.T) {
	got, err := Parse("R$ 1.234,56", "https://example.com/p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := decimal.RequireFromString("1234.56")
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseReturnsErrorForEmptyString(t *testing.T) {
	if _, err := Parse("  ", "https://example.com/p"); err == nil {
		t.Fatal("expected an error for a blank price string")
	}
}

func TestParseReturnsErrorForUnparseableString(t *testing.T) {
	if _, err := Parse("R$ not-a-number", "https://example.com/p"); err == nil {
		t.Fatal("expected an error for an unparseable price string")
	}
}

func TestParseOptionalReturnsNilForEmptyString(t *testing.T) {
	got, err := ParseOptional("", "https://example.com/p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestParseOptionalParsesNonEmptyString(t *testing.T) {
	got, err := ParseOptional("R$ 99,90", "https://example.com/p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || !got.Equal(decimal.RequireFromString("99.90")) {
		t.Fatalf("unexpected result: %v", got)
	}
}
