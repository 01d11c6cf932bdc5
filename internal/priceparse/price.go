// Package priceparse converts the Brazilian-formatted price strings a
// parser extracts (e.g. "R$ 1.234,56") into decimal.Decimal. This is
// string/number normalization, not page-structure extraction, so it sits
// outside the spec.md §1 "HTML parser heuristics" Non-goal.
//
// Grounded on
// _examples/original_source/market_scraper/app/utils/price.py's
// parse_price_str/parse_optional_price_str.
package priceparse

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iaros/marketwatch/internal/apperr"
)

// Parse converts raw (e.g. "R$ 1.234,56") into a Decimal, stripping the
// currency symbol and swapping the Brazilian thousands/decimal
// separators for the ones decimal.NewFromString expects. An empty or
// unparseable raw returns an *apperr.Error tagged ParsingFailed.
func Parse(raw, url string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, apperr.New(apperr.ParsingFailed, "price not found on page "+url)
	}

	normalized := strings.TrimSpace(strings.ReplaceAll(trimmed, "R$", ""))
	normalized = strings.ReplaceAll(normalized, ".", "")
	normalized = strings.ReplaceAll(normalized, ",", ".")

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Decimal{}, apperr.Wrap(apperr.ParsingFailed, "invalid price \""+raw+"\" on page "+url, err)
	}
	return value, nil
}

// ParseOptional is Parse, but returns (nil, nil) for empty/blank raw
// instead of an error.
func ParseOptional(raw, url string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	value, err := Parse(raw, url)
	if err != nil {
		return nil, err
	}
	return &value, nil
}
