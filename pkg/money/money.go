// Package money converts between decimal prices and gateway minor units.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "usd"

var hundred = decimal.NewFromInt(100)

// ToMinor converts a major-unit amount (e.g. 200.00) into minor units (20000),
// rounding half away from zero at the cent.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts minor units back into a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(hundred)
}

// WholeCents reports whether amount has no fraction below one cent, so it
// survives a numeric(12,2) column unchanged.
func WholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// LineTotal is unit price times quantity.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// NormalizeCurrency lower-cases a currency code, defaulting to usd, and
// rejects anything that is not three ASCII letters.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	if c == "" {
		return DefaultCurrency, nil
	}
	if len(c) != 3 {
		return "", fmt.Errorf("currency %q must be a 3-letter code", code)
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return "", fmt.Errorf("currency %q must be a 3-letter code", code)
		}
	}
	return c, nil
}
