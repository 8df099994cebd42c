// Package money converts between operator-entered decimal amount strings
// and the integer minor-unit amounts that cross the API boundary.
// Floating-point currency is never transmitted.
package money

import (
	"strings"

	"github.com/dukapos/pos-core-go/internal/domain"
)

// MaxMinorUnits is the largest accepted amount (~$999,999.99), matching
// the backend's payment schema limit.
const MaxMinorUnits int64 = 99_999_999

// SupportedCurrencies is the closed set of ISO 4217 codes the backend accepts.
var SupportedCurrencies = []string{"USD", "KES", "EUR", "GBP"}

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"KES": "KSh ",
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	for _, s := range SupportedCurrencies {
		if c == s {
			return c, nil
		}
	}
	return "", &domain.ErrValidation{
		Field:   "currency",
		Message: "currency must be one of: " + strings.Join(SupportedCurrencies, ", "),
	}
}

// ToMinorUnits converts a decimal amount string ("12.50") to integer minor
// units (1250), rounding half away from zero at the second decimal place.
// The string is parsed digit-by-digit; float64 is never involved.
func ToMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &domain.ErrValidation{Field: "amount", Message: "amount is required"}
	}
	if strings.HasPrefix(s, "-") {
		return 0, &domain.ErrValidation{Field: "amount", Message: "amount must be positive"}
	}
	s = strings.TrimPrefix(s, "+")

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return 0, &domain.ErrValidation{Field: "amount", Message: "malformed amount"}
		}
	}
	if intPart == "" && fracPart == "" {
		return 0, &domain.ErrValidation{Field: "amount", Message: "malformed amount"}
	}

	var units int64
	for i := 0; i < len(intPart); i++ {
		d := intPart[i]
		if d < '0' || d > '9' {
			return 0, &domain.ErrValidation{Field: "amount", Message: "amount must be numeric"}
		}
		units = units*10 + int64(d-'0')
		if units > MaxMinorUnits {
			return 0, &domain.ErrValidation{Field: "amount", Message: "amount exceeds maximum"}
		}
	}

	// Cents: first two fraction digits, then round half away from zero
	// on the rest.
	var cents int64
	for i := 0; i < len(fracPart); i++ {
		d := fracPart[i]
		if d < '0' || d > '9' {
			return 0, &domain.ErrValidation{Field: "amount", Message: "amount must be numeric"}
		}
		switch {
		case i < 2:
			cents = cents*10 + int64(d-'0')
		case i == 2:
			if d >= '5' {
				cents++
			}
		}
	}
	if len(fracPart) == 1 {
		cents *= 10
	}

	minor := units*100 + cents
	if minor > MaxMinorUnits {
		return 0, &domain.ErrValidation{Field: "amount", Message: "amount exceeds maximum"}
	}
	if minor == 0 {
		return 0, &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	return minor, nil
}

// FormatMinorUnits renders an integer minor-unit amount for display,
// e.g. FormatMinorUnits(1250, "USD") == "$12.50".
func FormatMinorUnits(minor int64, currency string) string {
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
	}
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return sign + sym + formatUnits(minor/100) + "." + twoDigits(minor%100)
}

// formatUnits renders the whole-unit part with thousands separators.
func formatUnits(n int64) string {
	s := []byte{}
	for i := 0; ; i++ {
		if i > 0 && i%3 == 0 {
			s = append([]byte{','}, s...)
		}
		s = append([]byte{byte('0' + n%10)}, s...)
		n /= 10
		if n == 0 {
			break
		}
	}
	return string(s)
}

func twoDigits(n int64) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
