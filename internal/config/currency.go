package config

import (
	"fmt"
	"math"
	"strings"
)

// Minor-unit exponents for currencies accepted by both PayPal and Stripe.
// HUF and TWD are left out: the two providers disagree on their decimals.
var currencyExponents = map[string]int{
	"AUD": 2,
	"BRL": 2,
	"CAD": 2,
	"CHF": 2,
	"CZK": 2,
	"DKK": 2,
	"EUR": 2,
	"GBP": 2,
	"HKD": 2,
	"ILS": 2,
	"JPY": 0,
	"MXN": 2,
	"MYR": 2,
	"NOK": 2,
	"NZD": 2,
	"PHP": 2,
	"PLN": 2,
	"SEK": 2,
	"SGD": 2,
	"THB": 2,
	"USD": 2,
}

func CurrencyExponent(currency string) (int, bool) {
	exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]
	return exp, ok
}

// ToMinor converts a catalog price to the currency's smallest unit.
func ToMinor(amount float64, currency string) (int64, error) {
	exp, ok := CurrencyExponent(currency)
	if !ok {
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}
	return int64(math.Round(amount * math.Pow10(exp))), nil
}

// FormatMinor renders minor units as a decimal string, e.g. 1000 USD -> "10.00", 500 JPY -> "500".
func FormatMinor(minor int64, currency string) string {
	exp, ok := CurrencyExponent(currency)
	if !ok {
		exp = 2
	}
	if exp == 0 {
		return fmt.Sprintf("%d", minor)
	}
	scale := int64(math.Pow10(exp))
	return fmt.Sprintf("%d.%0*d", minor/scale, exp, minor%scale)
}
