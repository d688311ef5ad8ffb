// Package currency validates ISO currency codes, formats amounts and resolves
// exchange rates against a chat's base currency.
package currency

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var supported = map[string]struct{}{
	"AUD": {}, "BGN": {}, "BRL": {}, "CAD": {}, "CHF": {}, "CNY": {}, "CZK": {}, "DKK": {},
	"EUR": {}, "GBP": {}, "HKD": {}, "HUF": {}, "IDR": {}, "ILS": {}, "INR": {}, "ISK": {},
	"JPY": {}, "KRW": {}, "MXN": {}, "MYR": {}, "NOK": {}, "NZD": {}, "PHP": {}, "PLN": {},
	"RON": {}, "SEK": {}, "SGD": {}, "THB": {}, "TRY": {}, "USD": {}, "ZAR": {},
}

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

var symbols = map[string]string{
	"EUR": "€", "USD": "$", "GBP": "£", "JPY": "¥", "CHF": "CHF",
	"SEK": "kr", "NOK": "kr", "DKK": "kr", "ISK": "kr",
	"PLN": "zł", "CZK": "Kč", "HUF": "Ft", "RON": "lei", "RUB": "₽",
	"BGN": "лв", "TRY": "₺", "BRL": "R$", "CAD": "C$", "AUD": "A$",
	"NZD": "NZ$", "INR": "₹", "KRW": "₩", "CNY": "¥", "HKD": "HK$",
	"SGD": "S$", "MXN": "MX$", "ZAR": "R", "ILS": "₪", "THB": "฿",
	"PHP": "₱", "MYR": "RM", "IDR": "Rp",
}

// Symbols written directly before the number.
var prefixSymbols = map[string]bool{
	"€": true, "$": true, "£": true, "¥": true, "₹": true,
	"₩": true, "₺": true, "₪": true, "₱": true, "₽": true,
}

// InvalidCurrencyError is returned for codes outside the supported set. It
// is a user error, distinct from a rate being temporarily unavailable.
type InvalidCurrencyError struct {
	Input string
}

func (e *InvalidCurrencyError) Error() string {
	return fmt.Sprintf("Unknown currency '%s'. Use /rate to see supported currencies.", e.Input)
}

// Validate normalizes code to upper case and checks it is supported.
func Validate(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !codePattern.MatchString(c) {
		return "", &InvalidCurrencyError{Input: code}
	}
	if _, ok := supported[c]; !ok {
		return "", &InvalidCurrencyError{Input: code}
	}
	return c, nil
}

// Supported returns the supported codes in alphabetical order.
func Supported() []string {
	out := make([]string, 0, len(supported))
	for c := range supported {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Symbol returns the display symbol for code, or code itself.
func Symbol(code string) string {
	if s, ok := symbols[code]; ok {
		return s
	}
	return code
}

// FormatAmount renders amount with two decimals and the currency symbol.
func FormatAmount(amount float64, code string) string {
	sym := Symbol(code)
	if prefixSymbols[sym] {
		return fmt.Sprintf("%s%.2f", sym, amount)
	}
	return fmt.Sprintf("%.2f %s", amount, sym)
}
