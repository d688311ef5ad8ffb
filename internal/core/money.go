// Package core holds the domain model shared by storage, services and the bot.
//
// Amounts are float64 in the unit of their currency. Rounding to cents goes
// through RoundMoney so the half-away-from-zero rule is applied consistently.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundMoney rounds x to two decimal places.
func RoundMoney(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// MulRound multiplies an amount by a rate and rounds the product to cents.
func MulRound(amount, rate float64) float64 {
	f, _ := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)).Round(2).Float64()
	return f
}

// ParseAmount parses a user-typed positive amount. Both "12.34" and "12,34"
// are accepted.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
