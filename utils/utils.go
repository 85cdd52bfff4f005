// Package utils provides utility functions for the application.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

func ToPtr[T any](v T) *T {
	return &v
}

// DerefString returns the pointed-to string or ""
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NonEmptyPtr returns nil for blank strings
func NonEmptyPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// RoundFloat rounds half away from zero to the given number of decimal places
func RoundFloat(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// AmountToCents converts a currency amount to integer minor units
func AmountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
