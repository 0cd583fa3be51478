// Package core provides amount parsing and formatting utilities.
//
// This file contains functions for parsing signed P/L amounts and trade counts
// from user input and rendering them for display.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a signed decimal string to a P/L amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// leading sign and surrounding whitespace. The value is kept at full precision
// and rounded to cents only for display. Empty or malformed input yields a
// *ValidationError for the "pnl_amount" field.
//
// Examples:
//
//	ParseAmount("125.50")  -> 125.5, nil
//	ParseAmount("-42,10")  -> -42.1, nil
//	ParseAmount("")        -> 0, ValidationError (amount required)
//	ParseAmount("1.2.3")   -> 0, ValidationError
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Field: "pnl_amount", Reason: "amount is required"}
	}
	s = strings.ReplaceAll(s, ",", ".")
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" || body == "." {
		return decimal.Zero, &ValidationError{Field: "pnl_amount", Reason: "not a number"}
	}
	if strings.Count(body, ".") > 1 {
		return decimal.Zero, &ValidationError{Field: "pnl_amount", Reason: "not a number"}
	}
	for _, r := range body {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, &ValidationError{Field: "pnl_amount", Reason: "not a number"}
		}
	}
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "pnl_amount", Reason: "not a number"}
	}
	return d, nil
}

// ParseTrades parses a trade count, defaulting to 0 when the input is empty
// or not an integer. Negative counts are clamped to 0.
func ParseTrades(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// FormatUSD renders an amount as US dollars with two decimals, e.g. "-$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	out := "$" + groupThousands(intPart) + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
