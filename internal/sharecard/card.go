// Package sharecard builds the monthly summary image users share.
package sharecard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pnlcal/internal/core"
)

// MaxWinners is the number of ticker symbols a card can highlight.
const MaxWinners = 3

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.]{1,10}$`)

// Card is everything drawn on a share card.
type Card struct {
	Month   core.YearMonth
	Total   decimal.Decimal
	Stats   core.MonthStats
	Winners []string
}

// NewCard summarises entries for the month. Entries outside the month are
// ignored so callers can pass a whole fetch range.
func NewCard(ym core.YearMonth, entries []core.Entry, winners []string) Card {
	inMonth := core.EntriesInMonth(entries, ym)
	return Card{
		Month:   ym,
		Total:   core.MonthlyTotal(inMonth, ym),
		Stats:   core.ComputeStats(inMonth),
		Winners: PickWinners(winners),
	}
}

// PickWinners normalises ticker input: upper-cased, restricted to
// [A-Z0-9.]{1,10}, de-duplicated and capped at MaxWinners. Invalid symbols
// are dropped.
func PickWinners(symbols []string) []string {
	out := make([]string, 0, MaxWinners)
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			sym := strings.ToUpper(strings.TrimSpace(part))
			if !tickerPattern.MatchString(sym) || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
			if len(out) == MaxWinners {
				return out
			}
		}
	}
	return out
}

var thousand = decimal.NewFromInt(1000)

// FormatCompact renders a dollar amount for the card: "$1.2K" from a
// thousand upwards, whole dollars below, sign kept.
func FormatCompact(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	abs := d.Abs()
	if abs.GreaterThanOrEqual(thousand) {
		return fmt.Sprintf("%s$%sK", sign, abs.Div(thousand).StringFixed(1))
	}
	whole := abs.Round(0)
	if whole.IsZero() {
		sign = ""
	}
	return fmt.Sprintf("%s$%s", sign, whole.String())
}

// Filename is the download name of the card image.
func Filename(ym core.YearMonth) string {
	return fmt.Sprintf("pnl-%s-%d.png", ym.Name(), ym.Year)
}
