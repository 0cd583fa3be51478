package core

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// MonthStats summarises a set of daily entries for the share card.
type MonthStats struct {
	TradingDays int
	WinRate     float64 // percentage 0-100, full precision
	BestDay     decimal.Decimal
	WorstDay    decimal.Decimal
	TotalTrades int
}

// ComputeStats aggregates win rate, best/worst day and trade count. An empty
// collection yields all-zero stats.
func ComputeStats(entries []Entry) MonthStats {
	stats := MonthStats{BestDay: decimal.Zero, WorstDay: decimal.Zero}
	if len(entries) == 0 {
		return stats
	}

	wins := 0
	stats.BestDay = entries[0].PnL
	stats.WorstDay = entries[0].PnL
	for _, e := range entries {
		if e.IsWin() {
			wins++
		}
		if e.PnL.GreaterThan(stats.BestDay) {
			stats.BestDay = e.PnL
		}
		if e.PnL.LessThan(stats.WorstDay) {
			stats.WorstDay = e.PnL
		}
		stats.TotalTrades += e.NumTrades
	}
	stats.TradingDays = len(entries)
	stats.WinRate = 100 * float64(wins) / float64(stats.TradingDays)
	return stats
}

// FormatWinRate renders the win rate with one decimal, e.g. "66.7%".
func (s MonthStats) FormatWinRate() string {
	return strconv.FormatFloat(s.WinRate, 'f', 1, 64) + "%"
}

// EntriesInMonth keeps only the entries dated inside ym.
func EntriesInMonth(entries []Entry, ym YearMonth) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if ym.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// MonthlyTotal sums P/L over the entries of the displayed month only;
// adjacent-month spillover entries are ignored.
func MonthlyTotal(entries []Entry, ym YearMonth) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if ym.Contains(e.Date) {
			total = total.Add(e.PnL)
		}
	}
	return total
}
