package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pnlcal/internal/core"
)

// Column layout of the journal sheet, row 1 holds the header.
var header = []interface{}{"Owner", "Date", "P/L", "Trades", "Notes", "Updated"}

const (
	colOwner = iota
	colDate
	colPnL
	colTrades
	colNotes
	colUpdated
	numCols
)

const lastCol = "F"

// entryRow renders an entry as sheet cells. P/L is written as a plain number
// so the sheet can do arithmetic on it.
func entryRow(e core.Entry) []interface{} {
	pnl, _ := e.PnL.Round(2).Float64()
	return []interface{}{
		e.OwnerID,
		e.Date.String(),
		pnl,
		e.NumTrades,
		e.Notes,
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// findRow returns the 0-based data row index of owner+date, or -1.
func findRow(values [][]interface{}, ownerID string, date core.Date) int {
	key := date.String()
	for i, row := range values {
		r := toStrings(row)
		if safeGet(r, colOwner) == ownerID && normalizeDate(safeGet(r, colDate)) == key {
			return i
		}
	}
	return -1
}

// parseRows converts data rows back into entries. Blank or malformed rows
// are skipped; the sheet is a mirror, not a source of truth.
func parseRows(values [][]interface{}, ownerID string, start, end core.Date) []core.Entry {
	var out []core.Entry
	for _, row := range values {
		r := toStrings(row)
		if safeGet(r, colOwner) != ownerID {
			continue
		}
		date, err := core.ParseDate(normalizeDate(safeGet(r, colDate)))
		if err != nil || !date.Between(start, end) {
			continue
		}
		pnl, err := parseAmount(safeGet(r, colPnL))
		if err != nil {
			continue
		}
		e := core.Entry{
			OwnerID:   ownerID,
			Date:      date,
			PnL:       pnl,
			NumTrades: core.ParseTrades(safeGet(r, colTrades)),
			Notes:     safeGet(r, colNotes),
		}
		if ts, err := time.Parse(time.RFC3339, safeGet(r, colUpdated)); err == nil {
			e.UpdatedAt = ts
		}
		out = append(out, e)
	}
	return out
}

// parseAmount accepts the formatted values Sheets returns, e.g. "$1,234.50"
// or "-12.3".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

// normalizeDate trims a sheet date cell to YYYY-MM-DD.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	return s
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch t := v.(type) {
		case string:
			out[i] = t
		case float64:
			out[i] = strconv.FormatFloat(t, 'f', -1, 64)
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(t)
		}
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return strings.TrimSpace(arr[idx])
	}
	return ""
}

// rowRange addresses a single data row; dataIdx is 0-based below the header.
func rowRange(sheet string, dataIdx int) string {
	row := dataIdx + 2
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), row, lastCol, row)
}

func dataRange(sheet string) string {
	return fmt.Sprintf("%s!A2:%s", quoteSheet(sheet), lastCol)
}

func headerRange(sheet string) string {
	return fmt.Sprintf("%s!A1:%s1", quoteSheet(sheet), lastCol)
}

// quoteSheet quotes sheet names for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
