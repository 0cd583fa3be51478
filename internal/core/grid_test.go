package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthGridAlwaysHas42Cells(t *testing.T) {
	for year := 1999; year <= 2030; year++ {
		for month := 0; month < 12; month++ {
			cells := MonthGrid(year, month)
			require.Len(t, cells, GridCells, "year=%d month=%d", year, month)

			current := 0
			for _, c := range cells {
				if c.IsCurrentMonth {
					current++
				}
			}
			assert.Equal(t, YearMonth{Year: year, Month: month}.DaysIn(), current, "year=%d month=%d", year, month)
		}
	}
}

func TestMonthGridDayCounts(t *testing.T) {
	cases := []struct {
		year, month, days int
	}{
		{2023, 1, 28},
		{2024, 1, 29},
		{1900, 1, 28},
		{2000, 1, 29},
		{2024, 3, 30},
		{2024, 0, 31},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d-%d", tc.year, tc.month), func(t *testing.T) {
			assert.Equal(t, tc.days, YearMonth{Year: tc.year, Month: tc.month}.DaysIn())
		})
	}
}

func TestMonthGridJanuaryWrapsToPreviousDecember(t *testing.T) {
	// 1 January 2024 is a Monday: one trailing day from December 2023.
	cells := MonthGrid(2024, 0)
	require.Len(t, cells, GridCells)

	assert.Equal(t, DisplayCell{Day: 31, Month: 11, Year: 2023}, cells[0])
	assert.Equal(t, DisplayCell{Day: 1, Month: 0, Year: 2024, IsCurrentMonth: true}, cells[1])

	last := cells[len(cells)-1]
	assert.Equal(t, 1, last.Month)
	assert.Equal(t, 2024, last.Year)
	assert.False(t, last.IsCurrentMonth)
}

func TestMonthGridDecemberWrapsToNextJanuary(t *testing.T) {
	// 1 December 2024 is a Sunday: no leading days, 31 days, 11 from January 2025.
	cells := MonthGrid(2024, 11)
	require.Len(t, cells, GridCells)

	assert.Equal(t, DisplayCell{Day: 1, Month: 11, Year: 2024, IsCurrentMonth: true}, cells[0])
	for i, c := range cells[31:] {
		assert.Equal(t, DisplayCell{Day: i + 1, Month: 0, Year: 2025}, c)
	}
}

func TestMonthGridSequenceIsContiguous(t *testing.T) {
	cells := MonthGrid(2025, 5)
	prev := cells[0].Date()
	assert.Equal(t, 0, int(prev.Weekday()), "grid must start on a Sunday")
	for _, c := range cells[1:] {
		d := c.Date()
		assert.Equal(t, prev.AddDate(0, 0, 1), d.Time)
		prev = d
	}
}

func TestMonthGridNormalisesOutOfRangeMonths(t *testing.T) {
	assert.Equal(t, MonthGrid(2025, 0), MonthGrid(2024, 12))
	assert.Equal(t, MonthGrid(2023, 11), MonthGrid(2024, -1))
}

func TestYearMonthNavigation(t *testing.T) {
	jan := YearMonth{Year: 2024, Month: 0}
	assert.Equal(t, YearMonth{Year: 2023, Month: 11}, jan.Prev())
	assert.Equal(t, YearMonth{Year: 2024, Month: 1}, jan.Next())

	dec := YearMonth{Year: 2024, Month: 11}
	assert.Equal(t, YearMonth{Year: 2025, Month: 0}, dec.Next())
	assert.Equal(t, dec, dec.Next().Prev())
}

func TestYearMonthFetchRange(t *testing.T) {
	start, end := YearMonth{Year: 2024, Month: 0}.FetchRange()
	assert.Equal(t, "2023-12-01", start.String())
	assert.Equal(t, "2024-02-29", end.String())

	start, end = YearMonth{Year: 2024, Month: 11}.FetchRange()
	assert.Equal(t, "2024-11-01", start.String())
	assert.Equal(t, "2025-01-31", end.String())
}

func TestYearMonthString(t *testing.T) {
	assert.Equal(t, "March 2025", YearMonth{Year: 2025, Month: 2}.String())
	assert.Equal(t, "2025-03", YearMonth{Year: 2025, Month: 2}.Key())
}
