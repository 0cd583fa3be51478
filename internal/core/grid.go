package core

import (
	"strconv"
	"time"
)

// GridCells is the fixed size of the month view: six weeks of seven days.
const GridCells = 42

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// YearMonth identifies a calendar month. Month is zero-indexed (0 = January).
type YearMonth struct {
	Year  int
	Month int
}

// DisplayCell is one day box of the 42-cell calendar grid.
type DisplayCell struct {
	Day            int
	Month          int // zero-indexed
	Year           int
	IsCurrentMonth bool
}

// NewYearMonth normalises an arbitrary month index, rolling the year over as needed.
func NewYearMonth(year, month int) YearMonth {
	year += month / 12
	month %= 12
	if month < 0 {
		month += 12
		year--
	}
	return YearMonth{Year: year, Month: month}
}

// CurrentYearMonth returns the month containing t in t's location.
func CurrentYearMonth(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: int(t.Month()) - 1}
}

func (ym YearMonth) Prev() YearMonth {
	return NewYearMonth(ym.Year, ym.Month-1)
}

func (ym YearMonth) Next() YearMonth {
	return NewYearMonth(ym.Year, ym.Month+1)
}

// DaysIn returns the number of days in the month.
func (ym YearMonth) DaysIn() int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(ym.Year, time.Month(ym.Month+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

func (ym YearMonth) FirstDay() Date {
	return NewDate(ym.Year, ym.Month+1, 1)
}

func (ym YearMonth) LastDay() Date {
	return NewDate(ym.Year, ym.Month+1, ym.DaysIn())
}

// Contains reports whether d falls inside the month.
func (ym YearMonth) Contains(d Date) bool {
	return d.Time.Year() == ym.Year && int(d.Time.Month())-1 == ym.Month
}

// FetchRange returns the inclusive date span loaded for the month view: the
// whole previous month through the whole next month, so spillover cells can
// show their entries too.
func (ym YearMonth) FetchRange() (start, end Date) {
	return ym.Prev().FirstDay(), ym.Next().LastDay()
}

// Name returns the English month name.
func (ym YearMonth) Name() string {
	return monthNames[NewYearMonth(ym.Year, ym.Month).Month]
}

func (ym YearMonth) String() string {
	return ym.Name() + " " + strconv.Itoa(ym.Year)
}

// Key returns a stable YYYY-MM key, handy for caches and query strings.
func (ym YearMonth) Key() string {
	return ym.FirstDay().Format("2006-01")
}

// Date returns the calendar date the cell represents.
func (c DisplayCell) Date() Date {
	return NewDate(c.Year, c.Month+1, c.Day)
}

// MonthGrid produces exactly 42 display cells for the given month in
// row-major, Sunday-first order, padding with the trailing days of the
// previous month and the leading days of the next one.
func MonthGrid(year, month int) []DisplayCell {
	ym := NewYearMonth(year, month)
	prev, next := ym.Prev(), ym.Next()

	leadCount := int(ym.FirstDay().Weekday())
	daysInPrev := prev.DaysIn()
	daysInMonth := ym.DaysIn()

	cells := make([]DisplayCell, 0, GridCells)
	for day := daysInPrev - leadCount + 1; day <= daysInPrev; day++ {
		cells = append(cells, DisplayCell{Day: day, Month: prev.Month, Year: prev.Year})
	}
	for day := 1; day <= daysInMonth; day++ {
		cells = append(cells, DisplayCell{Day: day, Month: ym.Month, Year: ym.Year, IsCurrentMonth: true})
	}
	remaining := GridCells - len(cells)
	for day := 1; day <= remaining; day++ {
		cells = append(cells, DisplayCell{Day: day, Month: next.Month, Year: next.Year})
	}
	return cells
}
