package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date format used as the natural key of an entry.
const DateLayout = "2006-01-02"

const maxNotesLength = 2000

type (
	Date struct {
		time.Time
	}

	// Entry is one user's trading record for a single calendar day.
	Entry struct {
		ID        string
		OwnerID   string
		Date      Date
		PnL       decimal.Decimal
		NumTrades int
		Notes     string
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrNotFound             = errors.New("entry not found")
	ErrConfirmationRequired = errors.New("delete requires confirmation")
	ErrInvalidDate          = errors.New("invalid date")
	ErrEmptyOwner           = errors.New("empty owner")
)

// ValidationError reports malformed user input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps a failure of the backing entry store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewDate creates a new Date from year, month (1-12) and day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String returns the ISO representation of the date.
func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// YearMonth returns the month the date belongs to.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Time.Year(), Month: int(d.Time.Month()) - 1}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// Between reports whether d lies within [start, end].
func (d Date) Between(start, end Date) bool {
	return !d.Before(start) && !d.After(end)
}

func (e Entry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	return ValidateValues(e.NumTrades, e.Notes)
}

// ValidateValues checks the mutable fields shared by every store implementation.
func ValidateValues(numTrades int, notes string) error {
	if numTrades < 0 {
		return &ValidationError{Field: "num_trades", Reason: "must not be negative"}
	}
	if len(notes) > maxNotesLength {
		return &ValidationError{Field: "notes", Reason: fmt.Sprintf("too long (max %d characters)", maxNotesLength)}
	}
	return nil
}

// IsWin reports whether the day closed with a profit.
func (e Entry) IsWin() bool {
	return e.PnL.IsPositive()
}

// IndexByDate builds the date-keyed lookup used by the calendar view.
func IndexByDate(entries []Entry) map[string]Entry {
	out := make(map[string]Entry, len(entries))
	for _, e := range entries {
		out[e.Date.String()] = e
	}
	return out
}
