// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// It reduces code duplication by providing reusable functions for common
// form parsing, date extraction, and input sanitization patterns.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pnlcal/internal/calendar"
	"pnlcal/internal/core"
)

// maxBodyBytes caps request bodies; notes are the largest field.
const maxBodyBytes = 64 << 10

// maxRangeDays bounds /api/entries queries.
const maxRangeDays = 400

// ParseMonthParams reads year and a 1-based month from the query string. The
// second result is false when neither parameter is present, in which case
// the caller keeps its current month. Unparseable values fall back to now.
func ParseMonthParams(query url.Values, now time.Time) (core.YearMonth, bool) {
	ys := strings.TrimSpace(query.Get("year"))
	ms := strings.TrimSpace(query.Get("month"))
	if ys == "" && ms == "" {
		return core.CurrentYearMonth(now), false
	}

	year, month := now.Year(), int(now.Month())
	if y, err := strconv.Atoi(ys); err == nil && y > 0 && y < 10000 {
		year = y
	}
	if m, err := strconv.Atoi(ms); err == nil && m >= 1 && m <= 12 {
		month = m
	}
	return core.YearMonth{Year: year, Month: month - 1}, true
}

// ParseEntryDate reads the {date} path value.
func ParseEntryDate(r *http.Request) (core.Date, error) {
	return core.ParseDate(r.PathValue("date"))
}

// ParseRangeParams reads the inclusive start/end query range. Both default
// to the current month when absent.
func ParseRangeParams(query url.Values, now time.Time) (start, end core.Date, err error) {
	ym := core.CurrentYearMonth(now)
	start, end = ym.FirstDay(), ym.LastDay()

	if v := strings.TrimSpace(query.Get("start")); v != "" {
		if start, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if v := strings.TrimSpace(query.Get("end")); v != "" {
		if end, err = core.ParseDate(v); err != nil {
			return core.Date{}, core.Date{}, err
		}
	}
	if end.Before(start) {
		return core.Date{}, core.Date{}, fmt.Errorf("%w: end before start", core.ErrInvalidDate)
	}
	if end.Sub(start.Time) > maxRangeDays*24*time.Hour {
		return core.Date{}, core.Date{}, fmt.Errorf("%w: range longer than %d days", core.ErrInvalidDate, maxRangeDays)
	}
	return start, end, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// First returns the first non-empty value among keys, letting JSON clients
// use the column names while forms use the short ones.
func (p *RequestBodyParser) First(keys ...string) string {
	for _, k := range keys {
		if v := p.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// EntryInput extracts the editor fields from the parsed body.
func (p *RequestBodyParser) EntryInput() calendar.Input {
	return calendar.Input{
		Amount: p.First("amount", "pnl_amount"),
		Trades: p.First("trades", "num_trades"),
		Notes:  p.Get("notes"),
	}
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(w http.ResponseWriter, r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrorResponse(http.StatusRequestEntityTooLarge, "Request too large")
		}
		return BadRequestError("Malformed request")
	}
	return nil
}
