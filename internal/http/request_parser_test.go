package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pnlcal/internal/core"
)

var fixedNow = time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)

func TestParseMonthParams(t *testing.T) {
	tests := []struct {
		name        string
		query       url.Values
		want        core.YearMonth
		wantPresent bool
	}{
		{
			name:        "both values provided",
			query:       url.Values{"year": {"2024"}, "month": {"12"}},
			want:        core.YearMonth{Year: 2024, Month: 11},
			wantPresent: true,
		},
		{
			name:        "only year",
			query:       url.Values{"year": {"2023"}},
			want:        core.YearMonth{Year: 2023, Month: 2},
			wantPresent: true,
		},
		{
			name:        "only month",
			query:       url.Values{"month": {"1"}},
			want:        core.YearMonth{Year: 2025, Month: 0},
			wantPresent: true,
		},
		{
			name:        "out of range month falls back",
			query:       url.Values{"year": {"2024"}, "month": {"13"}},
			want:        core.YearMonth{Year: 2024, Month: 2},
			wantPresent: true,
		},
		{
			name:  "absent",
			query: url.Values{},
			want:  core.YearMonth{Year: 2025, Month: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present := ParseMonthParams(tt.query, fixedNow)
			if got != tt.want || present != tt.wantPresent {
				t.Errorf("ParseMonthParams() = %+v, %v; want %+v, %v", got, present, tt.want, tt.wantPresent)
			}
		})
	}
}

func TestParseRangeParams(t *testing.T) {
	tests := []struct {
		name      string
		query     url.Values
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"defaults to current month", url.Values{}, "2025-03-01", "2025-03-31", false},
		{"explicit", url.Values{"start": {"2025-01-01"}, "end": {"2025-01-31"}}, "2025-01-01", "2025-01-31", false},
		{"single day", url.Values{"start": {"2025-03-05"}, "end": {"2025-03-05"}}, "2025-03-05", "2025-03-05", false},
		{"malformed", url.Values{"start": {"03/05/2025"}}, "", "", true},
		{"reversed", url.Values{"start": {"2025-03-05"}, "end": {"2025-03-01"}}, "", "", true},
		{"too long", url.Values{"start": {"2020-01-01"}, "end": {"2025-01-01"}}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseRangeParams(tt.query, fixedNow)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if start.String() != tt.wantStart || end.String() != tt.wantEnd {
				t.Errorf("got %s..%s, want %s..%s", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"pnl_amount": -42.5, "num_trades": 3, "notes": "faded the open"}`
	req := httptest.NewRequest(http.MethodPost, "/entries/2025-03-01", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	in := parser.EntryInput()
	if in.Amount != "-42.5" || in.Trades != "3" || in.Notes != "faded the open" {
		t.Errorf("EntryInput() = %+v", in)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "amount=12%2C50&trades=&notes=line+one%0Aline+two%00"
	req := httptest.NewRequest(http.MethodPost, "/entries/2025-03-01", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	in := parser.EntryInput()
	if in.Amount != "12,50" {
		t.Errorf("Amount = %q", in.Amount)
	}
	if in.Trades != "" {
		t.Errorf("Trades = %q", in.Trades)
	}
	if in.Notes != "line one\nline two" {
		t.Errorf("Notes = %q, control characters should be stripped", in.Notes)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_TooLarge(t *testing.T) {
	body := "notes=" + strings.Repeat("a", maxBodyBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))

	parser := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := parser.Parse(); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestParseFormOrFail(t *testing.T) {
	body := "confirm=yes"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if result := ParseFormOrFail(httptest.NewRecorder(), req); result != nil {
		t.Error("Expected nil for valid form, got error response")
	}
	if req.Form.Get("confirm") != "yes" {
		t.Error("Form was not parsed correctly")
	}
}
