package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"pnlcal/internal/core"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// statusFor maps entry errors onto HTTP statuses.
func statusFor(err error) int {
	var verr *core.ValidationError
	var serr *core.StoreError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyOwner):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrConfirmationRequired):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &serr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// userMessage renders err for display next to the form.
func userMessage(err error) string {
	var verr *core.ValidationError
	var serr *core.StoreError
	switch {
	case errors.As(err, &verr):
		switch verr.Field {
		case "pnl_amount":
			if verr.Reason == "amount is required" {
				return "Enter a P/L amount."
			}
			return "P/L must be a number, e.g. 125.50 or -42,10."
		case "num_trades":
			return "Trades must not be negative."
		case "notes":
			return "Notes are too long."
		}
		return verr.Error()
	case errors.Is(err, core.ErrConfirmationRequired):
		return "Confirm the delete to remove this entry."
	case errors.Is(err, core.ErrNotFound):
		return "There is no entry for this day."
	case errors.Is(err, core.ErrInvalidDate):
		return "Invalid date."
	case errors.As(err, &serr):
		// Show the driver message; it is the only hint the user gets.
		return "Could not reach the journal store: " + serr.Err.Error()
	default:
		return "Something went wrong."
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
