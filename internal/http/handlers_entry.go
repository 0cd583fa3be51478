package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pnlcal/internal/auth"
	"pnlcal/internal/calendar"
	"pnlcal/internal/core"
	applog "pnlcal/internal/log"
)

type editorData struct {
	Open   bool
	Title  string
	Error  string
	Date   string
	Input  calendar.Input
	Exists bool
}

func newEditorData(ed *calendar.Editor, errMsg string) editorData {
	return editorData{
		Open:   true,
		Title:  ed.Date().Format("Monday, January 2, 2006"),
		Error:  errMsg,
		Date:   ed.Date().String(),
		Input:  ed.Input(),
		Exists: ed.Existing() != nil,
	}
}

// entryJSON is the API shape of an entry.
type entryJSON struct {
	ID        string          `json:"id"`
	Date      string          `json:"date"`
	PnL       decimal.Decimal `json:"pnl_amount"`
	NumTrades int             `json:"num_trades"`
	Notes     string          `json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toEntryJSON(e core.Entry) entryJSON {
	return entryJSON{
		ID:        e.ID,
		Date:      e.Date.String(),
		PnL:       e.PnL,
		NumTrades: e.NumTrades,
		Notes:     e.Notes,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// openEditor prepares an editor for date. Days outside the loaded range are
// looked up directly so editing never overwrites an entry blindly.
func (s *Server) openEditor(ctx context.Context, ctrl *calendar.Controller, date core.Date) (*calendar.Editor, error) {
	ed := ctrl.OpenEditor(date, s.entries)
	if ed.Existing() != nil {
		return ed, nil
	}
	e, err := s.entries.GetByDate(ctx, ctrl.OwnerID(), date)
	switch {
	case err == nil:
		return calendar.NewEditor(ctrl.OwnerID(), date, &e, s.entries, ctrl.Reload), nil
	case errors.Is(err, core.ErrNotFound):
		return ed, nil
	default:
		return nil, err
	}
}

// handleEditor opens the entry modal for a day. Clicking a spillover day
// also moves the calendar to that day's month.
func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, err := ParseEntryDate(r)
	if err != nil {
		UnprocessableEntityError("Invalid date").Write(w)
		return
	}
	ctrl := s.controllerFor(r)
	resp := NewHTMXResponse()

	moved, err := ctrl.SelectDay(ctx, cellFor(date))
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Navigation to selected day failed",
			applog.FieldError, err,
			applog.FieldEntryDate, date.String())
	}
	if moved {
		ym := ctrl.Viewing()
		resp.TriggerCalendarRefresh(ym.Year, ym.Month+1)
	}

	ed, err := s.openEditor(ctx, ctrl, date)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to load entry",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRead,
			applog.FieldEntryDate, date.String())
		ed = calendar.NewEditor(ctrl.OwnerID(), date, nil, s.entries, ctrl.Reload)
		s.writeEditor(w, r, resp.Status(statusFor(err)), newEditorData(ed, userMessage(err)))
		return
	}
	s.writeEditor(w, r, resp, newEditorData(ed, ""))
}

// handleSaveEntry creates or updates the entry of a day from a form or JSON body.
func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, err := ParseEntryDate(r)
	if err != nil {
		UnprocessableEntityError("Invalid date").Write(w)
		return
	}
	p := NewRequestBodyParser(w, r)
	if resp := bodyError(p.Parse()); resp != nil {
		resp.Write(w)
		return
	}

	ctrl := s.controllerFor(r)
	ed, err := s.openEditor(ctx, ctrl, date)
	if err != nil {
		// Upsert is keyed by date, so the save can proceed without the lookup.
		applog.FromContext(ctx).WarnContext(ctx, "Entry lookup before save failed",
			applog.FieldError, err,
			applog.FieldEntryDate, date.String())
		ed = ctrl.OpenEditor(date, s.entries)
	}

	saved, err := ed.Save(ctx, p.EntryInput())
	if err != nil {
		s.entryFailed(w, r, p, ed, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.entriesSaved, 1)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogEntrySaved(ctx, saved.OwnerID, saved.Date.String(), saved.PnL, saved.NumTrades, saved.ID)

	if p.IsJSON() {
		writeJSON(w, http.StatusOK, toEntryJSON(saved))
		return
	}
	ym := ctrl.Viewing()
	NewHTMXResponse().
		TriggerEntrySaved(date.String()).
		TriggerCalendarRefresh(ym.Year, ym.Month+1).
		TriggerEditorClose().
		TriggerSuccessNotification("Entry saved").
		Write(w)
}

// handleDeleteEntry removes the entry of a day. The body must carry an
// explicit confirm flag.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, err := ParseEntryDate(r)
	if err != nil {
		UnprocessableEntityError("Invalid date").Write(w)
		return
	}
	p := NewRequestBodyParser(w, r)
	if resp := bodyError(p.Parse()); resp != nil {
		resp.Write(w)
		return
	}

	ctrl := s.controllerFor(r)
	ed, err := s.openEditor(ctx, ctrl, date)
	if err != nil {
		s.entryFailed(w, r, p, calendar.NewEditor(ctrl.OwnerID(), date, nil, s.entries, ctrl.Reload), err)
		return
	}

	if err := ed.Delete(ctx, isConfirmed(p.Get("confirm"))); err != nil {
		s.entryFailed(w, r, p, ed, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.entriesDeleted, 1)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogEntryDeleted(ctx, ctrl.OwnerID(), date.String())

	if p.IsJSON() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ym := ctrl.Viewing()
	NewHTMXResponse().
		TriggerEntryDeleted(date.String()).
		TriggerCalendarRefresh(ym.Year, ym.Month+1).
		TriggerEditorClose().
		TriggerSuccessNotification("Entry deleted").
		Write(w)
}

// handleListEntries returns the entries of the signed-in user between
// ?start= and ?end= (inclusive), defaulting to the current month.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := ParseRangeParams(r.URL.Query(), s.now())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := auth.CurrentUser(ctx)
	entries, err := s.entries.ListInRange(ctx, user.ID, start, end)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list entries",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpList,
			applog.FieldOwnerID, user.ID)
		writeJSONError(w, statusFor(err), userMessage(err))
		return
	}

	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryJSON(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start":   start.String(),
		"end":     end.String(),
		"entries": out,
	})
}

// entryFailed reports a failed entry operation. HTML clients get the editor
// back with the submitted input and an inline message.
func (s *Server) entryFailed(w http.ResponseWriter, r *http.Request, p *RequestBodyParser, ed *calendar.Editor, err error) {
	ctx := r.Context()
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Entry operation failed", err,
			applog.ComponentEntry, entryOp(r), applog.LogFields{applog.FieldPath: r.URL.Path})
	}

	if p.IsJSON() {
		writeJSONError(w, status, userMessage(err))
		return
	}
	s.writeEditor(w, r, NewHTMXResponse().Status(status), newEditorData(ed, userMessage(err)))
}

func (s *Server) writeEditor(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, data editorData) {
	body, err := s.renderBytes("editor", data)
	if err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", "editor")
		InternalServerError("Could not render the editor").Write(w)
		return
	}
	resp.BodyHTML(string(body)).Write(w)
}

func bodyError(err error) *HTMXResponseBuilder {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrorResponse(http.StatusRequestEntityTooLarge, "Request too large")
	}
	return BadRequestError("Malformed request")
}

func entryOp(r *http.Request) string {
	if strings.HasSuffix(r.URL.Path, "/delete") {
		return applog.OpDelete
	}
	return applog.OpUpsert
}

func isConfirmed(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1", "on":
		return true
	}
	return false
}
