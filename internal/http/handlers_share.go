package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"pnlcal/internal/auth"
	applog "pnlcal/internal/log"
	"pnlcal/internal/sharecard"
)

// handleShareCard renders the monthly share card as a PNG. The month comes
// from ?year=&month= or defaults to the month being viewed; ?winners= lists
// up to three tickers and ?download=1 asks for an attachment.
func (s *Server) handleShareCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	user := auth.CurrentUser(ctx)
	logger := applog.FromContext(ctx)

	ym, ok := ParseMonthParams(query, s.now())
	if !ok {
		ctrl, _ := s.calendars.For(user.ID)
		ym = ctrl.Viewing()
	}

	entries, err := s.entries.ListInRange(ctx, user.ID, ym.FirstDay(), ym.LastDay())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load entries for share card",
			applog.FieldError, err,
			applog.FieldOwnerID, user.ID,
			applog.FieldYear, ym.Year,
			applog.FieldMonth, ym.Month+1)
		ErrorResponse(statusFor(err), userMessage(err)).Write(w)
		return
	}

	card := sharecard.NewCard(ym, entries, query["winners"])
	var buf bytes.Buffer
	if err := sharecard.RenderPNG(&buf, card); err != nil {
		logger.ErrorContext(ctx, "Failed to render share card",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender)
		InternalServerError("Could not render the share card").Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.cardsRendered, 1)

	disposition := "inline"
	if query.Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, sharecard.Filename(ym)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
