package http

import (
	"context"
	"net/http"

	"pnlcal/internal/auth"
	"pnlcal/internal/calendar"
	"pnlcal/internal/core"
	applog "pnlcal/internal/log"
)

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

type calendarData struct {
	View     calendar.View
	Weekdays []string
	Error    string
}

func newCalendarData(ctrl *calendar.Controller, err error) calendarData {
	v := ctrl.View()
	if err == nil {
		err = v.Err
	}
	data := calendarData{View: v, Weekdays: weekdays}
	if err != nil {
		data.Error = "Could not load entries for " + v.Month.String() + "."
		if loaded, ok := ctrl.Loaded(); ok && loaded.Key() == v.Month.Key() {
			data.Error += " Showing the last loaded data."
		} else {
			data.Error += " Entries and totals shown for this month may be incomplete."
		}
	}
	return data
}

// cellFor builds the grid cell addressing date.
func cellFor(d core.Date) core.DisplayCell {
	ym := d.YearMonth()
	return core.DisplayCell{Day: d.Time.Day(), Month: ym.Month, Year: ym.Year}
}

// controllerFor returns the calendar of the signed-in user.
func (s *Server) controllerFor(r *http.Request) *calendar.Controller {
	user := auth.CurrentUser(r.Context())
	ctrl, created := s.calendars.For(user.ID)
	if created {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Calendar created",
			applog.FieldOwnerID, user.ID)
	}
	return ctrl
}

// handleCalendar renders the calendar partial. ?select=YYYY-MM-DD behaves
// like clicking that day, ?year=&month= jumps to a month and no parameters
// reload the month being viewed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctrl := s.controllerFor(r)
	query := r.URL.Query()

	var err error
	if sel := query.Get("select"); sel != "" {
		date, perr := core.ParseDate(sel)
		if perr != nil {
			UnprocessableEntityError("Invalid date").Write(w)
			return
		}
		var moved bool
		moved, err = ctrl.SelectDay(ctx, cellFor(date))
		if !moved {
			err = ctrl.Reload(ctx)
		}
	} else if ym, ok := ParseMonthParams(query, s.now()); ok {
		err = ctrl.GoTo(ctx, ym)
	} else {
		err = ctrl.Reload(ctx)
	}

	s.renderCalendar(w, r, ctrl, err)
}

func (s *Server) handleCalendarPrev(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, (*calendar.Controller).PreviousMonth)
}

func (s *Server) handleCalendarNext(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, (*calendar.Controller).NextMonth)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, step func(*calendar.Controller, context.Context) error) {
	ctrl := s.controllerFor(r)
	err := step(ctrl, r.Context())
	ym := ctrl.Viewing()
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Calendar navigated",
		applog.FieldOperation, applog.OpNavigate,
		applog.FieldYear, ym.Year,
		applog.FieldMonth, ym.Month+1)
	s.renderCalendar(w, r, ctrl, err)
}

// renderCalendar writes the calendar partial. A failed load still renders
// the grid from the last good data, with an inline error and a 502.
func (s *Server) renderCalendar(w http.ResponseWriter, r *http.Request, ctrl *calendar.Controller, err error) {
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Calendar load failed",
			applog.FieldError, err,
			applog.FieldOwnerID, ctrl.OwnerID())
	}
	s.render(w, r, status, "calendar", newCalendarData(ctrl, err))
}
