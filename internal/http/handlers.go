package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"pnlcal/internal/auth"
	applog "pnlcal/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if err := s.entries.Ping(ctx); err != nil {
		checks["entry_store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["entry_store"] = "ok"
	}

	checks["templates"] = "ok"
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}
	checks["calendars"] = s.calendars.Len()

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value interface{}) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", traceMetrics.InFlight)
	metric("http_client_errors_total", "counter", "Responses with a 4xx status", traceMetrics.ClientErrors)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_microseconds", "gauge", "Smoothed response time", traceMetrics.AverageResponseTime)
	metric("entries_saved_total", "counter", "Journal entries created or updated", atomic.LoadInt64(&s.appMetrics.entriesSaved))
	metric("entries_deleted_total", "counter", "Journal entries deleted", atomic.LoadInt64(&s.appMetrics.entriesDeleted))
	metric("share_cards_rendered_total", "counter", "Share card images rendered", atomic.LoadInt64(&s.appMetrics.cardsRendered))
	metric("sign_ins_total", "counter", "Successful sign-ins", atomic.LoadInt64(&s.appMetrics.signIns))
	metric("sign_in_failures_total", "counter", "Rejected sign-ins", atomic.LoadInt64(&s.appMetrics.failedSignIns))
	metric("active_calendars", "gauge", "Users with a calendar in memory", s.calendars.Len())
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests rejected by the detector", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

type signInData struct {
	Email string
	Error string
}

type indexData struct {
	User     *auth.User
	SignIn   signInData
	Calendar calendarData
}

// handleIndex renders the sign-in page for anonymous visitors and the
// calendar shell for signed-in users.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	user := auth.CurrentUser(r.Context())
	if user == nil {
		s.render(w, r, http.StatusOK, "index.html", indexData{})
		return
	}

	ctrl, _ := s.calendars.For(user.ID)
	err := ctrl.Reload(r.Context())
	s.render(w, r, http.StatusOK, "index.html", indexData{
		User:     user,
		Calendar: newCalendarData(ctrl, err),
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	email := sanitizeInput(r.Form.Get("email"))
	password := r.Form.Get("password")
	logger := applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth)

	session, err := s.auth.SignIn(r.Context(), email, password)
	if err != nil {
		atomic.AddInt64(&s.appMetrics.failedSignIns, 1)
		msg := "Sign-in failed. Please try again."
		if errors.Is(err, auth.ErrInvalidCredentials) {
			msg = "Wrong email or password."
		} else {
			logger.ErrorContext(r.Context(), "Sign-in error", applog.FieldError, err, applog.FieldOperation, applog.OpSignIn)
		}
		data := signInData{Email: email, Error: msg}
		if isHTMX(r) {
			s.render(w, r, http.StatusUnauthorized, "signin", data)
			return
		}
		s.render(w, r, http.StatusUnauthorized, "index.html", indexData{SignIn: data})
		return
	}

	atomic.AddInt64(&s.appMetrics.signIns, 1)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	logger.InfoContext(r.Context(), "Signed in", applog.FieldOwnerID, session.User.ID, applog.FieldOperation, applog.OpSignIn)
	redirectHome(w, r)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := s.auth.SignOut(r.Context(), token); err != nil && !errors.Is(err, auth.ErrInvalidToken) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Sign-out failed",
				applog.FieldError, err,
				applog.FieldOperation, applog.OpSignOut)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	redirectHome(w, r)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/").Write(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
