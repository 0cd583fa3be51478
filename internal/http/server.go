package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pnlcal/internal/auth"
	"pnlcal/internal/calendar"
	"pnlcal/internal/core"
	applog "pnlcal/internal/log"
	"pnlcal/internal/middleware/ratelimit"
	"pnlcal/internal/middleware/security"
	"pnlcal/internal/middleware/trace"
	"pnlcal/internal/store"
	appweb "pnlcal/web"
)

// EntryBackend is the store the handlers read and write through.
type EntryBackend interface {
	store.EntryStore
	store.EntryGetter
	Ping(ctx context.Context) error
}

// Deps are the collaborators wired by main.
type Deps struct {
	Entries   EntryBackend
	Auth      *auth.Manager
	Calendars *calendar.Registry
	Logger    *applog.Logger

	RateLimitPerMinute int
	// Now defaults to time.Now.
	Now func() time.Time
}

// appMetrics holds application-level counters for /metrics.
type appMetrics struct {
	uptime         time.Time
	entriesSaved   int64
	entriesDeleted int64
	cardsRendered  int64
	signIns        int64
	failedSignIns  int64
}

type Server struct {
	http.Server
	templates *template.Template
	entries   EntryBackend
	auth      *auth.Manager
	calendars *calendar.Registry
	logger    *applog.Logger
	now       func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"usd": core.FormatUSD,
	"pnlClass": func(d decimal.Decimal) string {
		switch d.Sign() {
		case 1:
			return "profit"
		case -1:
			return "loss"
		default:
			return "flat"
		}
	},
	"monthNum": func(ym core.YearMonth) int { return ym.Month + 1 },
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Entries == nil || deps.Auth == nil {
		return nil, errors.New("http: entries and auth are required")
	}
	if deps.Logger == nil {
		deps.Logger = applog.FromContext(context.Background())
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Calendars == nil {
		deps.Calendars = calendar.NewRegistry(deps.Entries, calendar.WithClock(deps.Now))
	}

	t, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	detector := security.NewDetector()
	s := &Server{
		templates:        t,
		entries:          deps.Entries,
		auth:             deps.Auth,
		calendars:        deps.Calendars,
		logger:           deps.Logger.WithComponent(applog.ComponentHTTP),
		now:              deps.Now,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
		appMetrics:       &appMetrics{uptime: deps.Now()},
	}

	mux := http.NewServeMux()

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /auth/signout", s.handleSignOut)

	user := func(component string, h http.HandlerFunc) http.Handler {
		return auth.RequireUser(applog.ComponentMiddleware(component)(h))
	}
	mux.Handle("GET /ui/calendar", user(applog.ComponentCalendar, s.handleCalendar))
	mux.Handle("POST /ui/calendar/prev", user(applog.ComponentCalendar, s.handleCalendarPrev))
	mux.Handle("POST /ui/calendar/next", user(applog.ComponentCalendar, s.handleCalendarNext))
	mux.Handle("GET /ui/entries/{date}", user(applog.ComponentEntry, s.handleEditor))
	mux.Handle("POST /entries/{date}", user(applog.ComponentEntry, s.handleSaveEntry))
	mux.Handle("POST /entries/{date}/delete", user(applog.ComponentEntry, s.handleDeleteEntry))
	mux.Handle("GET /share/card.png", user(applog.ComponentShare, s.handleShareCard))
	mux.Handle("GET /api/entries", user(applog.ComponentEntry, s.handleListEntries))

	var handler http.Handler = mux
	handler = s.limitWrites(handler)
	handler = s.auth.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = detector.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// limitWrites rate-limits state-changing requests per client IP.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			applog.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again shortly.").
			TriggerErrorNotification("Too many requests").
			Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a named template into w with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name)
	}
}

func (s *Server) renderBytes(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
