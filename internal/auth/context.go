package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "pnlcal_session"

type contextKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// CurrentUser returns the signed-in user or nil.
func CurrentUser(ctx context.Context) *User {
	u, _ := ctx.Value(contextKey{}).(*User)
	return u
}

// TokenFromRequest reads the session token from the cookie or a bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Middleware resolves the session of each request. Requests without a valid
// session pass through anonymously; handlers decide what that means.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Authenticate(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireUser rejects anonymous requests with 401. HTMX requests also get an
// HX-Redirect so the page falls back to the sign-in form.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			if r.Header.Get("HX-Request") == "true" {
				w.Header().Set("HX-Redirect", "/")
			}
			http.Error(w, "Sign in required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
