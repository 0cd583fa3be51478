package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.MinCost)
	require.NoError(t, err)
	doc := "users:\n" +
		"  - id: alice\n" +
		"    email: Alice@Example.com\n" +
		"    name: Alice\n" +
		"    password_hash: " + string(hash) + "\n"
	dir, err := ParseDirectory([]byte(doc))
	require.NoError(t, err)
	return dir
}

func newManager(t *testing.T, now *time.Time) *Manager {
	t.Helper()
	m, err := NewManager(testDirectory(t), testSecret, time.Hour, WithClock(func() time.Time { return *now }))
	require.NoError(t, err)
	return m
}

func TestParseDirectory_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing id", "users:\n  - email: a@b.c\n    password_hash: x\n"},
		{"missing hash", "users:\n  - id: a\n    email: a@b.c\n"},
		{"duplicate email", "users:\n  - {id: a, email: a@b.c, password_hash: x}\n  - {id: b, email: A@B.C, password_hash: y}\n"},
		{"not yaml", "users: [oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDirectory([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestManager_SignInAndAuthenticate(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	ctx := context.Background()

	_, err := m.SignIn(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.SignIn(ctx, "bob@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sess, err := m.SignIn(ctx, " ALICE@example.com ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.User.ID)
	assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)

	u, err := m.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.ID)
	assert.Equal(t, "Alice", u.DisplayName())

	now = now.Add(2 * time.Hour)
	_, err = m.Authenticate(sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDummyHashCostMatchesStoredHashes(t *testing.T) {
	stored, err := HashPassword("hunter22")
	require.NoError(t, err)
	want, err := bcrypt.Cost([]byte(stored))
	require.NoError(t, err)
	got, err := bcrypt.Cost(dummyHash())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_RejectsForeignTokens(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	other, err := NewManager(testDirectory(t), []byte("another-secret-another-secret!!"), time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	sess, err := other.SignIn(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = m.Authenticate(sess.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.Authenticate("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_SignOutNotifiesAndRevokes(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	ctx := context.Background()

	var events []Event
	unsubscribe := m.Subscribe(func(ev Event) { events = append(events, ev) })

	sess, err := m.SignIn(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, m.SignOut(ctx, sess.Token))
	require.NoError(t, m.SignOut(ctx, sess.Token))

	require.Len(t, events, 2)
	assert.Equal(t, EventSignedIn, events[0].Kind)
	assert.Equal(t, EventSignedOut, events[1].Kind)
	assert.Equal(t, "alice", events[1].User.ID)

	_, err = m.Authenticate(sess.Token)
	assert.ErrorIs(t, err, ErrRevoked)

	unsubscribe()
	_, err = m.SignIn(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Len(t, events, 2)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, m.PruneRevoked())
}

func TestMiddleware(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	m := newManager(t, &now)
	sess, err := m.SignIn(context.Background(), "alice@example.com", "hunter22")
	require.NoError(t, err)

	var seen *User
	h := m.Middleware(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CurrentUser(r.Context())
	})))

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "alice", seen.ID)
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sess.Token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("anonymous htmx", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/calendar", nil)
		req.Header.Set("HX-Request", "true")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))
	})
}

func TestStanzaRoundTrip(t *testing.T) {
	out, err := Stanza(User{ID: "bob", Email: "bob@example.com"}, "$2a$10$hash")
	require.NoError(t, err)

	dir, err := ParseDirectory(append([]byte("users:\n"), indent(out)...))
	require.NoError(t, err)
	assert.Equal(t, 1, dir.Len())
}

func indent(b []byte) []byte {
	out := []byte("  ")
	for i, c := range b {
		out = append(out, c)
		if c == '\n' && i < len(b)-1 {
			out = append(out, ' ', ' ')
		}
	}
	return out
}
