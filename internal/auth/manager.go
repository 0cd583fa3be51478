// Package auth signs users in against a static directory and issues signed
// session tokens. Session changes are observable through Subscribe.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "pnlcal"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrRevoked            = errors.New("session has been signed out")
)

// EventKind names a session transition.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
)

// Event is delivered to subscribers on every session transition.
type Event struct {
	Kind EventKind
	User User
	At   time.Time
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	User      User
	ExpiresAt time.Time
}

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Manager is the session collaborator shared by the HTTP layer.
type Manager struct {
	dir    *Directory
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
	subs    map[int]func(Event)
	nextSub int
}

type Option func(*Manager)

// WithClock overrides the time source for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(dir *Directory, secret []byte, ttl time.Duration, opts ...Option) (*Manager, error) {
	if dir == nil {
		return nil, errors.New("auth: nil user directory")
	}
	if len(secret) < 16 {
		return nil, errors.New("auth: signing secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &Manager{
		dir:     dir,
		secret:  secret,
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
		subs:    make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// dummyHash keeps sign-in timing similar for unknown emails. Its cost must
// match HashPassword.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("pnlcal-placeholder"), bcrypt.DefaultCost)
	return h
})

// SignIn verifies credentials and issues a session token.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Session, error) {
	rec, ok := m.dir.lookup(email)
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		slog.WarnContext(ctx, "Sign-in for unknown user", "email", normalizeEmail(email))
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "Sign-in with wrong password", "user_id", rec.ID)
		return Session{}, ErrInvalidCredentials
	}

	now := m.now()
	expires := now.Add(m.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: rec.Email,
		Name:  rec.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   rec.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}

	m.notify(Event{Kind: EventSignedIn, User: rec.User, At: now})
	slog.InfoContext(ctx, "User signed in", "user_id", rec.ID)
	return Session{Token: signed, User: rec.User, ExpiresAt: expires}, nil
}

func (m *Manager) parse(token string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}
	return &c, nil
}

// Authenticate validates a session token and returns its user.
func (m *Manager) Authenticate(token string) (*User, error) {
	c, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	_, revoked := m.revoked[c.ID]
	m.mu.Unlock()
	if revoked {
		return nil, ErrRevoked
	}
	return &User{ID: c.Subject, Email: c.Email, Name: c.Name}, nil
}

// SignOut revokes the token and notifies subscribers. Signing out an
// already revoked token is a no-op.
func (m *Manager) SignOut(ctx context.Context, token string) error {
	c, err := m.parse(token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, done := m.revoked[c.ID]; done {
		m.mu.Unlock()
		return nil
	}
	m.revoked[c.ID] = c.ExpiresAt.Time
	m.mu.Unlock()

	user := User{ID: c.Subject, Email: c.Email, Name: c.Name}
	m.notify(Event{Kind: EventSignedOut, User: user, At: m.now()})
	slog.InfoContext(ctx, "User signed out", "user_id", user.ID)
	return nil
}

// Subscribe registers fn for session events and returns its cancel func.
// fn runs synchronously on the goroutine that caused the transition.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// PruneRevoked forgets revocations whose tokens have expired anyway.
func (m *Manager) PruneRevoked() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, id)
			n++
		}
	}
	return n
}

// HashPassword produces a bcrypt hash for the users file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
