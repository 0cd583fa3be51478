// Package local implements the entry store on top of a simple key-value
// backend. The whole collection lives under one key as a JSON array; every
// mutation reads it, changes it in memory and writes it back.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pnlcal/internal/core"
)

// DefaultKey is the key the serialized collection is stored under.
const DefaultKey = "pnl_entries"

type record struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Date      string          `json:"date"`
	PnLAmount decimal.Decimal `json:"pnl_amount"`
	NumTrades int             `json:"num_trades"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is a single-writer entry store over a KV.
type Store struct {
	kv  KV
	key string
	now func() time.Time

	mu sync.Mutex
}

type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock injects the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, key: DefaultKey, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) load(ctx context.Context) ([]record, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var recs []record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return recs, nil
}

func (s *Store) save(ctx context.Context, recs []record) error {
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.key, err)
	}
	return s.kv.Set(ctx, s.key, raw)
}

func (r record) entry() (core.Entry, error) {
	d, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Entry{}, err
	}
	return core.Entry{
		ID:        r.ID,
		OwnerID:   r.UserID,
		Date:      d,
		PnL:       r.PnLAmount,
		NumTrades: r.NumTrades,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// ListInRange returns the owner's entries dated within [start, end], ordered by date.
func (s *Store) ListInRange(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error) {
	s.mu.Lock()
	recs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}

	out := make([]core.Entry, 0)
	for _, r := range recs {
		if r.UserID != ownerID {
			continue
		}
		e, err := r.entry()
		if err != nil {
			// Unreadable rows are skipped rather than failing the whole view.
			continue
		}
		if e.Date.Between(start, end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetByDate returns the owner's entry for date or core.ErrNotFound.
func (s *Store) GetByDate(ctx context.Context, ownerID string, date core.Date) (core.Entry, error) {
	s.mu.Lock()
	recs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return core.Entry{}, &core.StoreError{Op: "get", Err: err}
	}
	key := date.String()
	for _, r := range recs {
		if r.UserID == ownerID && r.Date == key {
			e, err := r.entry()
			if err != nil {
				return core.Entry{}, &core.StoreError{Op: "get", Err: err}
			}
			return e, nil
		}
	}
	return core.Entry{}, core.ErrNotFound
}

// Upsert creates or replaces the owner's entry for date. An existing entry
// keeps its ID and CreatedAt.
func (s *Store) Upsert(ctx context.Context, ownerID string, date core.Date, pnl decimal.Decimal, numTrades int, notes string) (core.Entry, error) {
	candidate := core.Entry{OwnerID: ownerID, Date: date, PnL: pnl, NumTrades: numTrades, Notes: notes}
	if err := candidate.Validate(); err != nil {
		return core.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return core.Entry{}, &core.StoreError{Op: "upsert", Err: err}
	}

	now := s.now().UTC()
	key := date.String()
	idx := -1
	for i, r := range recs {
		if r.UserID == ownerID && r.Date == key {
			idx = i
			break
		}
	}

	var rec record
	if idx >= 0 {
		rec = recs[idx]
		rec.PnLAmount = pnl
		rec.NumTrades = numTrades
		rec.Notes = notes
		rec.UpdatedAt = now
		recs[idx] = rec
	} else {
		rec = record{
			ID:        uuid.NewString(),
			UserID:    ownerID,
			Date:      key,
			PnLAmount: pnl,
			NumTrades: numTrades,
			Notes:     notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		recs = append(recs, rec)
	}

	if err := s.save(ctx, recs); err != nil {
		return core.Entry{}, &core.StoreError{Op: "upsert", Err: err}
	}
	return rec.entry()
}

// DeleteByDate removes the owner's entry for date. Entries of other dates and
// other owners are untouched; an absent entry yields core.ErrNotFound.
func (s *Store) DeleteByDate(ctx context.Context, ownerID string, date core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load(ctx)
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	key := date.String()
	kept := recs[:0]
	removed := false
	for _, r := range recs {
		if r.UserID == ownerID && r.Date == key {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	if !removed {
		return core.ErrNotFound
	}
	if err := s.save(ctx, kept); err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	return nil
}

// Ping checks that the backing KV is readable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.kv.Get(ctx, s.key)
	return err
}
