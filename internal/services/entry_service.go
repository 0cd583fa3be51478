package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"pnlcal/internal/amqp"
	"pnlcal/internal/cache"
	"pnlcal/internal/core"
	"pnlcal/internal/store"
)

// EntryPublisher announces entry changes to downstream consumers.
type EntryPublisher interface {
	PublishEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error
}

// EntryService decorates an entry store with a read cache, coalesced range
// loads and change notifications. It satisfies store.EntryStore itself, so
// callers never know whether they talk to the raw store or the service.
type EntryService struct {
	store     store.EntryStore
	cache     cache.Cache[[]core.Entry]
	publisher EntryPublisher
	group     singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

var (
	_ store.EntryStore  = (*EntryService)(nil)
	_ store.EntryGetter = (*EntryService)(nil)
)

type Option func(*EntryService)

// WithCache enables range caching.
func WithCache(c cache.Cache[[]core.Entry]) Option {
	return func(s *EntryService) { s.cache = c }
}

// WithPublisher enables change notifications.
func WithPublisher(p EntryPublisher) Option {
	return func(s *EntryService) { s.publisher = p }
}

func NewEntryService(st store.EntryStore, opts ...Option) *EntryService {
	s := &EntryService{
		store:       st,
		generations: make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func ownerPrefix(ownerID string) string {
	return ownerID + "|"
}

func rangeKey(ownerID string, start, end core.Date) string {
	return ownerPrefix(ownerID) + start.String() + "|" + end.String()
}

func (s *EntryService) generation(ownerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[ownerID]
}

// invalidate drops every cached range of the owner. Loads that started
// before the bump will not repopulate the cache.
func (s *EntryService) invalidate(ownerID string) {
	s.mu.Lock()
	s.generations[ownerID]++
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.DeletePrefix(ownerPrefix(ownerID))
	}
}

// ListInRange returns the owner's entries within [start, end]. Concurrent
// identical requests share a single store call.
func (s *EntryService) ListInRange(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error) {
	key := rangeKey(ownerID, start, end)
	if s.cache != nil {
		if entries, ok := s.cache.Get(key); ok {
			return cloneEntries(entries), nil
		}
	}

	// Loads issued after a write must not join a flight that started before it.
	gen := s.generation(ownerID)
	v, err, shared := s.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		entries, err := s.store.ListInRange(ctx, ownerID, start, end)
		if err != nil {
			return nil, err
		}
		if s.cache != nil && s.generation(ownerID) == gen {
			s.cache.Set(key, entries)
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "Range load coalesced", "owner_id", ownerID, "start", start.String(), "end", end.String())
	}
	return cloneEntries(v.([]core.Entry)), nil
}

// GetByDate uses the store's point lookup when it has one and otherwise
// narrows a one-day range.
func (s *EntryService) GetByDate(ctx context.Context, ownerID string, date core.Date) (core.Entry, error) {
	if g, ok := s.store.(store.EntryGetter); ok {
		return g.GetByDate(ctx, ownerID, date)
	}
	entries, err := s.ListInRange(ctx, ownerID, date, date)
	if err != nil {
		return core.Entry{}, err
	}
	for _, e := range entries {
		if e.Date.String() == date.String() {
			return e, nil
		}
	}
	return core.Entry{}, core.ErrNotFound
}

func (s *EntryService) Upsert(ctx context.Context, ownerID string, date core.Date, pnl decimal.Decimal, numTrades int, notes string) (core.Entry, error) {
	e, err := s.store.Upsert(ctx, ownerID, date, pnl, numTrades, notes)
	if err != nil {
		return core.Entry{}, err
	}
	s.invalidate(ownerID)
	s.publish(ctx, amqp.NewEntryChangedMessage(ownerID, date.String(), amqp.ActionUpsert, e.ID))
	return e, nil
}

func (s *EntryService) DeleteByDate(ctx context.Context, ownerID string, date core.Date) error {
	if err := s.store.DeleteByDate(ctx, ownerID, date); err != nil {
		return err
	}
	s.invalidate(ownerID)
	s.publish(ctx, amqp.NewEntryChangedMessage(ownerID, date.String(), amqp.ActionDelete, ""))
	return nil
}

// publish never fails the write: the entry is already persisted.
func (s *EntryService) publish(ctx context.Context, msg *amqp.EntryChangedMessage) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping entry change", "date", msg.Date)
		return
	}
	if err := s.publisher.PublishEntryChanged(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entry change",
			"owner_id", msg.OwnerID,
			"date", msg.Date,
			"action", msg.Action,
			"error", err)
	}
}

// Ping checks the underlying store when it supports it.
func (s *EntryService) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the store and publisher.
func (s *EntryService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close entry service: %w", errors.Join(errs...))
	}
	return nil
}

func cloneEntries(in []core.Entry) []core.Entry {
	out := make([]core.Entry, len(in))
	copy(out, in)
	return out
}
