// Package worker mirrors entry changes from the store into the journal sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"pnlcal/internal/amqp"
	"pnlcal/internal/core"
	"pnlcal/internal/sheets"
	"pnlcal/internal/store"
)

// Source is the read side of the entry store the worker needs.
type Source interface {
	store.EntryLister
	store.EntryGetter
}

// SyncWorker applies EntryChanged messages to a mirror and periodically
// reconciles the current month of every owner it has seen.
type SyncWorker struct {
	source   Source
	mirror   sheets.EntryMirror
	interval time.Duration
	now      func() time.Time

	ownersMu sync.Mutex
	owners   map[string]struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type Option func(*SyncWorker)

// WithInterval sets how often the reconcile loop runs (default: 5m).
func WithInterval(d time.Duration) Option {
	return func(w *SyncWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *SyncWorker) { w.now = now }
}

func NewSyncWorker(source Source, mirror sheets.EntryMirror, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		source:   source,
		mirror:   mirror,
		interval: 5 * time.Minute,
		now:      time.Now,
		owners:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEntryChanged processes a single message. The message only names the
// key; the row written is whatever the store holds now, so redelivered or
// reordered messages converge on the same state.
func (w *SyncWorker) HandleEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error {
	date, err := core.ParseDate(msg.Date)
	if err != nil {
		// Not retryable; ack and move on.
		slog.WarnContext(ctx, "Dropping message with invalid date", "owner_id", msg.OwnerID, "date", msg.Date)
		return nil
	}
	w.rememberOwner(msg.OwnerID)

	slog.InfoContext(ctx, "Processing entry change",
		"owner_id", msg.OwnerID,
		"date", msg.Date,
		"action", msg.Action)

	return w.syncDate(ctx, msg.OwnerID, date)
}

func (w *SyncWorker) syncDate(ctx context.Context, ownerID string, date core.Date) error {
	entry, err := w.source.GetByDate(ctx, ownerID, date)
	switch {
	case errors.Is(err, core.ErrNotFound):
		if err := w.mirror.ClearEntry(ctx, ownerID, date); err != nil {
			return fmt.Errorf("clear mirrored entry: %w", err)
		}
		slog.DebugContext(ctx, "Cleared mirrored entry", "owner_id", ownerID, "date", date.String())
		return nil
	case err != nil:
		return fmt.Errorf("get entry: %w", err)
	}

	if err := w.mirror.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("mirror entry: %w", err)
	}
	slog.DebugContext(ctx, "Mirrored entry", "owner_id", ownerID, "date", date.String())
	return nil
}

func (w *SyncWorker) rememberOwner(ownerID string) {
	w.ownersMu.Lock()
	w.owners[ownerID] = struct{}{}
	w.ownersMu.Unlock()
}

// Owners returns the owners seen since startup, sorted.
func (w *SyncWorker) Owners() []string {
	w.ownersMu.Lock()
	defer w.ownersMu.Unlock()
	out := make([]string, 0, len(w.owners))
	for id := range w.owners {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ReconcileMonth writes every stored entry of the month to the mirror and,
// when the mirror can be read back, clears rows the store no longer has.
func (w *SyncWorker) ReconcileMonth(ctx context.Context, ownerID string, ym core.YearMonth) error {
	start, end := ym.FirstDay(), ym.LastDay()
	entries, err := w.source.ListInRange(ctx, ownerID, start, end)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if err := w.mirror.UpsertEntry(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("mirror %s: %w", e.Date, err))
		}
	}

	if reader, ok := w.mirror.(sheets.MirrorReader); ok {
		mirrored, err := reader.ListMirrored(ctx, ownerID, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("list mirrored: %w", err))
		} else {
			stored := core.IndexByDate(entries)
			for _, m := range mirrored {
				if _, ok := stored[m.Date.String()]; ok {
					continue
				}
				if err := w.mirror.ClearEntry(ctx, ownerID, m.Date); err != nil {
					errs = append(errs, fmt.Errorf("clear %s: %w", m.Date, err))
				}
			}
		}
	}

	slog.DebugContext(ctx, "Reconciled month",
		"owner_id", ownerID,
		"month", ym.Key(),
		"entries", len(entries),
		"errors", len(errs))
	return errors.Join(errs...)
}

// Reconcile runs ReconcileMonth for the current month of every known owner.
// Failures are logged per owner and do not stop the pass.
func (w *SyncWorker) Reconcile(ctx context.Context) {
	ym := core.CurrentYearMonth(w.now())
	for _, ownerID := range w.Owners() {
		if err := w.ReconcileMonth(ctx, ownerID, ym); err != nil {
			slog.ErrorContext(ctx, "Reconcile failed", "owner_id", ownerID, "error", err)
		}
	}
}

// Start begins the reconcile loop. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Sync worker started", "interval", w.interval)
	return nil
}

// Stop signals the loop and waits for it to finish.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Sync worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}
}

func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SyncWorker) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Reconcile(ctx)
		}
	}
}
