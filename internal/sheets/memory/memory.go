// Package memory is an in-process journal mirror used in development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"pnlcal/internal/core"
	ports "pnlcal/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows map[string]core.Entry
	ops  int
}

var (
	_ ports.EntryMirror  = (*Mirror)(nil)
	_ ports.MirrorReader = (*Mirror)(nil)
)

func New() *Mirror {
	return &Mirror{rows: make(map[string]core.Entry)}
}

func key(ownerID string, date core.Date) string {
	return ownerID + "|" + date.String()
}

func (m *Mirror) UpsertEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[key(e.OwnerID, e.Date)] = e
	m.ops++
	return nil
}

func (m *Mirror) ClearEntry(_ context.Context, ownerID string, date core.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key(ownerID, date))
	m.ops++
	return nil
}

func (m *Mirror) ListMirrored(_ context.Context, ownerID string, start, end core.Date) ([]core.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Entry
	for _, e := range m.rows {
		if e.OwnerID == ownerID && e.Date.Between(start, end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Get returns the mirrored row for owner+date.
func (m *Mirror) Get(ownerID string, date core.Date) (core.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[key(ownerID, date)]
	return e, ok
}

// Len returns the number of mirrored rows.
func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Ops counts write calls, including clears of absent rows.
func (m *Mirror) Ops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ops
}
