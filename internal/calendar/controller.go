// Package calendar holds the per-user month view state: which month is being
// viewed, the entries loaded for it and the editor that mutates them.
package calendar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pnlcal/internal/core"
	"pnlcal/internal/store"
)

// Cell is one grid box joined with the entry recorded for its date, if any.
type Cell struct {
	core.DisplayCell
	Entry   *core.Entry
	IsToday bool
}

// Key returns the ISO date of the cell.
func (c Cell) Key() string {
	return c.Date().String()
}

// View is a consistent snapshot of the controller state for rendering.
type View struct {
	Month        core.YearMonth
	Cells        []Cell
	MonthlyTotal decimal.Decimal
	Stats        core.MonthStats
	Loading      bool
	// Err is the failure of the latest completed load, if it failed.
	Err error
}

// Controller owns the calendar state of one user. Every load takes a fresh
// token and only the load holding the latest token may replace the lookup,
// so the last navigation wins regardless of completion order.
type Controller struct {
	ownerID string
	store   store.EntryLister
	now     func() time.Time

	mu        sync.Mutex
	viewing   core.YearMonth
	monthSet  bool
	loaded    core.YearMonth
	hasLoaded bool
	lookup    map[string]core.Entry
	token     uint64
	loading   bool
	lastErr   error
}

type ControllerOption func(*Controller)

// WithClock sets the time source used for the initial month and "today".
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithMonth starts the controller on a specific month.
func WithMonth(ym core.YearMonth) ControllerOption {
	return func(c *Controller) {
		c.viewing = core.NewYearMonth(ym.Year, ym.Month)
		c.monthSet = true
	}
}

// NewController creates a controller viewing the current month. Nothing is
// loaded until Reload or a navigation call.
func NewController(ownerID string, lister store.EntryLister, opts ...ControllerOption) *Controller {
	c := &Controller{
		ownerID: ownerID,
		store:   lister,
		now:     time.Now,
		lookup:  make(map[string]core.Entry),
	}
	for _, o := range opts {
		o(c)
	}
	if !c.monthSet {
		c.viewing = core.CurrentYearMonth(c.now())
	}
	return c
}

func (c *Controller) OwnerID() string {
	return c.ownerID
}

// Viewing returns the month currently shown.
func (c *Controller) Viewing() core.YearMonth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewing
}

// Loaded reports the month whose range last loaded successfully.
func (c *Controller) Loaded() (core.YearMonth, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded, c.hasLoaded
}

func (c *Controller) PreviousMonth(ctx context.Context) error {
	c.mu.Lock()
	c.viewing = c.viewing.Prev()
	c.mu.Unlock()
	return c.Reload(ctx)
}

func (c *Controller) NextMonth(ctx context.Context) error {
	c.mu.Lock()
	c.viewing = c.viewing.Next()
	c.mu.Unlock()
	return c.Reload(ctx)
}

// GoTo jumps to ym (normalised) and reloads.
func (c *Controller) GoTo(ctx context.Context, ym core.YearMonth) error {
	c.mu.Lock()
	c.viewing = core.NewYearMonth(ym.Year, ym.Month)
	c.mu.Unlock()
	return c.Reload(ctx)
}

// SelectDay navigates to the month of a spillover cell. It reports whether
// navigation happened; a cell of the viewed month is left to the editor.
func (c *Controller) SelectDay(ctx context.Context, cell core.DisplayCell) (bool, error) {
	c.mu.Lock()
	viewing := c.viewing
	c.mu.Unlock()
	if viewing.Contains(cell.Date()) {
		return false, nil
	}
	return true, c.GoTo(ctx, core.YearMonth{Year: cell.Year, Month: cell.Month})
}

// Reload fetches the viewed month plus its neighbours. A superseded load is
// discarded silently. A failed load keeps the previous lookup and returns
// the store error.
func (c *Controller) Reload(ctx context.Context) error {
	c.mu.Lock()
	c.token++
	token := c.token
	ym := c.viewing
	c.loading = true
	c.mu.Unlock()

	start, end := ym.FetchRange()
	entries, err := c.store.ListInRange(ctx, c.ownerID, start, end)

	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.token {
		slog.DebugContext(ctx, "Discarding superseded calendar load",
			"owner_id", c.ownerID,
			"month", ym.Key())
		return nil
	}

	c.loading = false
	if err != nil {
		c.lastErr = err
		slog.ErrorContext(ctx, "Calendar load failed",
			"owner_id", c.ownerID,
			"month", ym.Key(),
			"error", err)
		return err
	}

	c.lookup = core.IndexByDate(entries)
	c.loaded = ym
	c.hasLoaded = true
	c.lastErr = nil
	return nil
}

// Entry returns the loaded entry for date.
func (c *Controller) Entry(date core.Date) (core.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lookup[date.String()]
	return e, ok
}

// View snapshots the controller for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	viewing := c.viewing
	lookup := c.lookup
	loading := c.loading
	lastErr := c.lastErr
	c.mu.Unlock()

	now := c.now()
	today := core.NewDate(now.Year(), int(now.Month()), now.Day())
	grid := core.MonthGrid(viewing.Year, viewing.Month)
	cells := make([]Cell, len(grid))
	entries := make([]core.Entry, 0, len(lookup))
	for i, dc := range grid {
		cell := Cell{DisplayCell: dc}
		key := dc.Date().String()
		if e, ok := lookup[key]; ok {
			e := e
			cell.Entry = &e
		}
		cell.IsToday = key == today.String()
		cells[i] = cell
	}
	for _, e := range lookup {
		entries = append(entries, e)
	}

	return View{
		Month:        viewing,
		Cells:        cells,
		MonthlyTotal: core.MonthlyTotal(entries, viewing),
		Stats:        core.ComputeStats(core.EntriesInMonth(entries, viewing)),
		Loading:      loading,
		Err:          lastErr,
	}
}
