package calendar

import (
	"context"
	"log/slog"
	"strconv"

	"pnlcal/internal/core"
	"pnlcal/internal/store"
)

// Input is the raw form state of the editor.
type Input struct {
	Amount string
	Trades string
	Notes  string
}

// Editor edits the entry of one date. Failed operations keep the editor
// open with the submitted input so the user can retry.
type Editor struct {
	ownerID  string
	date     core.Date
	existing *core.Entry
	store    store.EntryStore
	onChange func(context.Context) error

	open  bool
	input Input
}

// NewEditor opens an editor for date. existing may be nil for a blank day.
// onChange runs after every successful save or delete.
func NewEditor(ownerID string, date core.Date, existing *core.Entry, st store.EntryStore, onChange func(context.Context) error) *Editor {
	ed := &Editor{
		ownerID:  ownerID,
		date:     date,
		existing: existing,
		store:    st,
		onChange: onChange,
		open:     true,
	}
	if existing != nil {
		ed.input = Input{
			Amount: existing.PnL.String(),
			Trades: strconv.Itoa(existing.NumTrades),
			Notes:  existing.Notes,
		}
	}
	return ed
}

// OpenEditor opens an editor for date bound to this controller: the existing
// entry comes from the loaded lookup and successful writes trigger a reload.
func (c *Controller) OpenEditor(date core.Date, st store.EntryStore) *Editor {
	var existing *core.Entry
	if e, ok := c.Entry(date); ok {
		existing = &e
	}
	return NewEditor(c.ownerID, date, existing, st, c.Reload)
}

func (e *Editor) Date() core.Date {
	return e.date
}

// Existing returns the entry being edited, nil for a new one.
func (e *Editor) Existing() *core.Entry {
	return e.existing
}

func (e *Editor) Input() Input {
	return e.input
}

func (e *Editor) IsOpen() bool {
	return e.open
}

// Save validates the input and upserts the entry. The amount is required;
// an unparseable trade count is stored as 0.
func (e *Editor) Save(ctx context.Context, in Input) (core.Entry, error) {
	e.input = in

	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Entry{}, err
	}
	trades := core.ParseTrades(in.Trades)

	saved, err := e.store.Upsert(ctx, e.ownerID, e.date, amount, trades, in.Notes)
	if err != nil {
		return core.Entry{}, err
	}

	e.existing = &saved
	e.open = false
	e.notify(ctx)
	return saved, nil
}

// Delete removes the entry. It requires an existing entry and an explicit
// confirmation.
func (e *Editor) Delete(ctx context.Context, confirmed bool) error {
	if e.existing == nil {
		return core.ErrNotFound
	}
	if !confirmed {
		return core.ErrConfirmationRequired
	}

	if err := e.store.DeleteByDate(ctx, e.ownerID, e.date); err != nil {
		return err
	}

	e.existing = nil
	e.open = false
	e.notify(ctx)
	return nil
}

// notify runs the change hook. The write already succeeded, so a failing
// reload is only logged; the calendar reports it on the next render.
func (e *Editor) notify(ctx context.Context) {
	if e.onChange == nil {
		return
	}
	if err := e.onChange(ctx); err != nil {
		slog.WarnContext(ctx, "Reload after entry change failed",
			"owner_id", e.ownerID,
			"date", e.date.String(),
			"error", err)
	}
}
