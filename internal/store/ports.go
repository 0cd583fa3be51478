// Package store defines the entry persistence ports shared by every backend.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"pnlcal/internal/core"
)

// Ports for the entry storage collaborators.
type (
	// EntryLister returns the entries of an owner dated within [start, end].
	// Order is not guaranteed; callers build a date-keyed lookup.
	EntryLister interface {
		ListInRange(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error)
	}

	// EntryWriter inserts or replaces the entry of an owner for one date.
	EntryWriter interface {
		Upsert(ctx context.Context, ownerID string, date core.Date, pnl decimal.Decimal, numTrades int, notes string) (core.Entry, error)
	}

	// EntryDeleter removes the entry of an owner for one date. Deleting an
	// absent date returns core.ErrNotFound and leaves other rows untouched.
	EntryDeleter interface {
		DeleteByDate(ctx context.Context, ownerID string, date core.Date) error
	}

	// EntryGetter fetches a single entry; core.ErrNotFound when absent.
	EntryGetter interface {
		GetByDate(ctx context.Context, ownerID string, date core.Date) (core.Entry, error)
	}

	// EntryStore is the capability the calendar and editor depend on.
	EntryStore interface {
		EntryLister
		EntryWriter
		EntryDeleter
	}
)
