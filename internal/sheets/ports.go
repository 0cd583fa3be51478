package sheets

import (
	"context"

	"pnlcal/internal/core"
)

// Ports for the journal mirror.
type (
	// EntryMirror keeps one row per (owner, date) in an external sheet.
	EntryMirror interface {
		// UpsertEntry writes the entry's row, replacing an existing one.
		UpsertEntry(ctx context.Context, e core.Entry) error
		// ClearEntry removes the row of owner+date; a missing row is not an error.
		ClearEntry(ctx context.Context, ownerID string, date core.Date) error
	}

	// MirrorReader lists the mirrored rows, used by reconciliation.
	MirrorReader interface {
		ListMirrored(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error)
	}
)
