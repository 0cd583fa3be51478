package http

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnlcal/internal/core"
	"pnlcal/internal/store/local"
)

func TestCalendarNavigation(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env, "2025-03-03", "125.50", 3)
	seed(t, env, "2025-03-04", "-40", 1)
	seed(t, env, "2025-04-01", "1000", 2)

	rr := env.do(t, http.MethodGet, "/ui/calendar", "", htmx())
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "March 2025")
	assert.Contains(t, body, "$125.50")
	assert.Contains(t, body, "-$40.00")
	// Monthly total excludes the April spillover entry.
	assert.Contains(t, body, "$85.50")
	assert.Contains(t, body, "50.0%")

	rr = env.do(t, http.MethodPost, "/ui/calendar/next", "", htmx())
	assert.Contains(t, rr.Body.String(), "April 2025")
	assert.Contains(t, rr.Body.String(), "$1,000.00")

	env.do(t, http.MethodPost, "/ui/calendar/prev", "", htmx())
	rr = env.do(t, http.MethodPost, "/ui/calendar/prev", "", htmx())
	assert.Contains(t, rr.Body.String(), "February 2025")

	rr = env.do(t, http.MethodGet, "/ui/calendar?year=2024&month=12", "", htmx())
	assert.Contains(t, rr.Body.String(), "December 2024")

	rr = env.do(t, http.MethodGet, "/ui/calendar?select=2025-01-28", "", htmx())
	assert.Contains(t, rr.Body.String(), "January 2025")

	rr = env.do(t, http.MethodGet, "/ui/calendar?select=not-a-date", "", htmx())
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestEditor(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env, "2025-03-03", "125.5", 3)

	t.Run("existing entry", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ui/entries/2025-03-03", "", htmx())
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Monday, March 3, 2025")
		assert.Contains(t, rr.Body.String(), `value="125.5"`)
		assert.Contains(t, rr.Body.String(), "Yes, delete this entry")
		assert.Empty(t, rr.Header().Get("HX-Trigger"))
	})

	t.Run("blank day", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ui/entries/2025-03-05", "", htmx())
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "Yes, delete this entry")
	})

	t.Run("spillover day navigates", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ui/entries/2025-04-02", "", htmx())
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("HX-Trigger"), "calendar:refresh")

		ctrl, created := env.srv.calendars.For("u1")
		assert.False(t, created)
		assert.Equal(t, core.YearMonth{Year: 2025, Month: 3}, ctrl.Viewing())
	})

	t.Run("invalid date", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/ui/entries/2025-02-30", "", htmx())
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})
}

func TestSaveEntry(t *testing.T) {
	env := newTestEnv(t, 0)
	date := core.NewDate(2025, 3, 7)

	t.Run("missing amount", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-07", "amount=&trades=2", htmx())
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "Enter a P/L amount.")
	})

	t.Run("malformed amount keeps input", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-07", "amount=12abc&trades=2&notes=fomo", htmx())
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), "P/L must be a number")
		assert.Contains(t, rr.Body.String(), `value="12abc"`)
		assert.Contains(t, rr.Body.String(), "fomo")

		_, err := env.store.GetByDate(context.Background(), "u1", date)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("form save", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-07", "amount=-42,10&trades=x&notes=stopped+out", htmx())
		require.Equal(t, http.StatusOK, rr.Code)
		trigger := rr.Header().Get("HX-Trigger")
		assert.Contains(t, trigger, "entry:saved")
		assert.Contains(t, trigger, "calendar:refresh")
		assert.Contains(t, trigger, "editor:close")

		e, err := env.store.GetByDate(context.Background(), "u1", date)
		require.NoError(t, err)
		assert.Equal(t, "-42.1", e.PnL.String())
		assert.Equal(t, 0, e.NumTrades)
		assert.Equal(t, "stopped out", e.Notes)

		rr = env.do(t, http.MethodGet, "/ui/calendar", "", htmx())
		assert.Contains(t, rr.Body.String(), "-$42.10")
	})

	t.Run("json save updates", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-07", `{"pnl_amount": 310.25, "num_trades": 4}`, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var got entryJSON
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "2025-03-07", got.Date)
		assert.Equal(t, "310.25", got.PnL.String())
		assert.Equal(t, 4, got.NumTrades)

		rr = env.do(t, http.MethodGet, "/metrics", "", nil)
		assert.Contains(t, rr.Body.String(), "entries_saved_total 2")
	})

	t.Run("json error", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-07", `{"pnl_amount": "lots"}`, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error"`)
	})
}

func TestDeleteEntry(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env, "2025-03-10", "75", 1)
	date := core.NewDate(2025, 3, 10)

	rr := env.do(t, http.MethodPost, "/entries/2025-03-10/delete", "", htmx())
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "Confirm the delete")
	_, err := env.store.GetByDate(context.Background(), "u1", date)
	require.NoError(t, err)

	rr = env.do(t, http.MethodPost, "/entries/2025-03-10/delete", "confirm=yes", htmx())
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("HX-Trigger"), "entry:deleted")
	_, err = env.store.GetByDate(context.Background(), "u1", date)
	assert.ErrorIs(t, err, core.ErrNotFound)

	rr = env.do(t, http.MethodPost, "/entries/2025-03-10/delete", "confirm=yes", htmx())
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type unreachableKV struct{}

func (unreachableKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (unreachableKV) Set(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

// flakyKV fails every call while down is set.
type flakyKV struct {
	*local.MemoryKV
	down atomic.Bool
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestCalendarLoadFailureBanner(t *testing.T) {
	kv := &flakyKV{MemoryKV: local.NewMemoryKV()}
	env := newTestEnvKV(t, 0, kv)

	rr := env.do(t, http.MethodGet, "/ui/calendar", "", htmx())
	require.Equal(t, http.StatusOK, rr.Code)
	kv.down.Store(true)

	rr = env.do(t, http.MethodGet, "/ui/calendar?year=2026&month=1", "", htmx())
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "January 2026")
	assert.Contains(t, rr.Body.String(), "may be incomplete")
	assert.NotContains(t, rr.Body.String(), "Showing the last loaded data")

	rr = env.do(t, http.MethodGet, "/ui/calendar?year=2025&month=3", "", htmx())
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "Showing the last loaded data")
}

func TestEntryStoreDown(t *testing.T) {
	env := newTestEnvKV(t, 0, unreachableKV{})

	t.Run("save keeps the editor and input", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-05", "amount=123.45&trades=2&notes=keepme", htmx())
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, "<form")
		assert.Contains(t, body, `value="123.45"`)
		assert.Contains(t, body, "keepme")
		assert.Contains(t, body, "Could not reach the journal store")
	})

	t.Run("delete keeps the editor", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/entries/2025-03-05/delete", "confirm=yes", htmx())
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, rr.Body.String(), "<form")
		assert.Contains(t, rr.Body.String(), "Could not reach the journal store")
	})
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env, "2025-03-03", "10", 1)
	seed(t, env, "2025-03-31", "-5", 1)
	seed(t, env, "2025-04-01", "7", 1)

	rr := env.do(t, http.MethodGet, "/api/entries", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Start   string      `json:"start"`
		End     string      `json:"end"`
		Entries []entryJSON `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "2025-03-01", body.Start)
	assert.Equal(t, "2025-03-31", body.End)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "2025-03-03", body.Entries[0].Date)

	rr = env.do(t, http.MethodGet, "/api/entries?start=2025-04-01&end=2025-03-01", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShareCard(t *testing.T) {
	env := newTestEnv(t, 0)
	seed(t, env, "2025-03-03", "1250", 3)
	seed(t, env, "2025-03-04", "-200", 2)

	rr := env.do(t, http.MethodGet, "/share/card.png?year=2025&month=3&winners=aapl,tsla&download=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="pnl-March-2025.png"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	_, err := png.Decode(rr.Body)
	require.NoError(t, err)

	rr = env.do(t, http.MethodGet, "/share/card.png", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `inline; filename="pnl-March-2025.png"`, rr.Header().Get("Content-Disposition"))
}
