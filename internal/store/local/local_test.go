package local_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnlcal/internal/core"
	"pnlcal/internal/store/local"
)

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (failingKV) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func TestStore_UpsertIsIdempotentPerDate(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	s := local.New(local.NewMemoryKV(), local.WithClock(fixedClock(t0, t1)))
	day := core.NewDate(2025, 3, 10)

	first, err := s.Upsert(ctx, "u1", day, decimal.RequireFromString("100"), 3, "first")
	require.NoError(t, err)
	second, err := s.Upsert(ctx, "u1", day, decimal.RequireFromString("-40.5"), 5, "second")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.Equal(t0))
	assert.True(t, second.UpdatedAt.Equal(t1))

	got, err := s.ListInRange(ctx, "u1", day, day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "-40.5", got[0].PnL.String())
	assert.Equal(t, 5, got[0].NumTrades)
	assert.Equal(t, "second", got[0].Notes)
}

func TestStore_ListInRangeIsInclusiveAndOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := local.New(local.NewMemoryKV())
	for _, d := range []core.Date{core.NewDate(2025, 2, 28), core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31), core.NewDate(2025, 4, 1)} {
		_, err := s.Upsert(ctx, "u1", d, decimal.NewFromInt(10), 1, "")
		require.NoError(t, err)
	}
	_, err := s.Upsert(ctx, "u2", core.NewDate(2025, 3, 15), decimal.NewFromInt(99), 1, "")
	require.NoError(t, err)

	got, err := s.ListInRange(ctx, "u1", core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-01", got[0].Date.String())
	assert.Equal(t, "2025-03-31", got[1].Date.String())
}

func TestStore_DeleteByDate(t *testing.T) {
	ctx := context.Background()
	s := local.New(local.NewMemoryKV())
	keep := core.NewDate(2025, 3, 9)
	drop := core.NewDate(2025, 3, 10)
	_, err := s.Upsert(ctx, "u1", keep, decimal.NewFromInt(1), 0, "")
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "u1", drop, decimal.NewFromInt(2), 0, "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteByDate(ctx, "u1", drop))

	_, err = s.GetByDate(ctx, "u1", drop)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetByDate(ctx, "u1", keep)
	assert.NoError(t, err)

	err = s.DeleteByDate(ctx, "u1", drop)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetByDate(ctx, "u1", keep)
	assert.NoError(t, err, "deleting an absent date must not touch other entries")
}

func TestStore_UpsertRejectsInvalidValues(t *testing.T) {
	s := local.New(local.NewMemoryKV())
	_, err := s.Upsert(context.Background(), "u1", core.NewDate(2025, 1, 1), decimal.Zero, -1, "")
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "num_trades", ve.Field)
}

func TestStore_WrapsBackendFailures(t *testing.T) {
	s := local.New(failingKV{})
	_, err := s.ListInRange(context.Background(), "u1", core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 31))
	var se *core.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list", se.Op)
}

func TestFileKV_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := local.NewFileKV(dir)
	require.NoError(t, err)
	_, err = local.New(kv).Upsert(ctx, "u1", core.NewDate(2025, 5, 2), decimal.RequireFromString("12.34"), 2, "note")
	require.NoError(t, err)

	reopened, err := local.NewFileKV(dir)
	require.NoError(t, err)
	e, err := local.New(reopened).GetByDate(ctx, "u1", core.NewDate(2025, 5, 2))
	require.NoError(t, err)
	assert.Equal(t, "12.34", e.PnL.String())
	assert.Equal(t, "note", e.Notes)
}

func TestFileKV_MissingKey(t *testing.T) {
	kv, err := local.NewFileKV(t.TempDir())
	require.NoError(t, err)
	v, err := kv.Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, v)
}
