package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/docstore/memory"
	"lg/nutrition-tracker-api/internal/ledger"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/progress"
)

func f(v float64) *float64 { return &v }

func TestRunRepairsStaleTotals(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := ledger.New(store)
	agg := progress.NewAggregator(store, l, docstore.DefaultRetryPolicy(), time.Now, zerolog.Nop())

	for _, uid := range []string{"u1", "u2"} {
		require.NoError(t, store.Set(ctx, "users/"+uid, map[string]any{"username": uid}, false))
	}
	for _, date := range []string{"2026-02-20", "2026-03-01", "2026-03-02"} {
		_, err := l.Append(ctx, "u1", date, model.SlotLunch, model.MealInput{Name: "rice", Calories: f(400)})
		require.NoError(t, err)
	}
	_, err := l.Append(ctx, "u2", "2026-03-02", model.SlotDinner, model.MealInput{Name: "soup", Calories: f(250)})
	require.NoError(t, err)

	rep, err := New(store, agg, zerolog.Nop()).Run(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Users)
	assert.Equal(t, 3, rep.Days)
	assert.Zero(t, rep.Failures)

	snap, err := progress.Get(ctx, store, "u2", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 250, snap.CaloriesConsumed)

	_, err = progress.Get(ctx, store, "u1", "2026-02-20")
	require.ErrorIs(t, err, model.ErrNotFound, "days before since are left alone")
}

type failingRecomputer struct{ calls int }

func (r *failingRecomputer) Recompute(context.Context, string, string) (model.DayTotals, error) {
	r.calls++
	return model.DayTotals{}, errors.New("store down")
}

func TestRunCountsFailuresAndContinues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := ledger.New(store)
	require.NoError(t, store.Set(ctx, "users/u1", map[string]any{}, false))
	for _, date := range []string{"2026-03-01", "2026-03-02"} {
		_, err := l.Append(ctx, "u1", date, model.SlotLunch, model.MealInput{Name: "rice", Calories: f(400)})
		require.NoError(t, err)
	}

	agg := &failingRecomputer{}
	rep, err := New(store, agg, zerolog.Nop()).Run(ctx, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.calls)
	assert.Equal(t, 2, rep.Failures)
}

func TestRunRejectsBadSince(t *testing.T) {
	_, err := New(memory.New(), &failingRecomputer{}, zerolog.Nop()).Run(context.Background(), "soon")
	require.ErrorIs(t, err, model.ErrInvalidDate)
}
