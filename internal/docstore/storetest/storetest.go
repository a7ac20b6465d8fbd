// Package storetest is the behavioural suite every docstore adapter runs.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

// Run exercises newStore against the Store contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "users/nobody")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("SetReplaceAndMerge", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		path := "users/u1/progress/2026-03-01"

		require.NoError(t, s.Set(ctx, path, map[string]any{"water_l": 1.5, "sleep_hours": 7.0}, false))
		require.NoError(t, s.Set(ctx, path, map[string]any{"calories_consumed": 800.0}, true))

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, "2026-03-01", doc.Key)
		assert.Equal(t, "users/u1/progress", doc.Collection)
		assert.EqualValues(t, 1.5, doc.Data["water_l"])
		assert.EqualValues(t, 800, doc.Data["calories_consumed"])
		assert.EqualValues(t, 2, doc.Version)

		require.NoError(t, s.Set(ctx, path, map[string]any{"energy": 5.0}, false))
		doc, err = s.Get(ctx, path)
		require.NoError(t, err)
		assert.NotContains(t, doc.Data, "water_l")
		assert.EqualValues(t, 3, doc.Version)
	})

	t.Run("SetIfVersion", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		path := "users/u1/meals/2026-03-01"

		v, err := s.SetIfVersion(ctx, path, map[string]any{"date": "2026-03-01"}, 0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, v)

		_, err = s.SetIfVersion(ctx, path, map[string]any{"date": "x"}, 0)
		require.ErrorIs(t, err, model.ErrConcurrencyConflict)

		v, err = s.SetIfVersion(ctx, path, map[string]any{"date": "2026-03-01", "n": 1.0}, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, v)

		_, err = s.SetIfVersion(ctx, path, map[string]any{"n": 2.0}, 1)
		require.ErrorIs(t, err, model.ErrConcurrencyConflict)

		doc, err := s.Get(ctx, path)
		require.NoError(t, err)
		assert.EqualValues(t, 1, doc.Data["n"])
	})

	t.Run("SetIfVersionRace", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		path := "users/u1/meals/2026-03-02"
		_, err := s.SetIfVersion(ctx, path, map[string]any{"n": 0.0}, 0)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		wins := make(chan struct{}, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := s.SetIfVersion(ctx, path, map[string]any{"n": float64(i)}, 1); err == nil {
					wins <- struct{}{}
				}
			}(i)
		}
		wg.Wait()
		close(wins)
		assert.Len(t, wins, 1, "exactly one conditional write may win")
	})

	t.Run("QueryRangeAndOrder", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for _, d := range []string{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"} {
			require.NoError(t, s.Set(ctx, "users/u1/progress/"+d, map[string]any{"date": d}, true))
		}
		require.NoError(t, s.Set(ctx, "users/u2/progress/2026-03-01", map[string]any{"date": "2026-03-01"}, true))

		docs, err := s.Query(ctx, "users/u1/progress", docstore.Query{
			Filters:    []docstore.Filter{{Field: docstore.KeyField, Op: docstore.OpGTE, Value: "2026-02-28"}},
			Descending: true,
		})
		require.NoError(t, err)
		keys := make([]string, 0, len(docs))
		for _, d := range docs {
			keys = append(keys, d.Key)
		}
		assert.Equal(t, []string{"2026-03-02", "2026-03-01", "2026-02-28"}, keys)

		docs, err = s.Query(ctx, "users/u1/progress", docstore.Query{Descending: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "2026-03-02", docs[0].Key)

		docs, err = s.Query(ctx, "users/u1/progress", docstore.Query{
			Filters: []docstore.Filter{{Field: "date", Op: docstore.OpEq, Value: "2026-02-27"}},
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "2026-02-27", docs[0].Key)
	})

	t.Run("QueryEmptyCollection", func(t *testing.T) {
		s := newStore(t)
		docs, err := s.Query(context.Background(), "users/none/progress", docstore.Query{})
		require.NoError(t, err)
		assert.NotNil(t, docs)
		assert.Empty(t, docs)
	})

	t.Run("QueryDirectChildrenOnly", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "users/u1", map[string]any{"username": "a"}, false))
		require.NoError(t, s.Set(ctx, "users/u1/meals/2026-03-01", map[string]any{"date": "2026-03-01"}, false))
		docs, err := s.Query(ctx, "users", docstore.Query{})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "u1", docs[0].Key)
	})

	t.Run("QueryRejectsBadField", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Query(context.Background(), "users", docstore.Query{
			Filters: []docstore.Filter{{Field: "x'; drop table documents; --", Op: docstore.OpEq, Value: "1"}},
		})
		require.Error(t, err)
	})
}
