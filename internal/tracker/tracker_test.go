package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/docstore/memory"
	"lg/nutrition-tracker-api/internal/keyqueue"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/profile"
	"lg/nutrition-tracker-api/internal/progress"
)

const (
	uid   = "u1"
	today = "2026-03-01"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

// flakyStore fails snapshot writes while failProgress is set.
type flakyStore struct {
	docstore.Store
	failProgress atomic.Bool
}

func (s *flakyStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	if s.failProgress.Load() && strings.Contains(path, "/progress/") {
		return docstore.Unavailable("set "+path, errors.New("deadline exceeded"))
	}
	return s.Store.Set(ctx, path, data, merge)
}

func (s *flakyStore) SetIfVersion(ctx context.Context, path string, data map[string]any, version int64) (int64, error) {
	if s.failProgress.Load() && strings.Contains(path, "/progress/") {
		return 0, docstore.Unavailable("set "+path, errors.New("deadline exceeded"))
	}
	return s.Store.SetIfVersion(ctx, path, data, version)
}

// pausingStore holds the pauseAt-th meal ledger read, after it completes,
// until resume is closed.
type pausingStore struct {
	docstore.Store
	pauseAt int32
	reads   atomic.Int32
	reached chan struct{}
	resume  chan struct{}
}

func (s *pausingStore) Get(ctx context.Context, path string) (*docstore.Document, error) {
	doc, err := s.Store.Get(ctx, path)
	if strings.Contains(path, "/meals/") && s.reads.Add(1) == s.pauseAt {
		close(s.reached)
		<-s.resume
	}
	return doc, err
}

var fastRetry = docstore.RetryPolicy{MaxRetries: 50, BaseBackoff: 100 * time.Microsecond, MaxInterval: 2 * time.Millisecond}

func newService(t *testing.T) (*Service, *flakyStore) {
	t.Helper()
	store := &flakyStore{Store: memory.New()}
	q := keyqueue.New(keyqueue.Config{Shards: 2}, zerolog.Nop())
	t.Cleanup(q.Stop)
	s := New(store, q,
		WithClock(func() time.Time { return fixedNow }),
		WithRetryPolicy(fastRetry),
	)
	_, err := s.Profiles().Create(context.Background(), uid, "lyle")
	require.NoError(t, err)
	return s, store
}

func onboard(t *testing.T, s *Service) model.Profile {
	t.Helper()
	p, err := s.Onboard(context.Background(), uid, today, profile.OnboardingInput{
		Biometrics: model.Biometrics{WeightKG: 70, HeightCM: 175, Age: 30, Sex: model.SexMale},
		Tier:       model.TierIntermediate,
	})
	require.NoError(t, err)
	return p
}

func TestOnboardOpensTodaysSnapshot(t *testing.T) {
	s, _ := newService(t)
	p := onboard(t, s)
	assert.Equal(t, 2629, p.Targets.Calories)

	snaps, err := s.History(context.Background(), uid, today)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, today, snaps[0].Date)
	assert.Equal(t, 5, snaps[0].Energy)
	assert.Zero(t, snaps[0].CaloriesConsumed)
}

func TestOnboardInvalidBiometrics(t *testing.T) {
	s, store := newService(t)
	_, err := s.Onboard(context.Background(), uid, today, profile.OnboardingInput{
		Biometrics: model.Biometrics{WeightKG: 70, HeightCM: 0, Age: 30},
	})
	require.ErrorIs(t, err, model.ErrInvalidBiometrics)
	_, err = store.Get(context.Background(), progress.Path(uid, today))
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAddAndRemoveMealUpdateTotals(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	onboard(t, s)

	res, err := s.AddMeal(ctx, uid, today, model.SlotBreakfast, model.MealInput{Name: "Oats", Calories: f(300), ProteinG: f(20), CarbsG: f(30), FatG: f(10)})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.False(t, res.Stale())
	res, err = s.AddMeal(ctx, uid, today, model.SlotLunch, model.MealInput{Name: "Rice bowl", Calories: f(500), ProteinG: f(30), CarbsG: f(50), FatG: f(15)})
	require.NoError(t, err)
	assert.Equal(t, model.DayTotals{Calories: 800, ProteinG: 50, CarbsG: 80, FatG: 25}, *res.Totals)

	d, err := s.Dashboard(ctx, uid, today)
	require.NoError(t, err)
	require.NotNil(t, d.Today)
	assert.Equal(t, 800, d.Today.CaloriesConsumed)
	assert.Equal(t, 5, d.Today.Energy, "aggregation must not clobber other fields")
	require.NotNil(t, d.RemainingCalories)
	assert.Equal(t, 2629-800, *d.RemainingCalories)

	res, err = s.RemoveMeal(ctx, uid, today, model.SlotLunch, res.Entry.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Entry)
	assert.Equal(t, model.DayTotals{Calories: 300, ProteinG: 20, CarbsG: 30, FatG: 10}, *res.Totals)

	day, err := s.Meals(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, 1, day.EntryCount())
}

func TestAddMealInvalidInputIsReturned(t *testing.T) {
	s, _ := newService(t)
	_, err := s.AddMeal(context.Background(), uid, today, model.SlotLunch, model.MealInput{Name: "mystery"})
	require.ErrorIs(t, err, model.ErrInvalidMealEntry)
}

func TestAggregationFailureDoesNotFailMeal(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)

	store.failProgress.Store(true)
	res, err := s.AddMeal(ctx, uid, today, model.SlotDinner, model.MealInput{Name: "Pasta", Calories: f(650)})
	require.NoError(t, err, "the meal itself was stored")
	require.NotNil(t, res.Entry)
	assert.True(t, res.Stale())
	assert.ErrorIs(t, res.AggregationErr, model.ErrStoreUnavailable)
	assert.Nil(t, res.Totals)

	day, err := s.Meals(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, 1, day.EntryCount())

	// the next successful recompute catches up
	store.failProgress.Store(false)
	totals, err := s.Recompute(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, 650, totals.Calories)
}

func TestConcurrentMealsOnOneDay(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	const meals = 20
	var wg sync.WaitGroup
	for i := 0; i < meals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddMeal(ctx, uid, today, model.Slots[i%4], model.MealInput{Name: fmt.Sprintf("snack %d", i), Calories: f(50), ProteinG: f(1.5)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	day, err := s.Meals(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, meals, day.EntryCount())

	d, err := s.Dashboard(ctx, uid, today)
	require.NoError(t, err)
	require.NotNil(t, d.Today)
	assert.Equal(t, 1000, d.Today.CaloriesConsumed)
	assert.Equal(t, 30, d.Today.Nutrients.ProteinG)
}

func TestDashboardReadsTodayWhenLaterDatesExist(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	onboard(t, s)

	_, err := s.AddMeal(ctx, uid, today, model.SlotDinner, model.MealInput{Name: "Pasta", Calories: f(800)})
	require.NoError(t, err)
	_, err = s.AddMeal(ctx, uid, "2026-03-02", model.SlotBreakfast, model.MealInput{Name: "Toast", Calories: f(100)})
	require.NoError(t, err)

	d, err := s.Dashboard(ctx, uid, today)
	require.NoError(t, err)
	require.NotNil(t, d.Today)
	assert.Equal(t, today, d.Today.Date)
	assert.Equal(t, 800, d.Today.CaloriesConsumed)
	require.NotNil(t, d.RemainingCalories)
	assert.Equal(t, 2629-800, *d.RemainingCalories)
	require.NotNil(t, d.Latest)
	assert.Equal(t, "2026-03-02", d.Latest.Date)
}

func TestRecomputeAcrossInstancesKeepsNewestTotals(t *testing.T) {
	ctx := context.Background()
	shared := memory.New()
	newInstance := func(store docstore.Store) *Service {
		q := keyqueue.New(keyqueue.Config{Shards: 2}, zerolog.Nop())
		t.Cleanup(q.Stop)
		return New(store, q, WithClock(func() time.Time { return fixedNow }), WithRetryPolicy(fastRetry))
	}
	// The first ledger read is the append, the second is the recompute.
	slow := &pausingStore{Store: shared, pauseAt: 2, reached: make(chan struct{}), resume: make(chan struct{})}
	a := newInstance(slow)
	b := newInstance(shared)

	done := make(chan MealResult, 1)
	go func() {
		res, err := a.AddMeal(ctx, uid, today, model.SlotBreakfast, model.MealInput{Name: "Oats", Calories: f(300)})
		assert.NoError(t, err)
		done <- res
	}()
	select {
	case <-slow.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("first instance never read the ledger for its recompute")
	}

	res, err := b.AddMeal(ctx, uid, today, model.SlotLunch, model.MealInput{Name: "Rice bowl", Calories: f(500)})
	require.NoError(t, err)
	require.NotNil(t, res.Totals)
	assert.Equal(t, 800, res.Totals.Calories)

	close(slow.resume)
	var late MealResult
	select {
	case late = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first instance did not finish")
	}
	assert.False(t, late.Stale())
	require.NotNil(t, late.Totals)
	assert.Equal(t, 800, late.Totals.Calories)

	snap, err := progress.Get(ctx, shared, uid, today)
	require.NoError(t, err)
	assert.Equal(t, 800, snap.CaloriesConsumed)
	day, err := b.Meals(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, 2, day.EntryCount())
	assert.Equal(t, day.Version, snap.LedgerVersion)
}

func TestDashboardBeforeOnboarding(t *testing.T) {
	s, _ := newService(t)
	d, err := s.Dashboard(context.Background(), uid, today)
	require.NoError(t, err)
	assert.Nil(t, d.Targets)
	assert.Nil(t, d.Today)
	assert.Nil(t, d.RemainingCalories)
}

func TestRecordWeightUpdatesProfileAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	onboard(t, s)

	res, err := s.RecordWeight(ctx, uid, "2026-03-02", 68.5)
	require.NoError(t, err)
	assert.Equal(t, 68.5, res.Profile.Biometrics.WeightKG)
	require.NotNil(t, res.Snapshot.WeightKG)
	assert.Equal(t, 68.5, *res.Snapshot.WeightKG)

	snaps, err := s.History(ctx, uid, today)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2026-03-02", snaps[0].Date)
}

func TestRecordMetricsAndChallenge(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	onboard(t, s)

	water := 2.0
	snap, err := s.RecordMetrics(ctx, uid, today, progress.MetricUpdate{WaterL: &water})
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.WaterL)

	c, err := s.CompleteChallengeDay(ctx, uid, today)
	require.NoError(t, err)
	assert.Equal(t, []string{today}, c.CompletedDays)
}
