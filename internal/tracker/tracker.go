// Package tracker is the engine's entry point for the HTTP handlers and the
// operator CLI. It sequences the profile, ledger, aggregator and progress
// components and owns the per-(user, date) serialization of writes.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/keyqueue"
	"lg/nutrition-tracker-api/internal/ledger"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/profile"
	"lg/nutrition-tracker-api/internal/progress"
)

type Service struct {
	store    docstore.Store
	profiles *profile.Service
	ledger   *ledger.Ledger
	agg      *progress.Aggregator
	metrics  *progress.Metrics
	history  *progress.History
	queue    *keyqueue.Queue
	log      zerolog.Logger
}

type options struct {
	now   func() time.Time
	retry docstore.RetryPolicy
	log   zerolog.Logger
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithRetryPolicy(p docstore.RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New builds the engine on store. queue serializes writes per (user, date);
// the caller owns it and stops it on shutdown.
func New(store docstore.Store, queue *keyqueue.Queue, opts ...Option) *Service {
	o := options{now: time.Now, retry: docstore.DefaultRetryPolicy(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	l := ledger.New(store, ledger.WithClock(o.now), ledger.WithRetryPolicy(o.retry), ledger.WithLogger(o.log))
	return &Service{
		store:    store,
		profiles: profile.New(store, o.retry, o.now, o.log),
		ledger:   l,
		agg:      progress.NewAggregator(store, l, o.retry, o.now, o.log),
		metrics:  progress.NewMetrics(store, o.now),
		history:  progress.NewHistory(store),
		queue:    queue,
		log:      o.log.With().Str("component", "tracker").Logger(),
	}
}

// Profiles exposes profile reads and registration.
func (s *Service) Profiles() *profile.Service {
	return s.profiles
}

func dayKey(uid, date string) string {
	return uid + "/" + date
}

// Onboard applies the questionnaire and opens today's snapshot. The profile
// write is the operation; a failure to create the snapshot is only logged
// since the first metric or meal write creates it anyway.
func (s *Service) Onboard(ctx context.Context, uid, today string, in profile.OnboardingInput) (model.Profile, error) {
	p, err := s.profiles.ApplyOnboarding(ctx, uid, in, today)
	if err != nil {
		return model.Profile{}, err
	}
	err = s.queue.Do(ctx, dayKey(uid, today), func(ctx context.Context) error {
		_, err := s.metrics.EnsureDay(ctx, uid, today)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", uid).Str("date", today).Msg("could not open today's snapshot")
	}
	return p, nil
}

// MealResult separates the meal mutation, which succeeded, from the follow-up
// recompute of the day's totals, which may not have.
type MealResult struct {
	Entry  *model.MealEntry `json:"entry,omitempty"`
	Totals *model.DayTotals `json:"totals"`
	// AggregationErr is set when the totals could not be refreshed. The
	// snapshot is stale until the next mutation or reconciliation pass.
	AggregationErr error `json:"-"`
}

// Stale reports whether the day's totals lag the ledger.
func (r MealResult) Stale() bool {
	return r.AggregationErr != nil
}

// AddMeal appends a meal and refreshes the day's totals. Ledger errors are
// returned; aggregation errors only land in MealResult.AggregationErr.
func (s *Service) AddMeal(ctx context.Context, uid, date string, slot model.Slot, in model.MealInput) (MealResult, error) {
	var res MealResult
	err := s.queue.Do(ctx, dayKey(uid, date), func(ctx context.Context) error {
		entry, err := s.ledger.Append(ctx, uid, date, slot, in)
		if err != nil {
			return err
		}
		res.Entry = &entry
		res.Totals, res.AggregationErr = s.recompute(ctx, uid, date)
		return nil
	})
	if err != nil {
		return MealResult{}, err
	}
	return res, nil
}

// RemoveMeal removes a meal (a missing id is not an error) and refreshes the
// day's totals.
func (s *Service) RemoveMeal(ctx context.Context, uid, date string, slot model.Slot, id string) (MealResult, error) {
	var res MealResult
	err := s.queue.Do(ctx, dayKey(uid, date), func(ctx context.Context) error {
		if err := s.ledger.Remove(ctx, uid, date, slot, id); err != nil {
			return err
		}
		res.Totals, res.AggregationErr = s.recompute(ctx, uid, date)
		return nil
	})
	if err != nil {
		return MealResult{}, err
	}
	return res, nil
}

// Recompute refreshes the day's totals in line with that day's meal writes.
// Reconciliation goes through here so it cannot overwrite newer totals with
// ones computed from an older ledger.
func (s *Service) Recompute(ctx context.Context, uid, date string) (model.DayTotals, error) {
	var totals model.DayTotals
	err := s.queue.Do(ctx, dayKey(uid, date), func(ctx context.Context) error {
		var err error
		totals, err = s.agg.Recompute(ctx, uid, date)
		return err
	})
	return totals, err
}

func (s *Service) recompute(ctx context.Context, uid, date string) (*model.DayTotals, error) {
	totals, err := s.agg.Recompute(ctx, uid, date)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", uid).Str("date", date).Msg("recompute daily totals")
		return nil, err
	}
	return &totals, nil
}

func (s *Service) Meals(ctx context.Context, uid, date string) (model.DailyLedger, error) {
	return s.ledger.Get(ctx, uid, date)
}

// Dashboard is the home screen: targets, today's progress and the challenge.
type Dashboard struct {
	Date              string           `json:"date"`
	Targets           *model.Targets   `json:"targets"`
	Today             *model.Snapshot  `json:"today"`
	Latest            *model.Snapshot  `json:"latest"`
	RemainingCalories *int             `json:"remaining_calories"`
	Challenge         *model.Challenge `json:"challenge"`
}

// Dashboard combines the profile targets with the snapshot stored for today,
// which may be absent even when later dates have one.
func (s *Service) Dashboard(ctx context.Context, uid, today string) (Dashboard, error) {
	if err := model.ValidateDate(today); err != nil {
		return Dashboard{}, err
	}
	p, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return Dashboard{}, err
	}
	latest, err := s.history.Latest(ctx, uid)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{Date: today, Targets: p.Targets, Latest: latest, Challenge: p.Challenge}
	snap, err := progress.Get(ctx, s.store, uid, today)
	switch {
	case err == nil:
		d.Today = &snap
	case !errors.Is(err, model.ErrNotFound):
		return Dashboard{}, err
	}
	if d.Targets != nil {
		consumed := 0
		if d.Today != nil {
			consumed = d.Today.CaloriesConsumed
		}
		remaining := d.Targets.Calories - consumed
		d.RemainingCalories = &remaining
	}
	return d, nil
}

// History returns snapshots from since through the newest, newest first.
func (s *Service) History(ctx context.Context, uid, since string) ([]model.Snapshot, error) {
	return s.history.Window(ctx, uid, since)
}

func (s *Service) RecordMetrics(ctx context.Context, uid, date string, u progress.MetricUpdate) (model.Snapshot, error) {
	var snap model.Snapshot
	err := s.queue.Do(ctx, dayKey(uid, date), func(ctx context.Context) error {
		var err error
		snap, err = s.metrics.Record(ctx, uid, date, u)
		return err
	})
	return snap, err
}

// WeightResult is returned by RecordWeight.
type WeightResult struct {
	Profile  model.Profile  `json:"profile"`
	Snapshot model.Snapshot `json:"snapshot"`
}

// RecordWeight stores a weigh-in on the profile, which moves BMI and targets,
// and on the day's snapshot for the weight trend.
func (s *Service) RecordWeight(ctx context.Context, uid, date string, weightKG float64) (WeightResult, error) {
	if err := model.ValidateDate(date); err != nil {
		return WeightResult{}, err
	}
	p, err := s.profiles.RecordWeight(ctx, uid, weightKG)
	if err != nil {
		return WeightResult{}, err
	}
	snap, err := s.RecordMetrics(ctx, uid, date, progress.MetricUpdate{WeightKG: &weightKG})
	if err != nil {
		return WeightResult{}, err
	}
	return WeightResult{Profile: p, Snapshot: snap}, nil
}

func (s *Service) CompleteChallengeDay(ctx context.Context, uid, date string) (model.Challenge, error) {
	return s.profiles.CompleteChallengeDay(ctx, uid, date)
}
