package progress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
)

// defaultEnergy is the mid-scale energy a fresh day starts with.
const defaultEnergy = 5

// MetricUpdate carries the directly recorded day metrics. Nil fields are left
// as stored.
type MetricUpdate struct {
	WaterL             *float64 `json:"water_l"`
	SleepHours         *float64 `json:"sleep_hours"`
	TrainingMinutes    *int     `json:"training_minutes"`
	CaloriesBurned     *int     `json:"calories_burned"`
	ExercisesCompleted *int     `json:"exercises_completed"`
	Energy             *int     `json:"energy"`
	WeightKG           *float64 `json:"weight_kg"`
}

// Fields validates u and returns the snapshot fields it sets.
func (u MetricUpdate) Fields() (map[string]any, error) {
	fields := map[string]any{}
	if u.WaterL != nil {
		if !nonNegative(*u.WaterL) {
			return nil, fmt.Errorf("%w: water_l must be >= 0", model.ErrInvalidMetric)
		}
		fields["water_l"] = *u.WaterL
	}
	if u.SleepHours != nil {
		if !nonNegative(*u.SleepHours) || *u.SleepHours > 24 {
			return nil, fmt.Errorf("%w: sleep_hours must be between 0 and 24", model.ErrInvalidMetric)
		}
		fields["sleep_hours"] = *u.SleepHours
	}
	ints := []struct {
		name string
		v    *int
	}{
		{"training_minutes", u.TrainingMinutes},
		{"calories_burned", u.CaloriesBurned},
		{"exercises_completed", u.ExercisesCompleted},
	}
	for _, f := range ints {
		if f.v == nil {
			continue
		}
		if *f.v < 0 {
			return nil, fmt.Errorf("%w: %s must be >= 0", model.ErrInvalidMetric, f.name)
		}
		fields[f.name] = *f.v
	}
	if u.Energy != nil {
		if *u.Energy < 1 || *u.Energy > 10 {
			return nil, fmt.Errorf("%w: energy must be between 1 and 10", model.ErrInvalidMetric)
		}
		fields["energy"] = *u.Energy
	}
	if u.WeightKG != nil {
		if !nonNegative(*u.WeightKG) || *u.WeightKG == 0 {
			return nil, fmt.Errorf("%w: weight_kg must be greater than 0", model.ErrInvalidMetric)
		}
		fields["weight_kg"] = *u.WeightKG
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no metrics provided", model.ErrInvalidMetric)
	}
	return fields, nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Metrics writes the non-nutrition snapshot fields.
type Metrics struct {
	store docstore.Store
	now   func() time.Time
}

func NewMetrics(store docstore.Store, now func() time.Time) *Metrics {
	if now == nil {
		now = time.Now
	}
	return &Metrics{store: store, now: now}
}

// Record merges u into the snapshot for (uid, date), creating it if needed.
// Nutrient totals are never touched.
func (m *Metrics) Record(ctx context.Context, uid, date string, u MetricUpdate) (model.Snapshot, error) {
	if err := model.ValidateDate(date); err != nil {
		return model.Snapshot{}, err
	}
	fields, err := u.Fields()
	if err != nil {
		return model.Snapshot{}, err
	}
	fields[fieldDate] = date
	fields[fieldUpdatedAt] = m.now().UTC()
	if err := m.store.Set(ctx, Path(uid, date), fields, true); err != nil {
		return model.Snapshot{}, err
	}
	return Get(ctx, m.store, uid, date)
}

// EnsureDay creates a zeroed snapshot for (uid, date) unless one exists and
// reports whether it did. Existing totals and metrics are never reset.
func (m *Metrics) EnsureDay(ctx context.Context, uid, date string) (bool, error) {
	if err := model.ValidateDate(date); err != nil {
		return false, err
	}
	now := m.now().UTC()
	data, err := docstore.Encode(model.Snapshot{Date: date, Energy: defaultEnergy, UpdatedAt: &now})
	if err != nil {
		return false, err
	}
	_, err = m.store.SetIfVersion(ctx, Path(uid, date), data, 0)
	if errors.Is(err, model.ErrConcurrencyConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
