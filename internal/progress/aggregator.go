package progress

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/model"
	"lg/nutrition-tracker-api/internal/nutrition"
)

var (
	recomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nutrition",
		Subsystem: "progress",
		Name:      "recomputes_total",
		Help:      "Daily total recomputations by outcome (written, unchanged, failed).",
	}, []string{"outcome"})
)

// LedgerReader is the part of the meal ledger the aggregator needs.
type LedgerReader interface {
	Get(ctx context.Context, uid, date string) (model.DailyLedger, error)
}

// Aggregator rebuilds a day's nutrient totals from its meal ledger.
type Aggregator struct {
	store  docstore.Store
	ledger LedgerReader
	retry  docstore.RetryPolicy
	now    func() time.Time
	log    zerolog.Logger
}

func NewAggregator(store docstore.Store, ledger LedgerReader, retry docstore.RetryPolicy, now func() time.Time, log zerolog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:  store,
		ledger: ledger,
		retry:  retry,
		now:    now,
		log:    log.With().Str("component", "aggregator").Logger(),
	}
}

// Sum adds up every entry in every slot and rounds each total once.
func Sum(day model.DailyLedger) model.DayTotals {
	var cal, p, c, f float64
	for _, entries := range day.Meals {
		for _, e := range entries {
			cal += e.Calories
			p += e.ProteinG
			c += e.CarbsG
			f += e.FatG
		}
	}
	return model.DayTotals{
		Calories: nutrition.Round(cal),
		ProteinG: nutrition.Round(p),
		CarbsG:   nutrition.Round(c),
		FatG:     nutrition.Round(f),
	}
}

// Recompute sums the ledger for (uid, date) and merges the totals into that
// day's snapshot, leaving weight, water, sleep and training untouched. The
// snapshot records the ledger version the totals came from; a snapshot already
// built from the same or a newer ledger version is left alone, so a slow
// recompute in another process cannot overwrite fresher totals.
func (a *Aggregator) Recompute(ctx context.Context, uid, date string) (model.DayTotals, error) {
	totals, err := a.recompute(ctx, uid, date)
	if err != nil {
		recomputesTotal.WithLabelValues("failed").Inc()
	}
	return totals, err
}

func (a *Aggregator) recompute(ctx context.Context, uid, date string) (model.DayTotals, error) {
	if err := model.ValidateDate(date); err != nil {
		return model.DayTotals{}, err
	}
	day, err := a.ledger.Get(ctx, uid, date)
	if err != nil {
		return model.DayTotals{}, err
	}
	totals := Sum(day)

	result, written := totals, false
	err = docstore.Update(ctx, a.store, Path(uid, date), a.retry, func(current *docstore.Document) (map[string]any, error) {
		result, written = totals, false
		data := map[string]any{}
		if current != nil {
			snap, err := decode(current)
			if err != nil {
				return nil, err
			}
			switch {
			case snap.LedgerVersion > day.Version:
				result = snap.Totals()
				return nil, docstore.ErrNoChange
			case snap.LedgerVersion == day.Version && snap.Totals() == totals:
				return nil, docstore.ErrNoChange
			}
			for k, v := range current.Data {
				data[k] = v
			}
		}
		data[fieldDate] = date
		data[fieldCaloriesConsumed] = totals.Calories
		data[fieldNutrients] = map[string]any{
			"protein_g": totals.ProteinG,
			"carbs_g":   totals.CarbsG,
			"fat_g":     totals.FatG,
		}
		data[fieldLedgerVersion] = day.Version
		data[fieldUpdatedAt] = a.now().UTC()
		written = true
		return data, nil
	})
	if err != nil {
		return model.DayTotals{}, err
	}
	if !written {
		recomputesTotal.WithLabelValues("unchanged").Inc()
		return result, nil
	}
	recomputesTotal.WithLabelValues("written").Inc()
	a.log.Debug().Str("user_id", uid).Str("date", date).Int("calories", totals.Calories).Int64("ledger_version", day.Version).Msg("daily totals written")
	return totals, nil
}
