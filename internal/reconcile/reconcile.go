// Package reconcile re-runs daily aggregation over recent ledgers so totals
// left stale by a failed recompute converge.
package reconcile

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"lg/nutrition-tracker-api/internal/docstore"
	"lg/nutrition-tracker-api/internal/ledger"
	"lg/nutrition-tracker-api/internal/model"
)

var daysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "nutrition",
	Subsystem: "reconcile",
	Name:      "days_total",
	Help:      "Ledger days visited by reconciliation, by outcome.",
}, []string{"outcome"})

// Recomputer is the daily aggregator.
type Recomputer interface {
	Recompute(ctx context.Context, uid, date string) (model.DayTotals, error)
}

// Report summarises one pass.
type Report struct {
	Since    string        `json:"since"`
	Users    int           `json:"users"`
	Days     int           `json:"days"`
	Failures int           `json:"failures"`
	Elapsed  time.Duration `json:"elapsed"`
}

type Reconciler struct {
	store docstore.Store
	agg   Recomputer
	log   zerolog.Logger
}

func New(store docstore.Store, agg Recomputer, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, agg: agg, log: log.With().Str("component", "reconcile").Logger()}
}

// Run recomputes every ledger dated on or after since for every user. A day
// that fails is logged and counted; the pass carries on. Only listing errors
// and context cancellation end it early.
func (r *Reconciler) Run(ctx context.Context, since string) (Report, error) {
	start := time.Now()
	rep := Report{Since: since}
	if err := model.ValidateDate(since); err != nil {
		return rep, err
	}

	users, err := r.store.Query(ctx, "users", docstore.Query{})
	if err != nil {
		return rep, err
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Users++
		days, err := r.store.Query(ctx, ledger.Collection(u.Key), docstore.Query{
			Filters: []docstore.Filter{{Field: docstore.KeyField, Op: docstore.OpGTE, Value: since}},
		})
		if err != nil {
			return rep, err
		}
		for _, d := range days {
			rep.Days++
			if _, err := r.agg.Recompute(ctx, u.Key, d.Key); err != nil {
				rep.Failures++
				daysTotal.WithLabelValues("failed").Inc()
				r.log.Error().Err(err).Str("user_id", u.Key).Str("date", d.Key).Msg("recompute failed")
				continue
			}
			daysTotal.WithLabelValues("ok").Inc()
		}
	}
	rep.Elapsed = time.Since(start)
	r.log.Info().Str("since", since).Int("users", rep.Users).Int("days", rep.Days).Int("failures", rep.Failures).
		Dur("elapsed", rep.Elapsed).Msg("reconciliation finished")
	return rep, nil
}
