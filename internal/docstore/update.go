package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lg/nutrition-tracker-api/internal/model"
)

var (
	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nutrition",
		Subsystem: "docstore",
		Name:      "update_conflicts_total",
		Help:      "Conditional writes that lost a race and were retried.",
	})
	exhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nutrition",
		Subsystem: "docstore",
		Name:      "update_retries_exhausted_total",
		Help:      "Read-modify-write cycles that gave up after the retry budget.",
	})
)

// ErrNoChange tells Update the mutator left the document as it was; nothing is
// written and Update returns nil.
var ErrNoChange = errors.New("docstore: no change")

// RetryPolicy bounds the optimistic read-modify-write loop.
type RetryPolicy struct {
	MaxRetries  int           `envconfig:"MAX_RETRIES"  default:"5"`
	BaseBackoff time.Duration `envconfig:"BASE_BACKOFF" default:"10ms"`
	MaxInterval time.Duration `envconfig:"MAX_INTERVAL" default:"250ms"`
}

// DefaultRetryPolicy mirrors the envconfig defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, BaseBackoff: 10 * time.Millisecond, MaxInterval: 250 * time.Millisecond}
}

// Mutator receives the current document, nil when absent, and returns the full
// replacement data.
type Mutator func(current *Document) (map[string]any, error)

// Update runs read, mutate, write-if-unchanged against path. A conflicting
// concurrent write restarts the whole cycle from a fresh read with exponential
// backoff; once policy.MaxRetries is spent the error matches both
// model.ErrStoreUnavailable and model.ErrConcurrencyConflict. Mutator errors and
// store errors other than conflicts are returned immediately.
func Update(ctx context.Context, s Store, path string, policy RetryPolicy, fn Mutator) error {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	exp := backoff.NewExponentialBackOff()
	if policy.BaseBackoff > 0 {
		exp.InitialInterval = policy.BaseBackoff
	}
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(policy.MaxRetries)), ctx)

	attempts := 0
	op := func() error {
		attempts++
		current, err := s.Get(ctx, path)
		var version int64
		switch {
		case err == nil:
			version = current.Version
		case errors.Is(err, model.ErrNotFound):
			current = nil
		default:
			return backoff.Permanent(err)
		}

		data, err := fn(current)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		if _, err := s.SetIfVersion(ctx, path, data, version); err != nil {
			if errors.Is(err, model.ErrConcurrencyConflict) {
				conflictsTotal.Inc()
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(op, b)
	if err != nil && errors.Is(err, model.ErrConcurrencyConflict) {
		exhaustedTotal.Inc()
		return fmt.Errorf("%w: %s: gave up after %d attempts: %w", model.ErrStoreUnavailable, path, attempts, err)
	}
	return err
}
