// Package keyqueue runs work for the same key one job at a time, in submission
// order, while different keys proceed in parallel on other shards. The tracker
// routes every meal mutation for a (user, date) through it so a process never
// races itself on one ledger document.
package keyqueue

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	state *atomic.Int32
	done  chan error // buffered, written exactly once
}

// Queue partitions keys over shard workers by a stable hash. Jobs in a shard
// run FIFO.
type Queue struct {
	cfg    Config
	queues []chan job

	done   chan struct{} // closed in Stop()
	closed atomic.Bool

	wg  sync.WaitGroup
	log zerolog.Logger
}

// New starts the shard workers.
func New(cfg Config, log zerolog.Logger) *Queue {
	cfg = cfg.withDefaults()
	q := &Queue{
		cfg:    cfg,
		queues: make([]chan job, cfg.Shards),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "keyqueue").Logger(),
	}
	for i := 0; i < cfg.Shards; i++ {
		ch := make(chan job, cfg.QueueSize)
		q.queues[i] = ch
		q.wg.Add(1)
		go q.runWorker(i, ch)
	}
	return q
}

// Do runs fn on key's shard and waits for it to finish.
//
//   - Returns fn's error.
//   - Returns ErrClosed if the queue is stopped.
//   - Returns ErrQueueFull (as *QueueFullError) if the shard stays full for
//     EnqueueTimeout.
//   - Returns ctx.Err() if ctx ends while the job is still queued; the job is
//     then skipped. Once fn has started, Do waits for it and returns its
//     result, so a caller never abandons work that may already be committed.
func (q *Queue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, state: new(atomic.Int32), done: make(chan error, 1)}
	if err := q.submit(ctx, key, j); err != nil {
		return err
	}
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobAbandoned) {
			return ctx.Err()
		}
		return <-j.done
	}
}

func (q *Queue) submit(ctx context.Context, key string, j job) error {
	if q.closed.Load() {
		return ErrClosed
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	shard := q.shardFor(key)
	ch := q.queues[shard]

	timer := time.NewTimer(q.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case ch <- j:
		submissionsTotal.WithLabelValues(labelFor(shard)).Inc()
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		queueFullTotal.WithLabelValues(labelFor(shard)).Inc()
		return &QueueFullError{Shard: shard, Length: len(ch), Capacity: cap(ch)}
	}
}

// Stop rejects new work, lets every shard drain what is already queued and
// waits for the workers to exit. It is idempotent.
func (q *Queue) Stop() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	q.log.Info().Int("shards", q.cfg.Shards).Msg("stopping, draining shards")
	close(q.done)
	q.wg.Wait()
	q.log.Info().Msg("stopped")
}

func (q *Queue) runWorker(idx int, ch <-chan job) {
	defer q.wg.Done()
	label := labelFor(idx)

	for {
		select {
		case j := <-ch:
			q.run(label, j)
			queueDepth.WithLabelValues(label).Set(float64(len(ch)))

		case <-q.done:
			drained := 0
			for {
				select {
				case j := <-ch:
					q.run(label, j)
					drained++
				default:
					if drained > 0 {
						q.log.Info().Int("shard", idx).Int("jobs", drained).Msg("drained")
					}
					queueDepth.WithLabelValues(label).Set(0)
					return
				}
			}
		}
	}
}

func (q *Queue) run(label string, j job) {
	if !j.state.CompareAndSwap(jobQueued, jobRunning) {
		return
	}
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	start := time.Now()
	err := q.safeRun(j)
	runDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	j.done <- err
}

// safeRun keeps a panicking job from taking its shard worker down.
func (q *Queue) safeRun(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("job panicked")
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return j.fn(j.ctx)
}

func (q *Queue) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(q.cfg.Shards))
}
