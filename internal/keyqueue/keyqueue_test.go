package keyqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newQueue(cfg Config) *Queue {
	return New(cfg, zerolog.Nop())
}

// blockShard occupies key's shard until the returned func is called.
func blockShard(t *testing.T, q *Queue, key string) (release func()) {
	t.Helper()
	started := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = q.Do(context.Background(), key, func(context.Context) error {
			close(started)
			<-unblock
			return nil
		})
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("blocking job never started")
	}
	return func() { close(unblock) }
}

func waitForDepth(t *testing.T, q *Queue, key string, depth int) {
	t.Helper()
	ch := q.queues[q.shardFor(key)]
	deadline := time.Now().Add(time.Second)
	for len(ch) < depth {
		if time.Now().After(deadline) {
			t.Fatalf("queue depth %d, want %d", len(ch), depth)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDoReturnsJobError(t *testing.T) {
	q := newQueue(Config{})
	defer q.Stop()

	want := errors.New("boom")
	if err := q.Do(context.Background(), "u1/2026-03-01", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
	if err := q.Do(context.Background(), "u1/2026-03-01", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFIFOPerKey(t *testing.T) {
	q := newQueue(Config{Shards: 4, QueueSize: 16})
	defer q.Stop()
	const key = "u1/2026-03-01"

	release := blockShard(t, q, key)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		v := i
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), key, func(context.Context) error {
				mu.Lock()
				order = append(order, v)
				mu.Unlock()
				return nil
			})
		}()
		waitForDepth(t, q, key, i+1)
	}
	release()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("ran %d jobs, want 5", len(order))
	}
}

func TestSameKeyNeverOverlaps(t *testing.T) {
	q := newQueue(Config{Shards: 4, QueueSize: 64})
	defer q.Stop()

	var inFlight, maxInFlight, total int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), "u1/2026-03-01", func(context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(100 * time.Microsecond)
				atomic.AddInt32(&total, 1)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("max concurrent jobs for one key = %d, want 1", maxInFlight)
	}
	if total != 50 {
		t.Fatalf("ran %d jobs, want 50", total)
	}
}

func TestQueueFull(t *testing.T) {
	q := newQueue(Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond})
	defer q.Stop()

	release := blockShard(t, q, "k")
	defer release()

	go func() { _ = q.Do(context.Background(), "k", func(context.Context) error { return nil }) }()
	waitForDepth(t, q, "k", 1)

	err := q.Do(context.Background(), "k", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("got %v, want ErrQueueFull", err)
	}
	var full *QueueFullError
	if !errors.As(err, &full) || full.Capacity != 1 {
		t.Fatalf("got %#v, want QueueFullError with capacity 1", err)
	}
}

func TestCanceledJobIsSkipped(t *testing.T) {
	q := newQueue(Config{Shards: 1, QueueSize: 4})
	defer q.Stop()

	release := blockShard(t, q, "k")

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errc := make(chan error, 1)
	go func() {
		errc <- q.Do(ctx, "k", func(context.Context) error { ran.Store(true); return nil })
	}()
	waitForDepth(t, q, "k", 1)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	release()

	// A barrier on the same shard guarantees the canceled job was dequeued.
	if err := q.Do(context.Background(), "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if ran.Load() {
		t.Fatal("canceled job ran")
	}
}

func TestCancelAfterStartReturnsJobResult(t *testing.T) {
	q := newQueue(Config{Shards: 1})
	defer q.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	var finished atomic.Bool
	err := q.Do(ctx, "k", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		// the write this job stands for has already landed
		finished.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("got %v, want the job's nil result", err)
	}
	if !finished.Load() {
		t.Fatal("Do returned before the job finished")
	}
}

func TestCancelAfterStartReturnsJobError(t *testing.T) {
	q := newQueue(Config{Shards: 1})
	defer q.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	want := errors.New("write failed")
	err := q.Do(ctx, "k", func(ctx context.Context) error {
		cancel()
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("got %v, want %v", err, want)
	}
}

func TestPanicIsReportedAndShardSurvives(t *testing.T) {
	q := newQueue(Config{Shards: 1})
	defer q.Stop()

	err := q.Do(context.Background(), "k", func(context.Context) error { panic("job panic") })
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("got %v, want ErrPanicked", err)
	}
	if err := q.Do(context.Background(), "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("shard did not survive panic: %v", err)
	}
}

func TestStopDrainsAndRejects(t *testing.T) {
	q := newQueue(Config{Shards: 1, QueueSize: 8})
	release := blockShard(t, q, "k")

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), "k", func(context.Context) error { ran.Add(1); return nil })
		}()
		waitForDepth(t, q, "k", i+1)
	}

	stopped := make(chan struct{})
	go func() { q.Stop(); close(stopped) }()
	release()
	<-stopped
	wg.Wait()

	if ran.Load() != 3 {
		t.Fatalf("drained %d jobs, want 3", ran.Load())
	}
	if err := q.Do(context.Background(), "k", func(context.Context) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
	q.Stop()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Shards != 8 || cfg.QueueSize != 128 || cfg.EnqueueTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
