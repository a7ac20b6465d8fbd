package keyqueue

import (
	"errors"
	"fmt"
)

// ErrQueueFull reports back-pressure: the shard stayed full for the whole
// enqueue timeout.
var ErrQueueFull = errors.New("key queue full")

// ErrClosed reports that Stop has been called.
var ErrClosed = errors.New("key queue closed")

// ErrPanicked wraps a panic recovered from a job.
var ErrPanicked = errors.New("key queue job panicked")

// QueueFullError carries diagnostics while satisfying errors.Is(_, ErrQueueFull).
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("key queue shard %d full (len=%d cap=%d)", e.Shard, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
