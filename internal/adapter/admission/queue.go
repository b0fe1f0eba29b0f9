package admission

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paddockhq/paddock/internal/core/domain"
)

// ewmaWeight is the divisor of the moving averages: each new sample moves
// the average by 1/8th of its distance.
const ewmaWeight = 8

// errQueueRetired signals that acquire raced a Reset that removed this queue
// from the controller's map. The controller retries on a fresh queue.
var errQueueRetired = errors.New("model queue retired")

// waiter is one parked acquire call. ready is closed by whoever hands it a
// slot; the slot is already accounted to the waiter at that point.
type waiter struct {
	ready      chan struct{}
	enqueuedAt time.Time
}

// modelQueue is the admission state of one model: a slot count and a FIFO
// list of waiters. The mutex guards slots, waiters and limits; the counters
// are atomics so stats reads never contend with admissions.
type modelQueue struct {
	model string

	mu       sync.Mutex
	limits   domain.QueueLimits
	inFlight int
	waiters  *list.List
	retired  bool

	admitted  atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	cancelled atomic.Int64

	avgWaitMs    atomic.Int64
	avgProcessMs atomic.Int64
}

func newModelQueue(model string, limits domain.QueueLimits) *modelQueue {
	return &modelQueue{
		model:   model,
		limits:  limits,
		waiters: list.New(),
	}
}

func (q *modelQueue) acquire(ctx context.Context) (*ticket, error) {
	q.mu.Lock()
	if q.retired {
		q.mu.Unlock()
		return nil, errQueueRetired
	}

	if q.inFlight < q.limits.ParallelLimit {
		q.inFlight++
		q.mu.Unlock()
		q.admitted.Add(1)
		return &ticket{queue: q, acquiredAt: time.Now()}, nil
	}

	if q.waiters.Len() >= q.limits.QueueLimit {
		q.mu.Unlock()
		q.rejected.Add(1)
		return nil, domain.ErrQueueFull
	}

	w := &waiter{ready: make(chan struct{}), enqueuedAt: time.Now()}
	elem := q.waiters.PushBack(w)
	q.mu.Unlock()

	select {
	case <-w.ready:
		q.admitted.Add(1)
		recordSample(&q.avgWaitMs, time.Since(w.enqueuedAt))
		return &ticket{queue: q, acquiredAt: time.Now()}, nil

	case <-ctx.Done():
		q.mu.Lock()
		select {
		case <-w.ready:
			// Woken and cancelled in the same instant. The slot handed to
			// us moves on to the next waiter.
			q.wakeOrDecrementLocked()
		default:
			q.waiters.Remove(elem)
		}
		q.mu.Unlock()
		q.cancelled.Add(1)
		return nil, ctx.Err()
	}
}

func (q *modelQueue) release(acquiredAt time.Time) {
	q.completed.Add(1)
	recordSample(&q.avgProcessMs, time.Since(acquiredAt))

	q.mu.Lock()
	q.wakeOrDecrementLocked()
	q.mu.Unlock()
}

// wakeOrDecrementLocked hands a freed slot to the head waiter, or returns it
// to the pool when nobody waits. Callers hold q.mu.
func (q *modelQueue) wakeOrDecrementLocked() {
	if elem := q.waiters.Front(); elem != nil {
		q.waiters.Remove(elem)
		close(elem.Value.(*waiter).ready)
		return
	}
	q.inFlight--
}

// setLimits swaps the queue's limits and wakes waiters that now fit. Waiters
// beyond a shrunk queue limit keep their place; the new bound applies to new
// arrivals only.
func (q *modelQueue) setLimits(limits domain.QueueLimits) {
	q.mu.Lock()
	q.limits = limits
	for q.inFlight < q.limits.ParallelLimit {
		elem := q.waiters.Front()
		if elem == nil {
			break
		}
		q.waiters.Remove(elem)
		q.inFlight++
		close(elem.Value.(*waiter).ready)
	}
	q.mu.Unlock()
}

func (q *modelQueue) snapshotLimits() domain.QueueLimits {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limits
}

// tryRetire marks an idle queue dead so a racing acquire re-fetches from the
// controller instead of admitting into an unmapped queue.
func (q *modelQueue) tryRetire() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight == 0 && q.waiters.Len() == 0 {
		q.retired = true
		return true
	}
	return false
}

func (q *modelQueue) resetCounters() {
	q.admitted.Store(0)
	q.completed.Store(0)
	q.rejected.Store(0)
	q.cancelled.Store(0)
	q.avgWaitMs.Store(0)
	q.avgProcessMs.Store(0)
}

func (q *modelQueue) stats() domain.ModelQueueStats {
	q.mu.Lock()
	inFlight := q.inFlight
	waiting := q.waiters.Len()
	limits := q.limits
	q.mu.Unlock()

	return domain.ModelQueueStats{
		Model:          q.model,
		InFlight:       int64(inFlight),
		Waiting:        int64(waiting),
		ParallelLimit:  limits.ParallelLimit,
		QueueLimit:     limits.QueueLimit,
		TotalAdmitted:  q.admitted.Load(),
		TotalCompleted: q.completed.Load(),
		TotalRejected:  q.rejected.Load(),
		TotalCancelled: q.cancelled.Load(),
		AvgWaitMs:      q.avgWaitMs.Load(),
		AvgProcessMs:   q.avgProcessMs.Load(),
	}
}

// ticket is one admitted slot. The sync.Once makes Release safe to call from
// both the happy path and error paths.
type ticket struct {
	queue      *modelQueue
	acquiredAt time.Time
	once       sync.Once
}

func (t *ticket) Model() string { return t.queue.model }

func (t *ticket) Release() {
	t.once.Do(func() {
		t.queue.release(t.acquiredAt)
	})
}

// recordSample folds a duration into an integer EWMA kept in milliseconds.
// The nudge keeps small deltas moving where integer division would stall.
func recordSample(store *atomic.Int64, d time.Duration) {
	ms := d.Milliseconds()
	for {
		current := store.Load()
		if current == 0 {
			if store.CompareAndSwap(0, ms) {
				return
			}
			continue
		}

		next := current + (ms-current)/ewmaWeight
		if next == current && ms != current {
			if ms > current {
				next++
			} else {
				next--
			}
		}
		if store.CompareAndSwap(current, next) {
			return
		}
	}
}
