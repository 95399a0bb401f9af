// Package queue implements the per-fund signal queues sitting between the
// strategies and the execution coordinator. Each fund has a FIFO of queued
// signals; a signal becomes executable once its execute-at time has passed,
// which is how the anti-front-running delay is enforced.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

// DefaultCapacity is the soft per-fund overflow guard.
const DefaultCapacity = 10_000

// SignalQueue is a bounded mapping of FIFO queues keyed by fund id.
// Multi-producer, single-consumer per fund; enqueue order is preserved even
// across concurrent producers.
type SignalQueue struct {
	mu       sync.Mutex
	perFund  map[string][]domain.QueuedSignal
	capacity int
	dropped  atomic.Int64
}

// New creates a SignalQueue. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *SignalQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SignalQueue{
		perFund:  make(map[string][]domain.QueuedSignal),
		capacity: capacity,
	}
}

// Enqueue appends a signal to its fund's queue with
// execute-at = now + delay. On overflow the new signal is dropped and
// domain.ErrQueueFull is returned.
func (q *SignalQueue) Enqueue(sig domain.Signal, now time.Time, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.perFund[sig.FundID]
	if len(pending) >= q.capacity {
		q.dropped.Add(1)
		return domain.ErrQueueFull
	}
	q.perFund[sig.FundID] = append(pending, domain.QueuedSignal{
		Signal:    sig,
		ExecuteAt: now.Add(delay),
	})
	return nil
}

// DrainDue removes and returns every head element of the fund's queue whose
// execute-at is at or before now. Later elements stay queued even if due, so
// FIFO order is never violated by a mixed-delay producer.
func (q *SignalQueue) DrainDue(fundID string, now time.Time) []domain.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.perFund[fundID]
	n := 0
	for n < len(pending) && !pending[n].ExecuteAt.After(now) {
		n++
	}
	if n == 0 {
		return nil
	}

	due := make([]domain.Signal, n)
	for i := 0; i < n; i++ {
		due[i] = pending[i].Signal
	}
	rest := pending[n:]
	if len(rest) == 0 {
		delete(q.perFund, fundID)
	} else {
		q.perFund[fundID] = append([]domain.QueuedSignal(nil), rest...)
	}
	return due
}

// Pending returns the number of queued signals for a fund.
func (q *SignalQueue) Pending(fundID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.perFund[fundID])
}

// Dropped returns the total number of signals dropped on overflow.
func (q *SignalQueue) Dropped() int64 { return q.dropped.Load() }
