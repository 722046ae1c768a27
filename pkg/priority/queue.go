package priority

import (
	"sync/atomic"
)

type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
	Dropped  int64
}

// Queue is a bounded two-lane queue. High items are served first, but after
// fairness consecutive high pops a waiting low item is served. Push is safe
// from any goroutine; Pop must be called from a single consumer.
type Queue[T any] struct {
	high     chan T
	low      chan T
	fairness int
	streak   int

	highPush atomic.Int64
	lowPush  atomic.Int64
	highPop  atomic.Int64
	lowPop   atomic.Int64
	dropped  atomic.Int64
}

func New[T any](highCap, lowCap, fairness int) *Queue[T] {
	if fairness <= 0 {
		fairness = 3
	}
	return &Queue[T]{
		high:     make(chan T, highCap),
		low:      make(chan T, lowCap),
		fairness: fairness,
	}
}

func (q *Queue[T]) TryPushHigh(v T) bool {
	select {
	case q.high <- v:
		q.highPush.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *Queue[T]) TryPushLow(v T) bool {
	select {
	case q.low <- v:
		q.lowPush.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop blocks until an item is available. Once done is closed it keeps
// returning queued items and reports false when both lanes are empty.
func (q *Queue[T]) Pop(done <-chan struct{}) (T, bool) {
	if q.streak >= q.fairness {
		if v, ok := q.tryLow(); ok {
			return v, true
		}
	}
	if v, ok := q.tryHigh(); ok {
		return v, true
	}
	select {
	case v := <-q.high:
		q.streak++
		q.highPop.Add(1)
		return v, true
	case v := <-q.low:
		q.streak = 0
		q.lowPop.Add(1)
		return v, true
	case <-done:
		if v, ok := q.tryHigh(); ok {
			return v, true
		}
		if v, ok := q.tryLow(); ok {
			return v, true
		}
		var zero T
		return zero, false
	}
}

func (q *Queue[T]) tryHigh() (T, bool) {
	select {
	case v := <-q.high:
		q.streak++
		q.highPop.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *Queue[T]) tryLow() (T, bool) {
	select {
	case v := <-q.low:
		q.streak = 0
		q.lowPop.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *Queue[T]) Len() int { return len(q.high) + len(q.low) }

func (q *Queue[T]) Stats() Stats {
	return Stats{
		HighPush: q.highPush.Load(),
		LowPush:  q.lowPush.Load(),
		HighPop:  q.highPop.Load(),
		LowPop:   q.lowPop.Load(),
		Dropped:  q.dropped.Load(),
	}
}
