package service

import (
	"math/rand/v2"
	"sync"
	"time"
)

// IntervalSource yields the pause before the next session sample. Next is
// called once after every sample.
type IntervalSource interface {
	Next() time.Duration
}

// UniformIntervals draws uniformly from [Min, Max] in whole seconds when
// both bounds are whole seconds, and in nanoseconds otherwise.
type UniformIntervals struct {
	Min, Max time.Duration
}

// Next draws one interval. It returns Min when Max <= Min.
func (u UniformIntervals) Next() time.Duration {
	if u.Max <= u.Min {
		return u.Min
	}
	if u.Min%time.Second == 0 && u.Max%time.Second == 0 {
		lo, hi := int64(u.Min/time.Second), int64(u.Max/time.Second)
		return time.Duration(lo+rand.Int64N(hi-lo+1)) * time.Second
	}
	return u.Min + time.Duration(rand.Int64N(int64(u.Max-u.Min)+1))
}

// FixedIntervals replays a fixed sequence, cycling when it runs out. The
// zero value yields 0.
type FixedIntervals struct {
	mu   sync.Mutex
	seq  []time.Duration
	next int
}

// NewFixedIntervals replays seq in order.
func NewFixedIntervals(seq ...time.Duration) *FixedIntervals {
	return &FixedIntervals{seq: seq}
}

// Next returns the next value of the sequence.
func (f *FixedIntervals) Next() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seq) == 0 {
		return 0
	}
	d := f.seq[f.next%len(f.seq)]
	f.next++
	return d
}
