package domain

import (
	"fmt"
	"time"
)

// CounterState is an immutable snapshot of a counter.
type CounterState struct {
	counter     int64
	timestamp   time.Time
	lastResetAt *time.Time
}

// NewCounterState enforces counter >= 0 and lastResetAt <= ts.
func NewCounterState(counter int64, ts time.Time, lastResetAt *time.Time) (CounterState, error) {
	if counter < 0 {
		return CounterState{}, fmt.Errorf("%w: counter %d is negative", ErrInvalidCounter, counter)
	}
	var last *time.Time
	if lastResetAt != nil {
		if lastResetAt.After(ts) {
			return CounterState{}, fmt.Errorf("%w: last reset %s is after %s", ErrInvalidCounter, lastResetAt.Format(time.RFC3339), ts.Format(time.RFC3339))
		}
		v := lastResetAt.UTC()
		last = &v
	}
	return CounterState{counter: counter, timestamp: ts.UTC(), lastResetAt: last}, nil
}

func (s CounterState) Counter() int64 { return s.counter }
func (s CounterState) Timestamp() time.Time { return s.timestamp }

func (s CounterState) LastResetAt() *time.Time {
	if s.lastResetAt == nil {
		return nil
	}
	v := *s.lastResetAt
	return &v
}

// Increment returns the state after adding step at now.
func (s CounterState) Increment(step int64, now time.Time) (CounterState, error) {
	if step < 1 {
		return CounterState{}, fmt.Errorf("%w: %d", ErrInvalidStepSize, step)
	}
	return NewCounterState(s.counter+step, maxTime(now, s.lastResetAt), s.lastResetAt)
}

// Reset returns a state holding newCounter with both timestamps set to now.
func (s CounterState) Reset(newCounter int64, now time.Time) (CounterState, error) {
	return NewCounterState(newCounter, now, &now)
}

// resetAnchor is the instant time-based resets are measured from.
func (s CounterState) resetAnchor() time.Time {
	if s.lastResetAt != nil {
		return *s.lastResetAt
	}
	return s.timestamp
}

func maxTime(now time.Time, other *time.Time) time.Time {
	if other != nil && other.After(now) {
		return *other
	}
	return now
}
