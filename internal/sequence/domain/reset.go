package domain

import "time"

// ResetBase is the value a counter returns to before the step is applied.
const ResetBase int64 = 0

type ResetTrigger string

const (
	TriggerNone  ResetTrigger = "none"
	TriggerTime  ResetTrigger = "time"
	TriggerCount ResetTrigger = "count"
	TriggerBoth  ResetTrigger = "both"
)

// ShouldReset reports whether state is due for a reset at now: the counter
// has reached the reset limit, or now lies in a later calendar period (UTC)
// than the last reset.
func ShouldReset(cfg SequenceConfig, state CounterState, now time.Time) bool {
	return limitReached(cfg, state.Counter()) || periodElapsed(cfg, state, now)
}

// ResetDueOnNext reports whether the next increment must reset first. It is
// ShouldReset evaluated against the state as it would be after stepping.
func ResetDueOnNext(cfg SequenceConfig, state CounterState, now time.Time) bool {
	return limitReached(cfg, state.Counter()+cfg.StepSize()) || periodElapsed(cfg, state, now)
}

// NextResetTime is the start of the period after the last reset anchor, or
// nil when no time-based reset is configured.
func NextResetTime(cfg SequenceConfig, state CounterState) *time.Time {
	if !cfg.ResetPeriod().IsTimeBased() {
		return nil
	}
	next := periodStart(cfg.ResetPeriod(), state.resetAnchor())
	switch cfg.ResetPeriod() {
	case ResetDaily:
		next = next.AddDate(0, 0, 1)
	case ResetMonthly:
		next = next.AddDate(0, 1, 0)
	case ResetYearly:
		next = next.AddDate(1, 0, 0)
	}
	return &next
}

func TriggerFor(cfg SequenceConfig) ResetTrigger {
	timed := cfg.ResetPeriod().IsTimeBased()
	counted := cfg.ResetLimit() != nil
	switch {
	case timed && counted:
		return TriggerBoth
	case timed:
		return TriggerTime
	case counted:
		return TriggerCount
	}
	return TriggerNone
}

// RemainingCount is reset_limit minus the current counter, nil without a limit.
func RemainingCount(cfg SequenceConfig, state CounterState) *int64 {
	limit := cfg.ResetLimit()
	if limit == nil {
		return nil
	}
	remaining := *limit - state.Counter()
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func limitReached(cfg SequenceConfig, counter int64) bool {
	limit := cfg.ResetLimit()
	return limit != nil && counter >= *limit
}

func periodElapsed(cfg SequenceConfig, state CounterState, now time.Time) bool {
	period := cfg.ResetPeriod()
	if !period.IsTimeBased() {
		return false
	}
	return periodStart(period, now).After(periodStart(period, state.resetAnchor()))
}

func periodStart(period ResetPeriod, t time.Time) time.Time {
	t = t.UTC()
	switch period {
	case ResetDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case ResetMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case ResetYearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
