package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/erpcore/internal/sequence/pattern"
)

type ResetPeriod string

const (
	ResetNever   ResetPeriod = "never"
	ResetDaily   ResetPeriod = "daily"
	ResetMonthly ResetPeriod = "monthly"
	ResetYearly  ResetPeriod = "yearly"
	// ResetCount recycles purely on reset_limit.
	ResetCount ResetPeriod = "count"
)

func ParseResetPeriod(raw string) (ResetPeriod, error) {
	p := ResetPeriod(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case ResetNever, ResetDaily, ResetMonthly, ResetYearly, ResetCount:
		return p, nil
	case "":
		return ResetNever, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResetPeriod, raw)
}

// IsTimeBased reports whether the period resets on calendar boundaries.
func (p ResetPeriod) IsTimeBased() bool {
	return p == ResetDaily || p == ResetMonthly || p == ResetYearly
}

const DefaultEvaluator = "default"

// SequenceConfig is the validated, immutable shape of one sequence.
type SequenceConfig struct {
	tenantID      int64
	name          string
	pattern       string
	resetPeriod   ResetPeriod
	padding       int
	stepSize      int64
	resetLimit    *int64
	evaluatorType string
}

type SequenceConfigParams struct {
	TenantID      int64
	Name          string
	Pattern       string
	ResetPeriod   ResetPeriod
	Padding       int
	StepSize      int64
	ResetLimit    *int64
	EvaluatorType string
}

// NewSequenceConfig validates p. Pattern problems are returned as a
// *pattern.ValidationError carrying every message.
func NewSequenceConfig(p SequenceConfigParams) (SequenceConfig, error) {
	if p.TenantID <= 0 {
		return SequenceConfig{}, ErrInvalidTenant
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || len(name) > 100 {
		return SequenceConfig{}, ErrInvalidName
	}
	if res := pattern.ValidatePattern(p.Pattern); !res.Valid {
		return SequenceConfig{}, res.Err(ErrInvalidPattern)
	}
	if p.Padding < pattern.MinPadding || p.Padding > pattern.MaxPadding {
		return SequenceConfig{}, fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidPadding, p.Padding, pattern.MinPadding, pattern.MaxPadding)
	}
	if p.StepSize < 1 {
		return SequenceConfig{}, fmt.Errorf("%w: %d", ErrInvalidStepSize, p.StepSize)
	}
	period, err := ParseResetPeriod(string(p.ResetPeriod))
	if err != nil {
		return SequenceConfig{}, err
	}
	var limit *int64
	if p.ResetLimit != nil {
		if *p.ResetLimit < 1 {
			return SequenceConfig{}, fmt.Errorf("%w: %d", ErrInvalidResetLimit, *p.ResetLimit)
		}
		v := *p.ResetLimit
		limit = &v
	}
	if period == ResetCount && limit == nil {
		return SequenceConfig{}, fmt.Errorf("%w: count reset requires a limit", ErrInvalidResetLimit)
	}
	evaluator := strings.TrimSpace(p.EvaluatorType)
	if evaluator == "" {
		evaluator = DefaultEvaluator
	}

	return SequenceConfig{
		tenantID:      p.TenantID,
		name:          name,
		pattern:       p.Pattern,
		resetPeriod:   period,
		padding:       p.Padding,
		stepSize:      p.StepSize,
		resetLimit:    limit,
		evaluatorType: evaluator,
	}, nil
}

// ConfigFromSequence builds the config for a stored row.
func ConfigFromSequence(s *Sequence) (SequenceConfig, error) {
	return NewSequenceConfig(SequenceConfigParams{
		TenantID:      s.TenantID,
		Name:          s.SequenceName,
		Pattern:       s.Pattern,
		ResetPeriod:   ResetPeriod(s.ResetPeriod),
		Padding:       s.Padding,
		StepSize:      s.StepSize,
		ResetLimit:    s.ResetLimit,
		EvaluatorType: s.EvaluatorType,
	})
}

func (c SequenceConfig) TenantID() int64 { return c.tenantID }
func (c SequenceConfig) Name() string { return c.name }
func (c SequenceConfig) Pattern() string { return c.pattern }
func (c SequenceConfig) ResetPeriod() ResetPeriod { return c.resetPeriod }
func (c SequenceConfig) Padding() int { return c.padding }
func (c SequenceConfig) StepSize() int64 { return c.stepSize }
func (c SequenceConfig) EvaluatorType() string { return c.evaluatorType }

// ResetLimit returns a copy so the config cannot be mutated through it.
func (c SequenceConfig) ResetLimit() *int64 {
	if c.resetLimit == nil {
		return nil
	}
	v := *c.resetLimit
	return &v
}

// Key identifies the counter row: tenant, name and reset period.
func (c SequenceConfig) Key() string {
	return strconv.FormatInt(c.tenantID, 10) + ":" + c.name + ":" + string(c.resetPeriod)
}
