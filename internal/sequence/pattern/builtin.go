package pattern

import (
	"fmt"
	"strconv"
	"time"
)

const (
	VarYear    = "YEAR"
	VarMonth   = "MONTH"
	VarDay     = "DAY"
	VarCounter = "COUNTER"

	MinPadding = 1
	MaxPadding = 20
)

// IsBuiltin reports whether name never needs a context entry.
func IsBuiltin(name string) bool {
	switch name {
	case VarYear, VarMonth, VarDay, VarCounter:
		return true
	}
	return false
}

// dateVariable renders part of the generation timestamp in UTC.
type dateVariable struct {
	name        string
	layout      string
	description string
}

func (v dateVariable) Name() string { return v.name }
func (v dateVariable) Description() string { return v.description }
func (v dateVariable) RequiredKeys() []string { return nil }
func (v dateVariable) OptionalKeys() []string { return nil }
func (v dateVariable) SupportsParameters() bool { return false }

func (v dateVariable) Resolve(_ Context, ts time.Time) (string, error) {
	return ts.UTC().Format(v.layout), nil
}

func (v dateVariable) Validate(Context) ValidationResult {
	return NewValidationResult()
}

func (v dateVariable) ResolveWithParameter(_ Context, param string, _ time.Time) (string, error) {
	return "", fmt.Errorf("%w: {%s} takes no parameter, got %q", ErrInvalidPattern, v.name, param)
}

type counterVariable struct{}

func (counterVariable) Name() string { return VarCounter }
func (counterVariable) Description() string { return "Sequence counter, zero padded" }
func (counterVariable) RequiredKeys() []string { return nil }
func (counterVariable) OptionalKeys() []string { return nil }
func (counterVariable) SupportsParameters() bool { return true }

func (c counterVariable) Resolve(ctx Context, _ time.Time) (string, error) {
	return formatCounter(ctx.Counter, ctx.Padding)
}

func (c counterVariable) Validate(ctx Context) ValidationResult {
	res := NewValidationResult()
	if ctx.Counter < 0 {
		res.AddError("counter must not be negative, got %d", ctx.Counter)
	}
	return res
}

func (c counterVariable) ResolveWithParameter(ctx Context, param string, _ time.Time) (string, error) {
	width, err := parseCounterWidth(param)
	if err != nil {
		return "", err
	}
	return formatCounter(ctx.Counter, width)
}

func parseCounterWidth(param string) (int, error) {
	width, err := strconv.Atoi(param)
	if err != nil {
		return 0, fmt.Errorf("%w: {COUNTER:%s} width must be numeric", ErrInvalidPattern, param)
	}
	if width < MinPadding || width > MaxPadding {
		return 0, fmt.Errorf("%w: {COUNTER:%d} width must be between %d and %d", ErrInvalidPattern, width, MinPadding, MaxPadding)
	}
	return width, nil
}

func formatCounter(counter int64, width int) (string, error) {
	if counter < 0 {
		return "", fmt.Errorf("counter must not be negative, got %d", counter)
	}
	if width < MinPadding {
		width = MinPadding
	}
	return fmt.Sprintf("%0*d", width, counter), nil
}

func builtinVariables() []Variable {
	return []Variable{
		dateVariable{name: VarYear, layout: "2006", description: "Four digit year of generation"},
		dateVariable{name: VarMonth, layout: "01", description: "Two digit month of generation"},
		dateVariable{name: VarDay, layout: "02", description: "Two digit day of month of generation"},
		counterVariable{},
	}
}
