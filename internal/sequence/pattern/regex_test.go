package pattern

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRegexPattern(t *testing.T) {
	cases := map[string]string{
		"INV-{YEAR}.{COUNTER:4}":          `^INV-(\d{4})\.(\d+)$`,
		"{MONTH}/{DAY}/{COUNTER}":         `^(\d{2})/(\d{2})/(\d+)$`,
		"WO-{DEPARTMENT:UPPER}+{COUNTER}": `^WO-(.+?)\+(\d+)$`,
		"(A)[B]{COUNTER}":                 `^\(A\)\[B\](\d+)$`,
	}
	for pattern, want := range cases {
		got, err := GenerateRegexPattern(pattern)
		require.NoError(t, err, pattern)
		assert.Equal(t, want, got, pattern)
	}
}

func TestGenerateRegexPatternInvalid(t *testing.T) {
	_, err := GenerateRegexPattern("{COUNTER")
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestCounterRoundTrip(t *testing.T) {
	reg := NewDefaultRegistry()
	patterns := []string{
		"INV-{YEAR}{MONTH}-{COUNTER:4}",
		"WO-{DEPARTMENT:SLUG}-{COUNTER:4}-{DAY}",
		"{PROJECT_CODE}.{COUNTER:4}",
	}
	values := Values{"department": "Final Assembly", "project_code": "PRJ-7", "project_phase": "2"}
	ts := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)

	for _, p := range patterns {
		expr, err := reg.GenerateRegexPattern(p)
		require.NoError(t, err)
		re := regexp.MustCompile(expr)

		for _, counter := range []int64{1, 9, 42, 999, 1000, 9999, 10000, 123456} {
			value, err := reg.Render(p, EvalInput{Values: values, Counter: counter, Padding: 4, Timestamp: ts})
			require.NoError(t, err)
			assert.True(t, re.MatchString(value), "%s should match %s", value, expr)

			got, ok := reg.ExtractCounter(p, value)
			require.True(t, ok, value)
			assert.Equal(t, counter, got, value)
		}
	}
}

func TestExtractCounterMismatch(t *testing.T) {
	_, ok := ExtractCounter("INV-{COUNTER:4}", "PO-0001")
	assert.False(t, ok)

	_, ok = ExtractCounter("INV-{YEAR}", "INV-2024")
	assert.False(t, ok)

	_, ok = ExtractCounter("{COUNTER", "1")
	assert.False(t, ok)
}
