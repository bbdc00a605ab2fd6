package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
	"unicode/utf8"
)

const MaxNumberLength = 255

// GeneratedNumber is produced once per successful generation and never mutated.
type GeneratedNumber struct {
	value       string
	counter     int64
	generatedAt time.Time
	metadata    map[string]any
}

func NewGeneratedNumber(value string, counter int64, generatedAt time.Time, metadata map[string]any) (GeneratedNumber, error) {
	if n := utf8.RuneCountInString(value); n == 0 || n > MaxNumberLength {
		return GeneratedNumber{}, fmt.Errorf("%w: length %d not in [1,%d]", ErrInvalidNumber, n, MaxNumberLength)
	}
	if counter < 1 {
		return GeneratedNumber{}, fmt.Errorf("%w: counter %d", ErrInvalidNumber, counter)
	}
	return GeneratedNumber{
		value:       value,
		counter:     counter,
		generatedAt: generatedAt.UTC(),
		metadata:    cloneMetadata(metadata),
	}, nil
}

func (g GeneratedNumber) Value() string { return g.value }
func (g GeneratedNumber) Counter() int64 { return g.counter }
func (g GeneratedNumber) GeneratedAt() time.Time { return g.generatedAt }
func (g GeneratedNumber) String() string { return g.value }

// Metadata returns a copy.
func (g GeneratedNumber) Metadata() map[string]any {
	return cloneMetadata(g.metadata)
}

// WithMetadata returns a new instance with key set.
func (g GeneratedNumber) WithMetadata(key string, value any) GeneratedNumber {
	md := cloneMetadata(g.metadata)
	md[key] = value
	g.metadata = md
	return g
}

func (g GeneratedNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value       string         `json:"value"`
		Counter     int64          `json:"counter"`
		GeneratedAt time.Time      `json:"generated_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{g.value, g.counter, g.generatedAt, g.metadata})
}

func cloneMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
