package pattern

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"
)

const maxContextValueLength = 100

// Values is the caller-supplied context a pattern is evaluated against.
type Values map[string]any

// Context is what a Variable sees during resolution.
type Context struct {
	Values  Values
	Counter int64
	Padding int
}

// Variable is implemented by every placeholder, built-in or custom.
type Variable interface {
	Name() string
	Description() string
	Resolve(ctx Context, ts time.Time) (string, error)
	Validate(ctx Context) ValidationResult
	RequiredKeys() []string
	OptionalKeys() []string
	SupportsParameters() bool
	ResolveWithParameter(ctx Context, param string, ts time.Time) (string, error)
}

// Lookup finds key in values, falling back to its lower and upper case forms.
func (v Values) Lookup(key string) (any, bool) {
	if v == nil {
		return nil, false
	}
	if val, ok := v[key]; ok {
		return val, true
	}
	if val, ok := v[strings.ToLower(key)]; ok {
		return val, true
	}
	val, ok := v[strings.ToUpper(key)]
	return val, ok
}

// Scalar renders a context value as a string. ok is false for maps, slices,
// structs and nil.
func Scalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// checkValue reports the problems with a single context entry.
func checkValue(key string, value any) []string {
	s, ok := Scalar(value)
	if !ok {
		return []string{fmt.Sprintf("context value %q must be a scalar, got %T", key, value)}
	}
	var problems []string
	if _, isString := value.(string); isString && utf8.RuneCountInString(s) > maxContextValueLength {
		problems = append(problems, fmt.Sprintf("context value %q exceeds %d characters", key, maxContextValueLength))
	}
	if strings.ContainsAny(s, "{}") {
		problems = append(problems, fmt.Sprintf("context value %q must not contain '{' or '}'", key))
	}
	return problems
}

const (
	ModifierUpper = "UPPER"
	ModifierLower = "LOWER"
	ModifierSlug  = "SLUG"
)

// validModifier reports whether param is UPPER, LOWER, SLUG or a truncation length.
func validModifier(param string) bool {
	switch param {
	case ModifierUpper, ModifierLower, ModifierSlug:
		return true
	}
	n, err := strconv.Atoi(param)
	return err == nil && n >= 1 && n <= maxContextValueLength
}

func applyModifier(value, param string) (string, error) {
	switch param {
	case ModifierUpper:
		return strings.ToUpper(value), nil
	case ModifierLower:
		return strings.ToLower(value), nil
	case ModifierSlug:
		return slug.Make(value), nil
	}
	n, err := strconv.Atoi(param)
	if err != nil || n < 1 {
		return "", fmt.Errorf("%w: unsupported parameter %q", ErrInvalidPattern, param)
	}
	runes := []rune(value)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes), nil
}
