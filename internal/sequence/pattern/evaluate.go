package pattern

import (
	"fmt"
	"strings"
	"time"
)

// EvalInput is everything a template needs to render one value.
type EvalInput struct {
	Values    Values
	Counter   int64
	Padding   int
	Timestamp time.Time
}

// Evaluate renders tmpl. Placeholders are resolved in order; the first
// resolution failure aborts with no partial output.
func (r *Registry) Evaluate(tmpl *Template, in EvalInput) (string, error) {
	if tmpl == nil {
		return "", fmt.Errorf("%w: nil template", ErrInvalidPattern)
	}
	ctx := Context{Values: in.Values, Counter: in.Counter, Padding: in.Padding}

	var b strings.Builder
	for _, tok := range tmpl.Tokens {
		if !tok.Variable {
			b.WriteString(tok.Literal)
			continue
		}
		v := r.resolve(tok.Name)

		var (
			out string
			err error
		)
		if tok.HasParam {
			out, err = v.ResolveWithParameter(ctx, tok.Param, in.Timestamp)
		} else {
			out, err = v.Resolve(ctx, in.Timestamp)
		}
		if err != nil {
			return "", fmt.Errorf("resolve {%s}: %w", tok.Name, err)
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

// Render compiles pattern and evaluates it in one step.
func (r *Registry) Render(pattern string, in EvalInput) (string, error) {
	tmpl, err := r.Compile(pattern)
	if err != nil {
		return "", err
	}
	return r.Evaluate(tmpl, in)
}
