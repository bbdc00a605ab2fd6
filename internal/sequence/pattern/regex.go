package pattern

import (
	"regexp"
	"strconv"
	"strings"
)

// GenerateRegexPattern returns an anchored regular expression matching
// values generated from pattern.
func GenerateRegexPattern(pattern string) (string, error) {
	return defaultRegistry.GenerateRegexPattern(pattern)
}

// ExtractCounter recovers the counter from a value generated by pattern.
func ExtractCounter(pattern, value string) (int64, bool) {
	return defaultRegistry.ExtractCounter(pattern, value)
}

func (r *Registry) GenerateRegexPattern(pattern string) (string, error) {
	c := r.compile(pattern)
	if err := c.result.Err(ErrInvalidPattern); err != nil {
		return "", err
	}
	if c.regErr != nil {
		return "", c.regErr
	}
	return c.regex.String(), nil
}

// Matcher returns the compiled regular expression for pattern.
func (r *Registry) Matcher(pattern string) (*regexp.Regexp, error) {
	c := r.compile(pattern)
	if err := c.result.Err(ErrInvalidPattern); err != nil {
		return nil, err
	}
	return c.regex, c.regErr
}

func (r *Registry) ExtractCounter(pattern, value string) (int64, bool) {
	c := r.compile(pattern)
	if !c.result.Valid || c.regErr != nil {
		return 0, false
	}
	m := c.regex.FindStringSubmatch(value)
	if m == nil {
		return 0, false
	}
	group := 0
	for _, tok := range c.tmpl.Variables() {
		group++
		if tok.Name != VarCounter {
			continue
		}
		n, err := strconv.ParseInt(m[group], 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func buildRegex(tmpl *Template) string {
	var b strings.Builder
	b.WriteString("^")
	for _, tok := range tmpl.Tokens {
		if !tok.Variable {
			b.WriteString(regexp.QuoteMeta(tok.Literal))
			continue
		}
		switch tok.Name {
		case VarCounter:
			b.WriteString(`(\d+)`)
		case VarYear:
			b.WriteString(`(\d{4})`)
		case VarMonth, VarDay:
			b.WriteString(`(\d{2})`)
		default:
			b.WriteString(`(.+?)`)
		}
	}
	b.WriteString("$")
	return b.String()
}
