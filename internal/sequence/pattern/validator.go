package pattern

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

var defaultRegistry = NewDefaultRegistry()

// ValidatePattern checks pattern against the default registry.
func ValidatePattern(pattern string) ValidationResult {
	return defaultRegistry.ValidatePattern(pattern)
}

// ValidateContext checks values against pattern using the default registry.
func ValidateContext(values Values, pattern string) ValidationResult {
	return defaultRegistry.ValidateContext(values, pattern)
}

func (r *Registry) ValidatePattern(pattern string) ValidationResult {
	return cloneResult(r.compile(pattern).result)
}

func (r *Registry) checkTokens(pattern string, tmpl *Template, res *ValidationResult) {
	if strings.TrimSpace(pattern) == "" {
		res.AddError("pattern must not be empty")
		return
	}

	seen := map[string]bool{}
	hasCounter := false
	for _, tok := range tmpl.Variables() {
		if !variableNameRe.MatchString(tok.Name) {
			res.AddError("variable name %q at position %d must contain only A-Z, 0-9 and _", tok.Name, tok.Pos)
			continue
		}
		if seen[tok.Name] {
			res.AddError("variable {%s} appears more than once", tok.Name)
		}
		seen[tok.Name] = true

		switch tok.Name {
		case VarCounter:
			hasCounter = true
			if tok.HasParam {
				if _, err := parseCounterWidth(tok.Param); err != nil {
					res.AddError("{COUNTER:%s} width must be a number between %d and %d", tok.Param, MinPadding, MaxPadding)
				}
			}
		case VarYear, VarMonth, VarDay:
			if tok.HasParam {
				res.AddError("{%s} does not accept a parameter", tok.Name)
			}
		default:
			if !tok.HasParam {
				continue
			}
			v := r.resolve(tok.Name)
			switch {
			case !v.SupportsParameters():
				res.AddError("{%s} does not accept a parameter", tok.Name)
			case !validModifier(tok.Param):
				res.AddError("{%s:%s} parameter must be UPPER, LOWER, SLUG or a length between 1 and %d", tok.Name, tok.Param, maxContextValueLength)
			}
		}
	}

	if !hasCounter {
		res.AddWarning("pattern has no {COUNTER} variable; generated numbers may collide")
	}
}

func (r *Registry) ValidateContext(values Values, pattern string) ValidationResult {
	res := NewValidationResult()
	c := r.compile(pattern)
	if !c.result.Valid {
		res.Merge(cloneResult(c.result))
		return res
	}

	used := map[string]bool{}
	markUsed := func(key string) {
		used[strings.ToLower(key)] = true
	}

	checked := map[string]bool{}
	for _, tok := range c.tmpl.Variables() {
		markUsed(tok.Name)
		if IsBuiltin(tok.Name) {
			continue
		}
		v := r.resolve(tok.Name)
		for _, key := range v.RequiredKeys() {
			markUsed(key)
			checked[strings.ToLower(key)] = true
		}
		for _, key := range v.OptionalKeys() {
			markUsed(key)
		}
		res.Merge(v.Validate(Context{Values: values}))
	}

	// values not owned by a referenced variable are still checked for shape
	keys := lo.Keys(values)
	sort.Strings(keys)
	for _, key := range keys {
		if !checked[strings.ToLower(key)] {
			for _, problem := range checkValue(key, values[key]) {
				res.AddError("%s", problem)
			}
		}
		if !used[strings.ToLower(key)] {
			res.AddWarning("context key %q is not used by the pattern", key)
		}
	}
	return res
}

func cloneResult(r ValidationResult) ValidationResult {
	return ValidationResult{
		Valid:    r.Valid,
		Errors:   append([]string{}, r.Errors...),
		Warnings: append([]string{}, r.Warnings...),
	}
}
