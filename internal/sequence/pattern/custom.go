package pattern

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ContextVariable resolves a placeholder from a context entry. It backs the
// pluggable DEPARTMENT and PROJECT_CODE variables and any unregistered name.
type ContextVariable struct {
	VarName     string
	Desc        string
	Key         string
	Optional    []string
	Alternates  []string
	Parameters  bool
	ResolveFunc func(values Values) (string, error)
}

func (v ContextVariable) Name() string { return v.VarName }
func (v ContextVariable) Description() string { return v.Desc }

func (v ContextVariable) RequiredKeys() []string {
	return []string{v.key()}
}

func (v ContextVariable) OptionalKeys() []string {
	return append([]string(nil), v.Optional...)
}

func (v ContextVariable) SupportsParameters() bool { return v.Parameters }

func (v ContextVariable) key() string {
	if v.Key != "" {
		return v.Key
	}
	return strings.ToLower(v.VarName)
}

func (v ContextVariable) Resolve(ctx Context, _ time.Time) (string, error) {
	if v.ResolveFunc != nil {
		return v.ResolveFunc(ctx.Values)
	}
	raw, ok := ctx.Values.Lookup(v.key())
	if !ok {
		return "", fmt.Errorf("%w: {%s} requires context key %q", ErrMissingVariable, v.VarName, v.key())
	}
	s, ok := Scalar(raw)
	if !ok {
		return "", fmt.Errorf("%w: context value %q must be a scalar", ErrInvalidContext, v.key())
	}
	return s, nil
}

// Validate accepts a non-empty scalar under one of Alternates in place of
// the primary key.
func (v ContextVariable) Validate(ctx Context) ValidationResult {
	res := NewValidationResult()
	raw, ok := ctx.Values.Lookup(v.key())
	if !ok {
		quoted := []string{strconv.Quote(v.key())}
		for _, alt := range v.Alternates {
			if val, ok := ctx.Values.Lookup(alt); ok {
				if s, ok := Scalar(val); ok && s != "" {
					return res
				}
			}
			quoted = append(quoted, strconv.Quote(alt))
		}
		res.AddError("variable {%s} requires context key %s", v.VarName, strings.Join(quoted, " or "))
		return res
	}
	for _, problem := range checkValue(v.key(), raw) {
		res.AddError("%s", problem)
	}
	return res
}

func (v ContextVariable) ResolveWithParameter(ctx Context, param string, ts time.Time) (string, error) {
	if !v.Parameters {
		return "", fmt.Errorf("%w: {%s} takes no parameter", ErrInvalidPattern, v.VarName)
	}
	out, err := v.Resolve(ctx, ts)
	if err != nil {
		return "", err
	}
	return applyModifier(out, param)
}

// NewDepartmentVariable resolves {DEPARTMENT} from "department", preferring
// the short "department_code" when present.
func NewDepartmentVariable() Variable {
	return ContextVariable{
		VarName:    "DEPARTMENT",
		Desc:       "Department name or code from context",
		Key:        "department",
		Optional:   []string{"department_code"},
		Alternates: []string{"department_code"},
		Parameters: true,
		ResolveFunc: func(values Values) (string, error) {
			if code, ok := values.Lookup("department_code"); ok {
				if s, ok := Scalar(code); ok && s != "" {
					return s, nil
				}
			}
			raw, ok := values.Lookup("department")
			if !ok {
				return "", fmt.Errorf("%w: {DEPARTMENT} requires context key %q", ErrMissingVariable, "department")
			}
			s, ok := Scalar(raw)
			if !ok {
				return "", fmt.Errorf("%w: context value %q must be a scalar", ErrInvalidContext, "department")
			}
			return s, nil
		},
	}
}

// NewProjectCodeVariable resolves {PROJECT_CODE}, suffixed with
// "-<project_phase>" when that key is present.
func NewProjectCodeVariable() Variable {
	return ContextVariable{
		VarName:    "PROJECT_CODE",
		Desc:       "Project code from context, optionally with phase",
		Key:        "project_code",
		Optional:   []string{"project_phase"},
		Parameters: true,
		ResolveFunc: func(values Values) (string, error) {
			raw, ok := values.Lookup("project_code")
			if !ok {
				return "", fmt.Errorf("%w: {PROJECT_CODE} requires context key %q", ErrMissingVariable, "project_code")
			}
			code, ok := Scalar(raw)
			if !ok {
				return "", fmt.Errorf("%w: context value %q must be a scalar", ErrInvalidContext, "project_code")
			}
			if phase, ok := values.Lookup("project_phase"); ok {
				if s, ok := Scalar(phase); ok && s != "" {
					return code + "-" + s, nil
				}
			}
			return code, nil
		},
	}
}

// adhocVariable backs placeholders with no registration; the context key is
// the placeholder name itself.
func adhocVariable(name string) Variable {
	return ContextVariable{
		VarName:    name,
		Desc:       "Context value",
		Key:        name,
		Parameters: true,
	}
}
