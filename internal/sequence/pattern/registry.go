package pattern

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"
)

const (
	compileCacheTTL     = 30 * time.Minute
	compileCacheCleanup = time.Hour
)

// Registry maps placeholder names to their Variable. Built-ins are always
// registered first and cannot be replaced.
type Registry struct {
	mu    sync.RWMutex
	vars  map[string]Variable
	order []string
	cache *gocache.Cache
}

type compiled struct {
	tmpl   *Template
	result ValidationResult
	regex  *regexp.Regexp
	regErr error
}

// NewRegistry returns a registry holding YEAR, MONTH, DAY and COUNTER plus
// the given custom variables.
func NewRegistry(custom ...Variable) (*Registry, error) {
	r := &Registry{
		vars:  map[string]Variable{},
		cache: gocache.New(compileCacheTTL, compileCacheCleanup),
	}
	for _, v := range builtinVariables() {
		r.vars[v.Name()] = v
		r.order = append(r.order, v.Name())
	}
	for _, v := range custom {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry registers DEPARTMENT and PROJECT_CODE on top of the built-ins.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(NewDepartmentVariable(), NewProjectCodeVariable())
	if err != nil {
		// static registrations are known to be valid
		panic(err)
	}
	return r
}

func (r *Registry) Register(v Variable) error {
	if v == nil {
		return fmt.Errorf("register variable: nil")
	}
	name := v.Name()
	if !variableNameRe.MatchString(name) {
		return fmt.Errorf("register variable: invalid name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.vars[name]; exists {
		return fmt.Errorf("register variable: %s already registered", name)
	}
	r.vars[name] = v
	r.order = append(r.order, name)
	r.cache.Flush()
	return nil
}

// Lookup returns the registered variable for name.
func (r *Registry) Lookup(name string) (Variable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	return v, ok
}

// Names lists registered variables in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Variables lists registered variables in registration order.
func (r *Registry) Variables() []Variable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(name string, _ int) Variable {
		return r.vars[name]
	})
}

// resolve falls back to an ad-hoc context variable for unregistered names.
func (r *Registry) resolve(name string) Variable {
	if v, ok := r.Lookup(name); ok {
		return v
	}
	return adhocVariable(name)
}

func (r *Registry) compile(pattern string) *compiled {
	if cached, ok := r.cache.Get(pattern); ok {
		return cached.(*compiled)
	}

	res := NewValidationResult()
	tokens := tokenize(pattern, &res)
	c := &compiled{tmpl: &Template{Pattern: pattern, Tokens: tokens}}
	r.checkTokens(pattern, c.tmpl, &res)
	c.result = res
	if res.Valid {
		c.regex, c.regErr = regexp.Compile(buildRegex(c.tmpl))
	}

	r.cache.SetDefault(pattern, c)
	return c
}

// Compile parses and validates pattern. Invalid patterns return a
// *ValidationError wrapping ErrInvalidPattern.
func (r *Registry) Compile(pattern string) (*Template, error) {
	c := r.compile(pattern)
	if err := c.result.Err(ErrInvalidPattern); err != nil {
		return nil, err
	}
	return c.tmpl, nil
}
