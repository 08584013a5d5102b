// Package plugin maps handler names from configuration to middleware
// builders and assembles them into a chain.
package plugin

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
)

// Middleware is one link of the handler chain.
type Middleware = func(http.Handler) http.Handler

var (
	ErrUnknownHandler   = errors.New("unknown handler")
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Builder creates a configured middleware from string parameters.
type Builder interface {
	Name() string
	// Parameters maps each accepted parameter to its type: "string", "int"
	// or "bool".
	Parameters() map[string]string
	Build(params map[string]string) (Middleware, error)
}

// Spec names a handler and its parameters as written in configuration.
type Spec struct {
	Name   string            `yaml:"name" json:"name"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Descriptor describes a registered builder.
type Descriptor struct {
	Name       string            `json:"name"`
	Parameters map[string]string `json:"parameters"`
}

// Registry holds builders by name.
type Registry interface {
	Register(b Builder) error
	Get(name string) (Builder, bool)
	List() []Descriptor
}

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry(builders ...Builder) (Registry, error) {
	r := &registry{builders: make(map[string]Builder)}
	for _, b := range builders {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *registry) Register(b Builder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builders[b.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, b.Name())
	}
	r.builders[b.Name()] = b
	return nil
}

func (r *registry) Get(name string) (Builder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

func (r *registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.builders))
	for name, b := range r.builders {
		out = append(out, Descriptor{Name: name, Parameters: b.Parameters()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Chain builds every spec and composes them so that the first spec is the
// outermost handler.
func Chain(r Registry, specs []Spec) (Middleware, error) {
	mws := make([]Middleware, 0, len(specs))
	for _, s := range specs {
		b, ok := r.Get(s.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandler, s.Name)
		}
		if err := validate(b, s.Params); err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		mw, err := b.Build(s.Params)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", s.Name, err)
		}
		mws = append(mws, mw)
	}
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}, nil
}

func validate(b Builder, params map[string]string) error {
	accepted := b.Parameters()
	for name, value := range params {
		kind, ok := accepted[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParameter, name)
		}
		var err error
		switch kind {
		case "int":
			_, err = strconv.Atoi(value)
		case "bool":
			_, err = strconv.ParseBool(value)
		}
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a valid %s", ErrInvalidParameter, name, value, kind)
		}
	}
	return nil
}

// Int returns the named int parameter or def when absent.
func Int(params map[string]string, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, v)
	}
	return n, nil
}

// Bool returns the named bool parameter or def when absent.
func Bool(params map[string]string, name string, def bool) (bool, error) {
	v, ok := params[name]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, v)
	}
	return b, nil
}

// String returns the named parameter or def when absent.
func String(params map[string]string, name, def string) string {
	if v, ok := params[name]; ok && v != "" {
		return v
	}
	return def
}
