package native

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"costa/internal/costa"
)

// Func is one function of an in-process package. Arguments arrive as plain
// values: nil, bool, int64, float64, string, []any, map[string]any.
type Func func(ctx context.Context, args []any) (any, error)

// Funcs is a package made of named functions.
type Funcs map[string]Func

func (f Funcs) Functions() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f Funcs) Call(ctx context.Context, fn string, args []any) (any, error) {
	impl, ok := f[fn]
	if !ok {
		return nil, &UnknownFunctionError{Function: fn}
	}
	return impl(ctx, args)
}

type UnknownFunctionError struct {
	Package  string
	Function string
}

func (e *UnknownFunctionError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("native: unknown function %q", e.Function)
	}
	return fmt.Sprintf("native: package %q has no function %q", e.Package, e.Function)
}

// Factory builds an in-process package.
type Factory func() (costa.FuncSet, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// New builds the package registered under name.
func (r *Registry) New(name string) (costa.FuncSet, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("native: no in-process package %q (registered: %s)", name, strings.Join(r.Names(), ", "))
	}
	return f()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Register is called from each built-in package's init().
func Register(name string, f Factory) { defaultRegistry.Register(name, f) }
