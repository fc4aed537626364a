package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"costa/internal/costa"
	"costa/internal/logging"

	"google.golang.org/grpc"
)

// Bridge imports native packages. The root is passed on every call, so
// runners with different framework directories can share one bridge.
type Bridge struct {
	reg         *Registry
	dialTimeout time.Duration
	dialOpts    []grpc.DialOption

	mu      sync.Mutex
	modules map[string]*costa.Module
	closers []io.Closer
}

type Option func(*Bridge)

func WithRegistry(r *Registry) Option { return func(b *Bridge) { b.reg = r } }

func WithDialTimeout(d time.Duration) Option { return func(b *Bridge) { b.dialTimeout = d } }

func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(b *Bridge) { b.dialOpts = append(b.dialOpts, opts...) }
}

func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{
		reg:         defaultRegistry,
		dialTimeout: 5 * time.Second,
		modules:     map[string]*costa.Module{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Import implements costa.NativeImporter.
func (b *Bridge) Import(ctx context.Context, root, name string) (*costa.Module, error) {
	notFound := func(err error) error {
		return &costa.ModuleNotFoundError{Ecosystem: costa.Native, ID: name, SearchPaths: []string{root}, Err: err}
	}
	if err := validName(name); err != nil {
		return nil, notFound(err)
	}
	if root == "" {
		return nil, notFound(errors.New("empty native root"))
	}
	dir, err := filepath.Abs(filepath.Join(root, name))
	if err != nil {
		return nil, notFound(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.modules[dir]; ok {
		return m, nil
	}

	man, err := ReadManifest(dir)
	if err != nil {
		return nil, notFound(err)
	}

	var pkg costa.FuncSet
	switch man.Transport {
	case TransportGRPC:
		dctx, cancel := context.WithTimeout(ctx, b.dialTimeout)
		r, err := DialRemote(dctx, man.Address, man.Timeout, b.dialOpts...)
		cancel()
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, r)
		if r.Name() != man.Name {
			logging.L().Warn("native package host serves a different name", "package", man.Name, "served", r.Name(), "address", man.Address)
		}
		pkg = r
	default:
		p, err := b.reg.New(man.Entry)
		if err != nil {
			return nil, notFound(err)
		}
		pkg = p
	}

	m := &costa.Module{Ecosystem: costa.Native, ID: name, Path: dir, Exports: &bound{name: man.Name, FuncSet: pkg}}
	b.modules[dir] = m
	logging.L().Debug("native package loaded", "package", man.Name, "version", man.Version, "transport", man.Transport, "path", dir)
	return m, nil
}

// Close releases every remote connection opened by Import.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	b.closers = nil
	b.modules = map[string]*costa.Module{}
	return errors.Join(errs...)
}

func validName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid package name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("package name %q contains a path separator", name)
	}
	return nil
}

// bound names the package in unknown-function errors.
type bound struct {
	costa.FuncSet
	name string
}

func (p *bound) Call(ctx context.Context, fn string, args []any) (any, error) {
	out, err := p.FuncSet.Call(ctx, fn, args)
	var ufe *UnknownFunctionError
	if errors.As(err, &ufe) && ufe.Package == "" {
		ufe.Package = p.name
	}
	return out, err
}
