package costa

import (
	"context"
	"errors"
)

// ImportFunc imports one module by id.
type ImportFunc func(ctx context.Context, id string) (*Module, error)

// ExecutionContext is shared by every stage of a run. It is immutable once
// built.
type ExecutionContext struct {
	importManaged ImportFunc
	importNative  ImportFunc
	workspace     Workspace

	nativeRoot  string
	searchPaths []string
}

// ContextDeps are the ecosystem importers the context binds its closures to.
type ContextDeps struct {
	Managed         ManagedImporter
	Native          NativeImporter
	HostSearchPaths []string
}

// BuildContext assembles the execution context for one runner.
func BuildContext(ws Workspace, fw Framework, deps ContextDeps) (*ExecutionContext, error) {
	if deps.Managed == nil {
		return nil, errors.New("costa: managed importer is required")
	}
	if deps.Native == nil {
		return nil, errors.New("costa: native importer is required")
	}
	if ws.FrameworkDir == "" {
		return nil, errors.New("costa: workspace framework directory is required")
	}

	root := NativeRoot(ws, fw)
	paths := ManagedSearchPaths(ws, fw, deps.HostSearchPaths)
	managed, native := deps.Managed, deps.Native

	return &ExecutionContext{
		importManaged: func(ctx context.Context, id string) (*Module, error) {
			return managed.Import(ctx, id, paths)
		},
		importNative: func(ctx context.Context, name string) (*Module, error) {
			return native.Import(ctx, root, name)
		},
		workspace:   ws,
		nativeRoot:  root,
		searchPaths: paths,
	}, nil
}

func (c *ExecutionContext) ImportManagedModule(ctx context.Context, id string) (*Module, error) {
	return c.importManaged(ctx, id)
}

func (c *ExecutionContext) ImportNativeModule(ctx context.Context, name string) (*Module, error) {
	return c.importNative(ctx, name)
}

// Workspace returns a copy of the run's workspace paths.
func (c *ExecutionContext) Workspace() Workspace { return c.workspace }

func (c *ExecutionContext) NativeRoot() string { return c.nativeRoot }

func (c *ExecutionContext) ManagedSearchPaths() []string {
	return append([]string(nil), c.searchPaths...)
}
