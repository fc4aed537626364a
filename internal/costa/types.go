package costa

import (
	"context"
	"path/filepath"
)

const (
	DefaultNativePackagePath = "site-packages"
	DefaultJSPackagePath     = "node_modules"
)

// Workspace holds the absolute directories a pipeline run works in.
type Workspace struct {
	DataDir      string `json:"dataDir"`
	ModelDir     string `json:"modelDir"`
	CacheDir     string `json:"cacheDir"`
	FrameworkDir string `json:"frameworkDir"`
}

// Framework points at the package roots of both ecosystems, relative to
// Workspace.FrameworkDir. Empty fields fall back to the defaults.
type Framework struct {
	NativePackagePath string `json:"nativePackagePath,omitempty"`
	JSPackagePath     string `json:"jsPackagePath,omitempty"`
}

func (f Framework) withDefaults() Framework {
	if f.NativePackagePath == "" {
		f.NativePackagePath = DefaultNativePackagePath
	}
	if f.JSPackagePath == "" {
		f.JSPackagePath = DefaultJSPackagePath
	}
	return f
}

// NativeRoot is the directory native packages are resolved against.
func NativeRoot(ws Workspace, fw Framework) string {
	return joinFramework(ws.FrameworkDir, fw.withDefaults().NativePackagePath)
}

// ManagedSearchPaths returns the managed module search list: the framework's
// package directory first, then the host chain in order.
func ManagedSearchPaths(ws Workspace, fw Framework, host []string) []string {
	paths := make([]string, 0, len(host)+1)
	paths = append(paths, joinFramework(ws.FrameworkDir, fw.withDefaults().JSPackagePath))
	return append(paths, host...)
}

func joinFramework(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

type StageType string

const (
	DataSource StageType = "DataSource"
	DataFlow   StageType = "DataFlow"
	Model      StageType = "Model"
)

// ExportName is the member a script may export to provide the entry for this
// stage type.
func (t StageType) ExportName() string {
	switch t {
	case DataSource:
		return "datasource"
	case DataFlow:
		return "dataflow"
	case Model:
		return "model"
	}
	return ""
}

func (t StageType) String() string { return string(t) }

// Script describes one plugin script of a pipeline. It is read-only here.
type Script struct {
	Name  string
	Path  string
	Query map[string]any
	Type  StageType
}

// DatasetHandle is the value threaded from the data source through the
// data-flow chain into the model. Its shape belongs to the scripts.
type DatasetHandle = any

// ModelOptions carries the runtime options handed to the model stage.
type ModelOptions struct {
	Train map[string]any
}

// Module is an imported module from either ecosystem.
type Module struct {
	Ecosystem Ecosystem
	ID        string
	Path      string
	Exports   any
}

// FuncSet is implemented by module exports that are called by function name,
// as native packages are.
type FuncSet interface {
	Functions() []string
	Call(ctx context.Context, fn string, args []any) (any, error)
}

// EntryFunc is a loaded stage entry point.
type EntryFunc func(ctx context.Context, args ...any) (any, error)

// ScriptLoader turns a script into a callable entry point for a stage.
type ScriptLoader interface {
	Load(ctx context.Context, s Script, stage StageType) (EntryFunc, error)
}

// ManagedImporter resolves and imports a managed module against an explicit
// search path list.
type ManagedImporter interface {
	Import(ctx context.Context, id string, searchPaths []string) (*Module, error)
}

// NativeImporter resolves a native package against an explicit root.
type NativeImporter interface {
	Import(ctx context.Context, root, name string) (*Module, error)
}
