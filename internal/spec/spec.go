package spec

// WorkspaceSpec lists the run directories. Relative paths are taken against
// the pipeline file's directory.
type WorkspaceSpec struct {
	DataDir      string `yaml:"data_dir"`
	ModelDir     string `yaml:"model_dir"`
	CacheDir     string `yaml:"cache_dir"`
	FrameworkDir string `yaml:"framework_dir"`
}

type FrameworkSpec struct {
	NativePackagePath string `yaml:"native_package_path"` // default site-packages
	JSPackagePath     string `yaml:"js_package_path"`     // default node_modules
}

type ScriptSpec struct {
	Name  string         `yaml:"name"`
	Path  string         `yaml:"path"`
	Query map[string]any `yaml:"query"`
}

type ModelSpec struct {
	ScriptSpec `yaml:",inline"`

	// Train holds the runtime training options; query keys win over them.
	Train map[string]any `yaml:"train"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`
	Name          string `yaml:"name"`

	Workspace WorkspaceSpec `yaml:"workspace"`
	Framework FrameworkSpec `yaml:"framework"`

	DataSource ScriptSpec   `yaml:"datasource"`
	Dataflow   []ScriptSpec `yaml:"dataflow"` // applied in order
	Model      ModelSpec    `yaml:"model"`
}
