package pipeline

import (
	"costa/internal/config"
	"costa/internal/costa"
	"costa/internal/spec"
)

// Plan is a pipeline definition ready to run.
type Plan struct {
	Name      string
	Workspace costa.Workspace
	Framework costa.Framework

	DataSource costa.Script
	Dataflow   []costa.Script
	Model      costa.Script
	Train      map[string]any
}

func Compile(path string) (*Plan, error) {
	f, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, err
	}
	return FromSpec(f), nil
}

func FromSpec(f spec.File) *Plan {
	p := &Plan{
		Name: f.Name,
		Workspace: costa.Workspace{
			DataDir:      f.Workspace.DataDir,
			ModelDir:     f.Workspace.ModelDir,
			CacheDir:     f.Workspace.CacheDir,
			FrameworkDir: f.Workspace.FrameworkDir,
		},
		Framework: costa.Framework{
			NativePackagePath: f.Framework.NativePackagePath,
			JSPackagePath:     f.Framework.JSPackagePath,
		},
		DataSource: script(f.DataSource, costa.DataSource),
		Model:      script(f.Model.ScriptSpec, costa.Model),
		Train:      f.Model.Train,
	}
	for _, s := range f.Dataflow {
		p.Dataflow = append(p.Dataflow, script(s, costa.DataFlow))
	}
	return p
}

func script(s spec.ScriptSpec, t costa.StageType) costa.Script {
	return costa.Script{Name: s.Name, Path: s.Path, Query: s.Query, Type: t}
}
