package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"costa/internal/spec"
)

const SupportedSchema = "v1"

// LoadPipelineSpec parses a pipeline definition, YAML or HCL by extension,
// validates schema_version and makes every path in it absolute against the
// file's directory.
func LoadPipelineSpec(path string) (spec.File, error) {
	var (
		cfg spec.File
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		cfg, err = decodeHCLPipeline(path)
	default:
		cfg, err = decodeYAMLPipeline(path)
	}
	if err != nil {
		return cfg, err
	}

	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SupportedSchema
	}
	if cfg.SchemaVersion != SupportedSchema {
		return cfg, fmt.Errorf("pipeline schema_version %q not supported (want %q)", cfg.SchemaVersion, SupportedSchema)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return cfg, err
	}
	resolvePipeline(&cfg, filepath.Dir(abs))
	if cfg.Name == "" {
		cfg.Name = baseName(abs)
	}
	return cfg, validatePipeline(cfg)
}

func decodeYAMLPipeline(path string) (spec.File, error) {
	var cfg spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse pipeline %s: %w", path, err)
	}
	return cfg, nil
}

func resolvePipeline(cfg *spec.File, dir string) {
	ws := &cfg.Workspace
	ws.DataDir = absOr(dir, ws.DataDir, filepath.Join(".costa", "data"))
	ws.ModelDir = absOr(dir, ws.ModelDir, filepath.Join(".costa", "model"))
	ws.CacheDir = absOr(dir, ws.CacheDir, filepath.Join(".costa", "cache"))
	ws.FrameworkDir = absOr(dir, ws.FrameworkDir, "framework")

	resolveScript(&cfg.DataSource, dir)
	for i := range cfg.Dataflow {
		resolveScript(&cfg.Dataflow[i], dir)
	}
	resolveScript(&cfg.Model.ScriptSpec, dir)
}

func resolveScript(s *spec.ScriptSpec, dir string) {
	if s.Path == "" {
		return
	}
	s.Path = absOr(dir, s.Path, "")
	if s.Name == "" {
		s.Name = baseName(s.Path)
	}
}

func validatePipeline(cfg spec.File) error {
	if cfg.DataSource.Path == "" {
		return fmt.Errorf("pipeline %q: datasource.path is required", cfg.Name)
	}
	for i, s := range cfg.Dataflow {
		if s.Path == "" {
			return fmt.Errorf("pipeline %q: dataflow[%d].path is required", cfg.Name, i)
		}
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("pipeline %q: model.path is required", cfg.Name)
	}
	return nil
}

func absOr(dir, p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func baseName(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}
