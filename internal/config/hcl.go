package config

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"costa/internal/spec"
)

type hclPipeline struct {
	SchemaVersion string        `hcl:"schema_version,optional"`
	Name          string        `hcl:"name,optional"`
	Workspace     *hclWorkspace `hcl:"workspace,block"`
	Framework     *hclFramework `hcl:"framework,block"`
	DataSource    hclScript     `hcl:"datasource,block"`
	Dataflow      []hclScript   `hcl:"dataflow,block"`
	Model         hclModel      `hcl:"model,block"`
}

type hclWorkspace struct {
	DataDir      string `hcl:"data_dir,optional"`
	ModelDir     string `hcl:"model_dir,optional"`
	CacheDir     string `hcl:"cache_dir,optional"`
	FrameworkDir string `hcl:"framework_dir,optional"`
}

type hclFramework struct {
	NativePackagePath string `hcl:"native_package_path,optional"`
	JSPackagePath     string `hcl:"js_package_path,optional"`
}

type hclScript struct {
	Name  string    `hcl:"name,label"`
	Path  string    `hcl:"path"`
	Query cty.Value `hcl:"query,optional"`
}

type hclModel struct {
	Name  string    `hcl:"name,label"`
	Path  string    `hcl:"path"`
	Query cty.Value `hcl:"query,optional"`
	Train cty.Value `hcl:"train,optional"`
}

func decodeHCLPipeline(path string) (spec.File, error) {
	var out spec.File

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return out, fmt.Errorf("failed to parse HCL file %s: %s", path, diags.Error())
	}
	var p hclPipeline
	if diags := gohcl.DecodeBody(file.Body, nil, &p); diags.HasErrors() {
		return out, fmt.Errorf("failed to decode HCL file %s: %s", path, diags.Error())
	}

	out.SchemaVersion = p.SchemaVersion
	out.Name = p.Name
	if p.Workspace != nil {
		out.Workspace = spec.WorkspaceSpec(*p.Workspace)
	}
	if p.Framework != nil {
		out.Framework = spec.FrameworkSpec(*p.Framework)
	}

	var err error
	if out.DataSource, err = p.DataSource.toSpec(); err != nil {
		return out, fmt.Errorf("%s: datasource %q: %w", path, p.DataSource.Name, err)
	}
	for _, s := range p.Dataflow {
		ss, err := s.toSpec()
		if err != nil {
			return out, fmt.Errorf("%s: dataflow %q: %w", path, s.Name, err)
		}
		out.Dataflow = append(out.Dataflow, ss)
	}

	ms, err := hclScript{Name: p.Model.Name, Path: p.Model.Path, Query: p.Model.Query}.toSpec()
	if err != nil {
		return out, fmt.Errorf("%s: model %q: %w", path, p.Model.Name, err)
	}
	train, err := objectToMap(p.Model.Train)
	if err != nil {
		return out, fmt.Errorf("%s: model %q: train: %w", path, p.Model.Name, err)
	}
	out.Model = spec.ModelSpec{ScriptSpec: ms, Train: train}
	return out, nil
}

func (s hclScript) toSpec() (spec.ScriptSpec, error) {
	q, err := objectToMap(s.Query)
	if err != nil {
		return spec.ScriptSpec{}, fmt.Errorf("query: %w", err)
	}
	return spec.ScriptSpec{Name: s.Name, Path: s.Path, Query: q}, nil
}

func objectToMap(v cty.Value) (map[string]any, error) {
	if v.IsNull() {
		return nil, nil
	}
	n, err := ctyToNative(v)
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("want an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// ctyToNative converts a cty.Value to plain Go values. Whole numbers become
// int64, other numbers float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert cty.Number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			k, el := it.Element()
			n, err := ctyToNative(el)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", k.AsString(), err)
			}
			out[k.AsString()] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty type: %s", ty.FriendlyName())
}
