package script

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"costa/internal/costa"

	"github.com/stretchr/testify/require"
)

// recorder is a native package that keeps the arguments it was called with.
type recorder struct {
	calls [][]any
}

func (r *recorder) Functions() []string { return []string{"record"} }

func (r *recorder) Call(_ context.Context, fn string, args []any) (any, error) {
	r.calls = append(r.calls, args)
	return len(r.calls), nil
}

type fakeNative struct {
	pkgs map[string]costa.FuncSet
}

func (f *fakeNative) Import(_ context.Context, root, name string) (*costa.Module, error) {
	p, ok := f.pkgs[name]
	if !ok {
		return nil, &costa.ModuleNotFoundError{Ecosystem: costa.Native, ID: name, SearchPaths: []string{root}}
	}
	return &costa.Module{Ecosystem: costa.Native, ID: name, Path: filepath.Join(root, name), Exports: p}, nil
}

func loadAndCall(t *testing.T, h *Host, path string, stage costa.StageType, args ...any) (any, error) {
	t.Helper()
	entry, err := h.Load(context.Background(), costa.Script{Name: filepath.Base(path), Path: path}, stage)
	require.NoError(t, err)
	return entry(context.Background(), args...)
}

func TestLoad_CallableExportsWinOverMembers(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "both.js", `
module.exports = function () { return "fn"; };
module.exports.dataflow = function () { return "member"; };
module.exports.default = function () { return "default"; };
`)
	for _, stage := range []costa.StageType{costa.DataSource, costa.DataFlow, costa.Model} {
		out, err := loadAndCall(t, NewHost(Options{}), p, stage)
		require.NoError(t, err)
		require.Equal(t, "fn", out)
	}
}

func TestLoad_NamedMemberPerStage(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "members.js", `
exports.datasource = function () { return "datasource"; };
exports.dataflow = function () { return "dataflow"; };
exports.model = function () { return "model"; };
exports.default = function () { return "default"; };
`)
	h := NewHost(Options{})
	for _, stage := range []costa.StageType{costa.DataSource, costa.DataFlow, costa.Model} {
		out, err := loadAndCall(t, h, p, stage)
		require.NoError(t, err)
		require.Equal(t, stage.ExportName(), out)
	}
}

func TestLoad_DefaultFallback(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "def.js", `exports.default = function (x) { return x + 1; };`)

	out, err := loadAndCall(t, NewHost(Options{}), p, costa.Model, 41)
	require.NoError(t, err)
	require.EqualValues(t, 42, out)
}

func TestLoad_NoEntryPoint(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "empty.js", `exports.helper = function () {}; exports.model = 3;`)

	_, err := NewHost(Options{}).Load(context.Background(), costa.Script{Name: "empty-plugin", Path: p}, costa.Model)
	var epe *costa.EntryPointNotFoundError
	require.ErrorAs(t, err, &epe)
	require.Equal(t, "empty-plugin", epe.Script)
	require.Equal(t, costa.Model, epe.Stage)
	require.Contains(t, err.Error(), "empty-plugin")
	require.Contains(t, err.Error(), p)
}

func TestLoad_MissingScript(t *testing.T) {
	_, err := NewHost(Options{}).Load(context.Background(), costa.Script{Name: "gone", Path: filepath.Join(t.TempDir(), "gone.js")}, costa.DataSource)
	var mnf *costa.ModuleNotFoundError
	require.ErrorAs(t, err, &mnf)
	require.Equal(t, "gone", mnf.ID)
}

func TestLoad_SyntaxErrorSurfaces(t *testing.T) {
	p := writeFile(t, t.TempDir(), "broken.js", `module.exports = function ( {`)

	_, err := NewHost(Options{}).Load(context.Background(), costa.Script{Name: "broken", Path: p}, costa.DataSource)
	require.Error(t, err)
}

func TestInvoke_RejectedPromise(t *testing.T) {
	p := writeFile(t, t.TempDir(), "reject.js", `module.exports = async function () { throw new Error("nope"); };`)

	_, err := loadAndCall(t, NewHost(Options{}), p, costa.DataSource)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	require.Contains(t, rej.Message, "nope")
}

func TestInvoke_UnsettledPromise(t *testing.T) {
	p := writeFile(t, t.TempDir(), "hang.js", `module.exports = function () { return new Promise(function () {}); };`)

	_, err := loadAndCall(t, NewHost(Options{}), p, costa.DataSource)
	require.ErrorIs(t, err, ErrUnsettledPromise)
}

func TestInvoke_ContextCancelInterrupts(t *testing.T) {
	p := writeFile(t, t.TempDir(), "spin.js", `module.exports = function () { for (;;) {} };`)
	h := NewHost(Options{})
	entry, err := h.Load(context.Background(), costa.Script{Name: "spin", Path: p}, costa.DataSource)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = entry(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the runtime stays usable after an interrupt
	q := writeFile(t, t.TempDir(), "ok.js", `module.exports = function () { return 1; };`)
	out, err := loadAndCall(t, h, q, costa.DataSource)
	require.NoError(t, err)
	require.EqualValues(t, 1, out)
}

func TestRequire_RelativeAndNodeModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plugins/lib/scale.js", `module.exports = function (x) { return x * 10; };`)
	writeFile(t, dir, "plugins/node_modules/offset/package.json", `{"main": "main.js"}`)
	writeFile(t, dir, "plugins/node_modules/offset/main.js", `exports.by = require("./amount.json").by;`)
	writeFile(t, dir, "plugins/node_modules/offset/amount.json", `{"by": 2}`)
	p := writeFile(t, dir, "plugins/calc.js", `
var scale = require("./lib/scale");
var offset = require("offset");
module.exports = function (x) { return scale(x) + offset.by; };
`)

	out, err := loadAndCall(t, NewHost(Options{}), p, costa.DataFlow, 4)
	require.NoError(t, err)
	require.EqualValues(t, 42, out)
}

func TestRequire_ModulesAreCached(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "counter.js", `var n = 0; module.exports = function () { return ++n; };`)
	p := writeFile(t, dir, "use.js", `
var a = require("./counter");
var b = require("./counter.js");
module.exports = function () { a(); return b(); };
`)

	out, err := loadAndCall(t, NewHost(Options{}), p, costa.DataSource)
	require.NoError(t, err)
	require.EqualValues(t, 2, out)
}

func newCosta(t *testing.T, h *Host, native costa.NativeImporter) (*costa.Costa, costa.Workspace) {
	t.Helper()
	root := t.TempDir()
	ws := costa.Workspace{
		DataDir:      filepath.Join(root, "data"),
		ModelDir:     filepath.Join(root, "model"),
		CacheDir:     filepath.Join(root, "cache"),
		FrameworkDir: filepath.Join(root, "framework"),
	}
	c := costa.New(costa.Config{Workspace: ws, Loader: h, Managed: h, Native: native})
	require.NoError(t, c.InitContext())
	return c, ws
}

func TestContext_ImportManagedModule(t *testing.T) {
	h := NewHost(Options{})
	c, ws := newCosta(t, h, &fakeNative{})
	writeFile(t, ws.FrameworkDir, "node_modules/stats/index.js", `exports.mean = function (xs) { return xs.reduce(function (a, b) { return a + b; }, 0) / xs.length; };`)
	p := writeFile(t, t.TempDir(), "src.js", `
module.exports = async function (query, ctx) {
  var stats = await ctx.importManagedModule("stats");
  return stats.mean([2, 4, 6]);
};
`)

	out, err := c.RunDataSource(context.Background(), costa.Script{Name: "src", Path: p})
	require.NoError(t, err)
	require.EqualValues(t, 4, out)
}

func TestContext_ImportErrorsReachGo(t *testing.T) {
	h := NewHost(Options{})
	c, _ := newCosta(t, h, &fakeNative{})
	p := writeFile(t, t.TempDir(), "src.js", `
exports.datasource = async function (query, ctx) {
  await ctx.importNativeModule("tensorlib");
};
`)

	_, err := c.RunDataSource(context.Background(), costa.Script{Name: "src", Path: p})
	var mnf *costa.ModuleNotFoundError
	require.ErrorAs(t, err, &mnf)
	require.Equal(t, costa.Native, mnf.Ecosystem)
	require.Equal(t, "tensorlib", mnf.ID)
}

func TestContext_WorkspaceIsFrozen(t *testing.T) {
	h := NewHost(Options{})
	c, ws := newCosta(t, h, &fakeNative{})
	p := writeFile(t, t.TempDir(), "src.js", `
module.exports = function (query, ctx) {
  "use strict";
  var frozen = Object.isFrozen(ctx.workspace);
  return [frozen, ctx.workspace.dataDir, ctx.workspace.frameworkDir];
};
`)

	out, err := c.RunDataSource(context.Background(), costa.Script{Name: "src", Path: p})
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	want, _ := json.Marshal([]any{true, ws.DataDir, ws.FrameworkDir})
	require.JSONEq(t, string(want), string(raw))
}

func TestContext_StagesCannotRewriteIt(t *testing.T) {
	h := NewHost(Options{})
	rec := &recorder{}
	c, _ := newCosta(t, h, &fakeNative{pkgs: map[string]costa.FuncSet{"recorder": rec}})
	dir := t.TempDir()
	first := writeFile(t, dir, "first.js", `
exports.dataflow = function (data, query, ctx) {
  ctx.importNativeModule = function () { return Promise.resolve("replaced"); };
  ctx.injected = "from first";
  delete ctx.importManagedModule;
  return data;
};
`)
	second := writeFile(t, dir, "second.js", `
exports.dataflow = async function (data, query, ctx) {
  var rec = await ctx.importNativeModule("recorder");
  return [Object.isFrozen(ctx), typeof ctx.injected, typeof ctx.importManagedModule, typeof rec.record];
};
`)

	out, err := c.RunDataflow(context.Background(), 0, []costa.Script{
		{Name: "first", Path: first},
		{Name: "second", Path: second},
	})
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `[true, "undefined", "function", "function"]`, string(raw))
}

func TestContext_RebuildReplacesCachedView(t *testing.T) {
	h := NewHost(Options{})
	c, _ := newCosta(t, h, &fakeNative{})
	p := writeFile(t, t.TempDir(), "src.js", `module.exports = function (query, ctx) { return ctx.workspace.dataDir; };`)
	s := costa.Script{Name: "src", Path: p}

	_, err := c.RunDataSource(context.Background(), s)
	require.NoError(t, err)
	firstView := h.ctxObj
	require.Same(t, c.Context(), h.ctxKey)

	require.NoError(t, c.InitContext())
	_, err = c.RunDataSource(context.Background(), s)
	require.NoError(t, err)
	require.Same(t, c.Context(), h.ctxKey)
	require.NotSame(t, firstView, h.ctxObj)
}

func TestPipeline_EndToEnd(t *testing.T) {
	h := NewHost(Options{})
	rec := &recorder{}
	c, _ := newCosta(t, h, &fakeNative{pkgs: map[string]costa.FuncSet{"recorder": rec}})
	dir := t.TempDir()
	src := writeFile(t, dir, "source.js", `
module.exports = async function (query) { return { rows: [1, 2, 3] }; };
`)
	double := writeFile(t, dir, "double.js", `
exports.dataflow = function (data, query) {
  return { rows: data.rows.map(function (x) { return x * query.factor; }) };
};
`)
	model := writeFile(t, dir, "model.js", `
exports.default = async function (data, opts, ctx) {
  var rec = await ctx.importNativeModule("recorder");
  rec.record(data, opts);
};
`)
	ctx := context.Background()

	h0, err := c.RunDataSource(ctx, costa.Script{Name: "source", Path: src})
	require.NoError(t, err)
	h1, err := c.RunDataflow(ctx, h0, []costa.Script{{Name: "double", Path: double, Query: map[string]any{"factor": 2}}})
	require.NoError(t, err)
	err = c.RunModel(ctx, h1, costa.Script{Name: "model", Path: model, Query: map[string]any{"epochs": 5}},
		costa.ModelOptions{Train: map[string]any{"epochs": 1, "batch": 8}})
	require.NoError(t, err)

	require.Len(t, rec.calls, 1)
	data, err := json.Marshal(rec.calls[0][0])
	require.NoError(t, err)
	require.JSONEq(t, `{"rows":[2,4,6]}`, string(data))

	opts := rec.calls[0][1].(map[string]any)
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	require.Equal(t, []string{"batch", "epochs"}, keys)
	require.EqualValues(t, 5, opts["epochs"])
}

func TestDataflow_HandlePassesThroughUntouched(t *testing.T) {
	h := NewHost(Options{})
	c, _ := newCosta(t, h, &fakeNative{})
	dir := t.TempDir()
	mark := writeFile(t, dir, "mark.js", `module.exports = function (d) { d.seen = (d.seen || 0) + 1; return d; };`)

	out, err := c.RunDataflow(context.Background(), map[string]any{"seen": 0}, []costa.Script{{Name: "a", Path: mark}, {Name: "b", Path: mark}})
	require.NoError(t, err)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	require.JSONEq(t, `{"seen":2}`, string(raw))
}

func TestImport_GoCaller(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cfg.json", `{"epochs": 3}`)
	h := NewHost(Options{})

	m, err := h.Import(context.Background(), "cfg", []string{dir})
	require.NoError(t, err)
	require.Equal(t, costa.Managed, m.Ecosystem)
	require.Equal(t, filepath.Join(dir, "cfg.json"), m.Path)

	_, err = h.Import(context.Background(), "nope", []string{dir})
	require.True(t, errors.As(err, new(*costa.ModuleNotFoundError)))
}
