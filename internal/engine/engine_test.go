package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"costa/sink"
)

func write(t *testing.T, dir, rel, body string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// project lays out a pipeline whose data flow goes through the in-process
// numeric package and a framework helper from node_modules.
func project(t *testing.T, modelCheck string) string {
	dir := t.TempDir()
	write(t, dir, "framework/site-packages/numeric/package.yml", "name: numeric\ntransport: inproc\n")
	write(t, dir, "framework/node_modules/rows/index.js", `
exports.of = function (xs) { return { rows: xs }; };
`)
	write(t, dir, "scripts/source.js", `
module.exports = async function (query, ctx) {
  const rows = [];
  for (let i = 1; i <= query.count; i++) rows.push(i);
  return rows;
};
`)
	write(t, dir, "scripts/scale.js", `
exports.dataflow = async function (data, query, ctx) {
  const np = await ctx.importNativeModule("numeric");
  const rows = await ctx.importManagedModule("rows");
  return rows.of(np.scale(data, query.factor));
};
`)
	write(t, dir, "scripts/normalize.js", `
exports.default = async function (data, query, ctx) {
  const np = await ctx.importNativeModule("numeric");
  return { rows: np.normalize(data.rows) };
};
`)
	write(t, dir, "scripts/train.js", `
exports.model = async function (data, opts, ctx) {
  `+modelCheck+`
};
`)
	return write(t, dir, "pipeline.yml", `schema_version: v1
name: doubling
datasource:
  path: scripts/source.js
  query: {count: 3}
dataflow:
  - path: scripts/scale.js
    query: {factor: 2}
  - path: scripts/normalize.js
model:
  path: scripts/train.js
  query: {epochs: 5}
  train: {epochs: 1, batch: 8}
`)
}

func events(t *testing.T, buf *bytes.Buffer) []sink.Event {
	t.Helper()
	var out []sink.Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev sink.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestEngine_RunsPipelineEndToEnd(t *testing.T) {
	p := project(t, `
  if (data.rows.length !== 3 || data.rows[1] !== 0.5 || data.rows[2] !== 1) {
    throw new Error("unexpected rows " + JSON.stringify(data.rows));
  }
  if (opts.epochs !== 5 || opts.batch !== 8) {
    throw new Error("unexpected options " + JSON.stringify(opts));
  }
  if (!ctx.workspace.modelDir) throw new Error("no model dir");
`)
	var buf bytes.Buffer
	e, err := Bootstrap(context.Background(), Config{PipelinePath: p, EventWriter: &buf})
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, e.RunID(), res.RunID)
	require.Equal(t, "doubling", res.Pipeline)
	require.Len(t, res.Stages, 4)

	evs := events(t, &buf)
	require.Len(t, evs, 8)
	for _, ev := range evs {
		require.Equal(t, e.RunID(), ev.RunID)
		require.Equal(t, "doubling", ev.Pipeline)
	}
	require.Equal(t, "DataSource", evs[0].Stage)
	require.Equal(t, "started", evs[0].Phase)
	require.Equal(t, "DataFlow", evs[5].Stage)
	require.Equal(t, 1, evs[5].Index, "second data-flow script keeps its chain position")
	require.Equal(t, "Model", evs[7].Stage)
	require.Equal(t, "succeeded", evs[7].Phase)

	_, err = os.Stat(filepath.Join(filepath.Dir(p), ".costa", "model"))
	require.NoError(t, err, "workspace directories are created")
}

func TestEngine_ModelFailureIsReported(t *testing.T) {
	p := project(t, `throw new Error("diverged");`)
	var buf bytes.Buffer
	e, err := Bootstrap(context.Background(), Config{PipelinePath: p, EventWriter: &buf})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.ErrorContains(t, err, "diverged")

	evs := events(t, &buf)
	last := evs[len(evs)-1]
	require.Equal(t, "Model", last.Stage)
	require.Equal(t, "failed", last.Phase)
	require.Contains(t, last.Error, "diverged")
}

func TestBootstrap_UnknownSink(t *testing.T) {
	p := project(t, "")
	t.Setenv("COSTA__EVENTS__SINKS", "stdout,carrier-pigeon")

	_, err := Bootstrap(context.Background(), Config{PipelinePath: p})
	require.ErrorContains(t, err, "carrier-pigeon")
}

func TestBootstrap_BadPipeline(t *testing.T) {
	p := write(t, t.TempDir(), "broken.yml", "schema_version: v1\n")
	_, err := Bootstrap(context.Background(), Config{PipelinePath: p})
	require.Error(t, err)
}
