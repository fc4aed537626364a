package engine

import (
	"context"
	"net/http"
	"time"

	"costa/internal/logging"
	"costa/internal/native"
	"costa/internal/pipeline"
	"costa/sink"
)

type Engine struct {
	runID      string
	runner     *pipeline.Runner
	bridge     *native.Bridge
	events     *sink.Observer
	metricsSrv *http.Server
}

func (e *Engine) RunID() string { return e.runID }

// Run executes the pipeline once and releases everything Bootstrap opened.
func (e *Engine) Run(ctx context.Context) (*pipeline.Result, error) {
	defer e.shutdown()
	return e.runner.Run(ctx)
}

func (e *Engine) shutdown() {
	if e.events != nil {
		if err := e.events.Close(); err != nil {
			logging.L().Warn("closing sinks", "err", err)
		}
	}
	if e.bridge != nil {
		if err := e.bridge.Close(); err != nil {
			logging.L().Warn("closing native packages", "err", err)
		}
	}
	if e.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.metricsSrv.Shutdown(ctx)
	}
}
