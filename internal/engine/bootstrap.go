package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"costa/internal/artifact"
	"costa/internal/config"
	"costa/internal/costa"
	"costa/internal/logging"
	"costa/internal/native"
	_ "costa/internal/native/numeric"
	"costa/internal/pipeline"
	"costa/internal/script"
	"costa/internal/telemetry"
	"costa/sink"
	"costa/sink/stdout"
)

func Bootstrap(ctx context.Context, cfg Config) (*Engine, error) {
	// 1. runtime config + logging
	rt, err := config.LoadRuntime(cfg.RuntimePath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logOpts := logging.Options{Level: rt.Log.Level, JSON: rt.Log.JSON}
	if cfg.LogLevel != "" {
		logOpts.Level = cfg.LogLevel
	}
	if cfg.LogJSON != nil {
		logOpts.JSON = *cfg.LogJSON
	}
	logging.Configure(logOpts)

	// 2. pipeline plan
	plan, err := pipeline.Compile(cfg.PipelinePath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	runID := uuid.NewString()
	e := &Engine{runID: runID}

	// 3. metrics
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	if rt.Metrics.Enabled {
		e.metricsSrv = telemetry.Expose(rt.Metrics.Port, reg)
	}

	// 4. stage event sinks
	var adapters []sink.Adapter
	for _, name := range rt.Events.Sinks {
		a, err := newSink(name, rt.Events, cfg)
		if err != nil {
			closeAll(adapters)
			e.shutdown()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		adapters = append(adapters, a)
	}
	e.events = sink.NewObserver(runID, plan.Name, adapters...)

	// 5. ecosystems + stage runner
	hostPaths := rt.HostSearchPaths
	if len(hostPaths) == 0 {
		hostPaths = script.HostSearchPaths()
	}
	e.bridge = native.NewBridge(native.WithDialTimeout(rt.Native.DialTimeout))
	host := script.NewHost(script.Options{GlobalFolders: hostPaths})
	stages := costa.New(costa.Config{
		Workspace:       plan.Workspace,
		Framework:       plan.Framework,
		HostSearchPaths: hostPaths,
		Loader:          host,
		Managed:         host,
		Native:          e.bridge,
		Observers:       []costa.Observer{metrics, e.events},
	})

	// 6. artifacts
	opts := []pipeline.Option{pipeline.WithRunID(runID), pipeline.WithStageTimeout(rt.StageTimeout)}
	if rt.Artifacts.Enabled {
		client, err := artifact.NewMinIOClient(rt.Artifacts)
		if err != nil {
			e.shutdown()
			return nil, fmt.Errorf("artifacts: %w", err)
		}
		opts = append(opts, pipeline.WithPublisher(artifact.NewPublisher(client, rt.Artifacts)))
	}

	e.runner = pipeline.NewRunner(plan, stages, opts...)
	logging.L().Info("engine ready", "run_id", runID, "pipeline", plan.Name,
		"dataflow", len(plan.Dataflow), "sinks", rt.Events.Sinks, "metrics", rt.Metrics.Enabled)
	return e, nil
}

func newSink(name string, ev config.EventsConfig, cfg Config) (sink.Adapter, error) {
	a, err := sink.NewAdapter(name)
	if err != nil {
		return nil, err
	}
	switch name {
	case "stdout":
		err = a.Configure(stdout.Config{Pretty: ev.Stdout.Pretty, Writer: cfg.EventWriter})
	case "kafka":
		err = a.Configure(ev.Kafka)
	default:
		err = fmt.Errorf("no config block for sink %q", name)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func closeAll(adapters []sink.Adapter) {
	for _, a := range adapters {
		_ = a.Close()
	}
}
