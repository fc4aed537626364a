package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"costa/internal/costa"
	"costa/internal/logging"

	"github.com/google/uuid"
)

// Stages is the stage execution surface; *costa.Costa implements it.
type Stages interface {
	InitContext() error
	RunDataSource(ctx context.Context, s costa.Script) (costa.DatasetHandle, error)
	RunDataflow(ctx context.Context, h costa.DatasetHandle, scripts []costa.Script) (costa.DatasetHandle, error)
	RunModel(ctx context.Context, h costa.DatasetHandle, s costa.Script, opts costa.ModelOptions) error
}

// Publisher ships what the model stage wrote to the model directory.
type Publisher interface {
	Publish(ctx context.Context, runID, dir string) ([]string, error)
}

type StageTiming struct {
	Stage    costa.StageType
	Script   string
	Duration time.Duration
}

type Result struct {
	RunID     string
	Pipeline  string
	Started   time.Time
	Duration  time.Duration
	Stages    []StageTiming
	Artifacts []string
}

type Runner struct {
	plan   *Plan
	stages Stages

	runID        string
	stageTimeout time.Duration
	publisher    Publisher
}

type Option func(*Runner)

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option { return func(r *Runner) { r.runID = id } }

// WithStageTimeout bounds each stage invocation; each data-flow script gets
// its own bound.
func WithStageTimeout(d time.Duration) Option { return func(r *Runner) { r.stageTimeout = d } }

func WithPublisher(p Publisher) Option { return func(r *Runner) { r.publisher = p } }

func NewRunner(plan *Plan, stages Stages, opts ...Option) *Runner {
	r := &Runner{plan: plan, stages: stages}
	for _, o := range opts {
		o(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

func (r *Runner) RunID() string { return r.runID }

// Run executes the pipeline once: context, data source, data-flow chain in
// order, model, then artifact publishing. Stage errors are returned as the
// stage produced them.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: r.runID, Pipeline: r.plan.Name, Started: time.Now()}
	log := logging.L().With("run_id", r.runID, "pipeline", r.plan.Name)
	defer func() { res.Duration = time.Since(res.Started) }()

	if err := prepareWorkspace(r.plan.Workspace); err != nil {
		return res, err
	}
	if err := r.stages.InitContext(); err != nil {
		return res, err
	}

	var handle costa.DatasetHandle
	err := r.stage(ctx, res, r.plan.DataSource, func(sctx context.Context) error {
		h, err := r.stages.RunDataSource(sctx, r.plan.DataSource)
		handle = h
		return err
	})
	if err != nil {
		return res, err
	}

	for i, s := range r.plan.Dataflow {
		step := []costa.Script{s}
		err := r.stage(costa.WithChainOffset(ctx, i), res, s, func(sctx context.Context) error {
			h, err := r.stages.RunDataflow(sctx, handle, step)
			if err == nil {
				handle = h
			}
			return err
		})
		if err != nil {
			return res, err
		}
	}

	err = r.stage(ctx, res, r.plan.Model, func(sctx context.Context) error {
		return r.stages.RunModel(sctx, handle, r.plan.Model, costa.ModelOptions{Train: r.plan.Train})
	})
	if err != nil {
		return res, err
	}

	if r.publisher != nil {
		keys, err := r.publisher.Publish(ctx, r.runID, r.plan.Workspace.ModelDir)
		res.Artifacts = keys
		if err != nil {
			return res, err
		}
	}
	log.Info("pipeline finished", "stages", len(res.Stages), "duration", time.Since(res.Started))
	return res, nil
}

func (r *Runner) stage(ctx context.Context, res *Result, s costa.Script, fn func(context.Context) error) error {
	sctx, cancel := ctx, context.CancelFunc(func() {})
	if r.stageTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
	}
	defer cancel()

	start := time.Now()
	err := fn(sctx)
	d := time.Since(start)
	res.Stages = append(res.Stages, StageTiming{Stage: s.Type, Script: s.Name, Duration: d})

	log := logging.L().With("run_id", r.runID, "stage", s.Type.String(), "script", s.Name, "path", s.Path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Error("stage timed out", "timeout", r.stageTimeout, "err", err)
		} else {
			log.Error("stage failed", "err", err)
		}
		return err
	}
	log.Debug("stage finished", "duration", d)
	return nil
}

func prepareWorkspace(ws costa.Workspace) error {
	for _, d := range []string{ws.DataDir, ws.ModelDir, ws.CacheDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("workspace: %w", err)
		}
	}
	return nil
}
