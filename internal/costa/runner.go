package costa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type Phase string

const (
	PhaseStarted   Phase = "started"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// StageEvent describes one stage invocation. Index is the position of the
// script inside a data-flow chain and zero otherwise.
type StageEvent struct {
	Stage    StageType
	Script   string
	Path     string
	Index    int
	Phase    Phase
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Observer is notified around every stage invocation. It must not block.
type Observer interface {
	Observe(StageEvent)
}

type ObserverFunc func(StageEvent)

func (f ObserverFunc) Observe(ev StageEvent) { f(ev) }

type chainOffsetKey struct{}

// WithChainOffset marks ctx as running part of a longer data-flow chain that
// starts at position n. RunDataflow numbers its events from n under ctx.
func WithChainOffset(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, chainOffsetKey{}, n)
}

// ChainOffset returns the offset set by WithChainOffset, or zero.
func ChainOffset(ctx context.Context) int {
	n, _ := ctx.Value(chainOffsetKey{}).(int)
	return n
}

// Config is the construction input of a runner.
type Config struct {
	Workspace       Workspace
	Framework       Framework
	HostSearchPaths []string

	Loader    ScriptLoader
	Managed   ManagedImporter
	Native    NativeImporter
	Observers []Observer
}

// Costa runs the stages of one pipeline in order: data source, data-flow
// chain, model. It adds no retries and never wraps stage errors.
type Costa struct {
	cfg Config
	ec  atomic.Pointer[ExecutionContext]

	mu sync.Mutex
}

func New(cfg Config) *Costa {
	return &Costa{cfg: cfg}
}

// InitContext builds the execution context. Calling it again rebuilds the
// context; stages already running keep the one they started with.
func (c *Costa) InitContext() error {
	ec, err := BuildContext(c.cfg.Workspace, c.cfg.Framework, ContextDeps{
		Managed:         c.cfg.Managed,
		Native:          c.cfg.Native,
		HostSearchPaths: c.cfg.HostSearchPaths,
	})
	if err != nil {
		return err
	}
	c.ec.Store(ec)
	return nil
}

// Context returns the execution context, or nil before InitContext.
func (c *Costa) Context() *ExecutionContext { return c.ec.Load() }

func (c *Costa) context() (*ExecutionContext, error) {
	ec := c.ec.Load()
	if ec == nil {
		return nil, ErrContextNotInitialized
	}
	if c.cfg.Loader == nil {
		return nil, errors.New("costa: script loader is required")
	}
	return ec, nil
}

func (c *Costa) RunDataSource(ctx context.Context, s Script) (DatasetHandle, error) {
	ec, err := c.context()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.invoke(ctx, s, DataSource, 0, func(entry EntryFunc) (any, error) {
		return entry(ctx, s.Query, ec)
	})
}

// RunDataflow folds the handle through scripts left to right. An empty chain
// returns the handle unchanged; the first failure ends the fold.
func (c *Costa) RunDataflow(ctx context.Context, h DatasetHandle, scripts []Script) (DatasetHandle, error) {
	ec, err := c.context()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	base := ChainOffset(ctx)
	cur := h
	for i, s := range scripts {
		in := cur
		out, err := c.invoke(ctx, s, DataFlow, base+i, func(entry EntryFunc) (any, error) {
			return entry(ctx, in, s.Query, ec)
		})
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

func (c *Costa) RunModel(ctx context.Context, h DatasetHandle, s Script, opts ModelOptions) error {
	ec, err := c.context()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := MergeOptions(opts.Train, s.Query)
	_, err = c.invoke(ctx, s, Model, 0, func(entry EntryFunc) (any, error) {
		return entry(ctx, h, merged, ec)
	})
	return err
}

// MergeOptions shallow-merges query over train; query wins on shared keys.
func MergeOptions(train, query map[string]any) map[string]any {
	out := make(map[string]any, len(train)+len(query))
	for k, v := range train {
		out[k] = v
	}
	for k, v := range query {
		out[k] = v
	}
	return out
}

func (c *Costa) invoke(ctx context.Context, s Script, stage StageType, idx int, call func(EntryFunc) (any, error)) (any, error) {
	ev := StageEvent{Stage: stage, Script: s.Name, Path: s.Path, Index: idx, Phase: PhaseStarted, Started: time.Now()}
	c.notify(ev)

	entry, err := c.cfg.Loader.Load(ctx, s, stage)
	var out any
	if err == nil {
		out, err = call(entry)
	}

	ev.Duration = time.Since(ev.Started)
	ev.Phase, ev.Err = PhaseSucceeded, err
	if err != nil {
		ev.Phase = PhaseFailed
	}
	c.notify(ev)
	return out, err
}

func (c *Costa) notify(ev StageEvent) {
	for _, o := range c.cfg.Observers {
		o.Observe(ev)
	}
}
