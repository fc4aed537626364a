package sink

import (
	"errors"

	"costa/internal/costa"
	"costa/internal/logging"
)

// Observer turns stage events of one run into sink events and pushes them to
// every adapter. Push failures are logged; they never fail a stage.
type Observer struct {
	runID    string
	pipeline string
	sinks    []Adapter
}

func NewObserver(runID, pipeline string, sinks ...Adapter) *Observer {
	return &Observer{runID: runID, pipeline: pipeline, sinks: sinks}
}

func (o *Observer) Observe(ev costa.StageEvent) {
	out := Event{
		RunID:    o.runID,
		Pipeline: o.pipeline,
		Stage:    ev.Stage.String(),
		Script:   ev.Script,
		Path:     ev.Path,
		Index:    ev.Index,
		Phase:    string(ev.Phase),
		Time:     ev.Started.Add(ev.Duration).UTC(),
	}
	if ev.Phase != costa.PhaseStarted {
		out.DurationMS = float64(ev.Duration.Microseconds()) / 1000
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	for _, s := range o.sinks {
		if err := s.Push(out); err != nil {
			logging.L().Warn("sink push failed", "stage", out.Stage, "script", out.Script, "err", err)
		}
	}
}

func (o *Observer) Close() error {
	var errs []error
	for _, s := range o.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
