package sink

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is one stage lifecycle record of a pipeline run.
type Event struct {
	RunID      string    `json:"run_id"`
	Pipeline   string    `json:"pipeline"`
	Stage      string    `json:"stage"`
	Script     string    `json:"script"`
	Path       string    `json:"path"`
	Index      int       `json:"index"`
	Phase      string    `json:"phase"` // started | succeeded | failed
	DurationMS float64   `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	Push(Event) error
	Close() error // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q (registered: %s)", name, strings.Join(Names(), ", "))
}

func Names() []string {
	out := make([]string, 0, len(reg))
	for n := range reg {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
