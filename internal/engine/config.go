package engine

import "io"

// Config is what the command line hands to Bootstrap.
type Config struct {
	PipelinePath string // pipeline definition, .yml/.yaml or .hcl
	RuntimePath  string // optional runtime config YAML

	// LogLevel and LogJSON override the runtime config when set.
	LogLevel string
	LogJSON  *bool

	// EventWriter receives stdout sink events; nil means os.Stdout.
	EventWriter io.Writer
}
