package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"costa/internal/artifact"
	"costa/sink/kafka"
)

// EnvPrefix marks runtime overrides: COSTA__METRICS__PORT=9200 sets
// metrics.port.
const EnvPrefix = "COSTA__"

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

type StdoutConfig struct {
	Pretty bool `koanf:"pretty"`
}

type EventsConfig struct {
	Sinks  []string     `koanf:"sinks"` // stdout, kafka
	Stdout StdoutConfig `koanf:"stdout"`
	Kafka  kafka.Config `koanf:"kafka"`
}

type NativeConfig struct {
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// Runtime is the process configuration of the runner, independent of the
// pipeline being run.
type Runtime struct {
	SchemaVersion string `koanf:"schema_version"`

	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`

	// HostSearchPaths replaces the host module folders (NODE_PATH,
	// ~/.node_modules, ~/.node_libraries) when set.
	HostSearchPaths []string `koanf:"host_search_paths"`

	// StageTimeout bounds every stage invocation; zero means no bound.
	StageTimeout time.Duration `koanf:"stage_timeout"`

	Events    EventsConfig    `koanf:"events"`
	Artifacts artifact.Config `koanf:"artifacts"`
	Native    NativeConfig    `koanf:"native"`
}

var listKeys = map[string]bool{
	"host_search_paths":    true,
	"events.sinks":         true,
	"events.kafka.brokers": true,
}

// LoadRuntime merges YAML (if present) with env-vars
// (prefix `COSTA__`, delimiter `__`).
func LoadRuntime(path string) (Runtime, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Runtime{}, fmt.Errorf("runtime config %s: %w", path, err)
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != SupportedSchema {
		return Runtime{}, fmt.Errorf("runtime schema_version %q not supported (want %q)", sv, SupportedSchema)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return Runtime{}, fmt.Errorf("runtime config env: %w", err)
	}

	var cfg Runtime
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var out []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return key, out
	}
	return key, value
}

func applyDefaults(c *Runtime) {
	if c.SchemaVersion == "" {
		c.SchemaVersion = SupportedSchema
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9100
	}
	if len(c.Events.Sinks) == 0 {
		c.Events.Sinks = []string{"stdout"}
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "costa.stage-events"
	}
	if c.Events.Kafka.Acks == 0 {
		c.Events.Kafka.Acks = 1
	}
	if c.Artifacts.Region == "" {
		c.Artifacts.Region = "us-east-1"
	}
	if c.Artifacts.Prefix == "" {
		c.Artifacts.Prefix = "runs"
	}
	if c.Native.DialTimeout == 0 {
		c.Native.DialTimeout = 5 * time.Second
	}
}
