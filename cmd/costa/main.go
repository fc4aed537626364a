package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strconv"
	"syscall"

	"costa/internal/engine"
	"costa/internal/logging"
)

func main() {
	pipelinePath := flag.String("pipeline", "pipeline.yml", "pipeline definition (.yml or .hcl)")
	configPath := flag.String("config", "", "runtime config YAML (optional)")
	logLevel := flag.String("log-level", "", "debug|info|warn|error, overrides the config")
	logJSON := flag.String("log-json", "", "true|false, overrides the config")
	flag.Parse()

	env := logging.FromEnv()
	logging.Configure(env)

	// flags > COSTA_LOG_* > runtime config
	cfg := engine.Config{
		PipelinePath: *pipelinePath,
		RuntimePath:  *configPath,
		LogLevel:     *logLevel,
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = env.Level
	}
	if env.JSON {
		cfg.LogJSON = &env.JSON
	}
	if *logJSON != "" {
		b, err := strconv.ParseBool(*logJSON)
		if err != nil {
			log.Fatalf("-log-json: %v", err)
		}
		cfg.LogJSON = &b
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	res, err := e.Run(ctx)
	if err != nil {
		log.Fatalf("run %s: %v", e.RunID(), err)
	}
	logging.L().Info("run complete", "run_id", res.RunID, "duration", res.Duration, "artifacts", len(res.Artifacts))
}
