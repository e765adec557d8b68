package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/moegate-ai/moegate/internal/audit"
	"github.com/moegate-ai/moegate/internal/config"
	"github.com/moegate-ai/moegate/internal/expert"
	"github.com/moegate-ai/moegate/internal/gate"
	"github.com/moegate-ai/moegate/internal/pipeline"
	"github.com/moegate-ai/moegate/internal/server"
	"github.com/moegate-ai/moegate/internal/telemetry"
)

const version = "0.1.0"

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "moegate.yaml", "Path to moegate config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	registry, err := expert.BuildRegistry(cfg.Experts)
	if err != nil {
		log.Fatalf("failed to build expert registry: %v", err)
	}

	g, gateSource, err := buildGate(cfg, registry.Len())
	if err != nil {
		log.Fatalf("failed to build gate: %v", err)
	}
	log.Printf("gate ready (%s), %d experts", gateSource, registry.Len())

	ctx := context.Background()

	telem, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "moegate",
		Version:  version,
	})
	if err != nil {
		log.Fatalf("failed to init telemetry: %v", err)
	}
	defer telem.Shutdown(ctx)

	auditor, err := buildAuditor(cfg)
	if err != nil {
		log.Fatalf("failed to init audit sinks: %v", err)
	}
	if auditor != nil {
		defer auditor.Close(ctx)
	}

	proc := pipeline.New(registry, g, telem, auditor)

	srv := server.New(cfg, proc, registry, gateSource)
	if err := srv.Start(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildGate loads persisted weights when configured and present,
// otherwise falls back to seeded initialization.
func buildGate(cfg *config.Config, experts int) (*gate.Gate, string, error) {
	if cfg.Gate.WeightsPath != "" {
		params, err := gate.LoadParameters(cfg.Gate.WeightsPath)
		if err == nil {
			if params.Experts != experts {
				return nil, "", errors.New("gate weights expert count does not match configured experts")
			}
			g, err := gate.FromParameters(params)
			if err != nil {
				return nil, "", err
			}
			return g, "loaded " + cfg.Gate.WeightsPath, nil
		}
		if !errors.Is(err, gate.ErrWeightsNotFound) {
			return nil, "", err
		}
		log.Printf("gate weights not found at %s; using seeded initialization", cfg.Gate.WeightsPath)
	}

	g, err := gate.New(experts, cfg.Gate.Seed)
	if err != nil {
		return nil, "", err
	}
	return g, "initialized", nil
}

func buildAuditor(cfg *config.Config) (*audit.Emitter, error) {
	if len(cfg.Audit.Sinks) == 0 {
		return nil, nil
	}
	sinks := make([]audit.Sink, 0, len(cfg.Audit.Sinks))
	for _, sc := range cfg.Audit.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, audit.NewStdout())
		case "file_jsonl":
			fs, err := audit.NewFileSink(sc.Path)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, fs)
		}
	}
	return audit.NewEmitter(audit.EmitterConfig{}, sinks), nil
}
