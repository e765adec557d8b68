package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/moegate-ai/moegate/internal/config"
	"github.com/moegate-ai/moegate/internal/expert"
	"github.com/moegate-ai/moegate/internal/feature"
	"github.com/moegate-ai/moegate/internal/gate"
	"github.com/moegate-ai/moegate/internal/router"
)

func main() {
	cfgPath := flag.String("config", "moegate.yaml", "path to config yaml")
	n := flag.Int("n", 10000, "number of iterations")
	text := flag.String("text", "Route this request to the most suitable expert backend.", "input text to route")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	registry, err := expert.BuildRegistry(cfg.Experts)
	if err != nil {
		log.Fatalf("build expert registry: %v", err)
	}

	g, err := buildGate(cfg, registry.Len())
	if err != nil {
		log.Fatalf("build gate: %v", err)
	}

	rt := router.New(registry, g)
	raw := []byte(*text)

	// Warmup
	for i := 0; i < 100; i++ {
		canonical, binary := feature.Canonicalize(raw)
		vec := feature.Analyze(canonical, binary).Vector()
		if _, err := rt.Select(vec, ""); err != nil {
			log.Fatalf("warmup select failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	durations := make([]time.Duration, 0, *n)
	for i := 0; i < *n; i++ {
		start := time.Now()
		canonical, binary := feature.Canonicalize(raw)
		vec := feature.Analyze(canonical, binary).Vector()
		if _, err := rt.Select(vec, ""); err != nil {
			log.Fatalf("select failed: %v", err)
		}
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	avg := float64(total.Microseconds()) / float64(len(durations))
	p50 := float64(durations[len(durations)/2].Microseconds())
	p95 := float64(durations[int(float64(len(durations))*0.95)].Microseconds())

	fmt.Printf("bench: n=%d avg_us=%.2f p50_us=%.2f p95_us=%.2f experts=%d\n",
		len(durations),
		avg,
		p50,
		p95,
		registry.Len(),
	)
}

func buildGate(cfg *config.Config, experts int) (*gate.Gate, error) {
	if cfg.Gate.WeightsPath != "" {
		params, err := gate.LoadParameters(cfg.Gate.WeightsPath)
		if err == nil && params.Experts == experts {
			return gate.FromParameters(params)
		}
	}
	return gate.New(experts, cfg.Gate.Seed)
}
