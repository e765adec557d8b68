// moegate-train fits gate weights from labeled examples, offline. The
// serving daemon picks the weights file up on its next start; training
// never shares a call path with request serving.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/moegate-ai/moegate/internal/config"
	"github.com/moegate-ai/moegate/internal/gate"
	"github.com/moegate-ai/moegate/internal/trainer"
)

func main() {
	configPath := flag.String("config", "moegate.yaml", "Path to moegate config file")
	dataPath := flag.String("data", "", "Path to JSONL training data: {\"text\":..., \"expert_index\":...} per line (required)")
	outPath := flag.String("out", "", "Output weights path (defaults to gate.weights_path from config)")
	lr := flag.Float64("lr", 1e-4, "Learning rate")
	epochs := flag.Int("epochs", 10, "Training epochs")
	flag.Parse()

	if *dataPath == "" {
		log.Fatalf("data flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	out := *outPath
	if out == "" {
		out = cfg.Gate.WeightsPath
	}
	if out == "" {
		log.Fatalf("no output path: set -out or gate.weights_path in config")
	}

	examples, err := loadExamples(*dataPath)
	if err != nil {
		log.Fatalf("failed to load examples: %v", err)
	}
	log.Printf("loaded %d examples from %s", len(examples), *dataPath)

	base, err := loadBase(cfg, len(cfg.Experts))
	if err != nil {
		log.Fatalf("failed to prepare base parameters: %v", err)
	}

	fitted, losses, err := trainer.Fit(base, examples, float32(*lr), *epochs)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	for i, l := range losses {
		log.Printf("epoch %d/%d, loss: %.4f", i+1, len(losses), l)
	}

	if err := gate.SaveParameters(out, fitted); err != nil {
		log.Fatalf("failed to save weights: %v", err)
	}
	log.Printf("weights written to %s", out)
}

// loadBase continues from existing weights when present so repeated
// training runs refine rather than restart.
func loadBase(cfg *config.Config, experts int) (*gate.Parameters, error) {
	if cfg.Gate.WeightsPath != "" {
		params, err := gate.LoadParameters(cfg.Gate.WeightsPath)
		if err == nil && params.Experts == experts {
			return params, nil
		}
	}
	return gate.NewParameters(experts, cfg.Gate.Seed)
}

func loadExamples(path string) ([]trainer.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var examples []trainer.Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex trainer.Example
		if err := json.Unmarshal(line, &ex); err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	return examples, scanner.Err()
}
