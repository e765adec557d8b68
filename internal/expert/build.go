package expert

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/moegate-ai/moegate/internal/config"
)

// BuildRegistry constructs the expert registry from configuration. The
// config list order fixes registry indices.
func BuildRegistry(cfgs []config.ExpertConfig) (*Registry, error) {
	names := make([]string, 0, len(cfgs))
	experts := make([]Expert, 0, len(cfgs))

	for _, c := range cfgs {
		name := strings.TrimSpace(c.Name)
		e, err := buildExpert(name, c)
		if err != nil {
			return nil, fmt.Errorf("build expert %q: %w", name, err)
		}
		names = append(names, name)
		experts = append(experts, e)
	}

	return NewRegistry(names, experts)
}

func buildExpert(name string, c config.ExpertConfig) (Expert, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "", "echo":
		return NewEcho(name), nil
	case "http":
		apiKey := ""
		if c.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(c.APIKeyEnv))
		}
		return NewHTTP(name, c.BaseURL, apiKey, time.Duration(c.TimeoutSeconds)*time.Second, c.MaxResponseBytes), nil
	case "onnx":
		return NewONNX(name, c.ModelPath, c.SeqLen, c.HiddenDim)
	default:
		return nil, fmt.Errorf("unknown expert type %q", c.Type)
	}
}
