package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	if len(cfg.Experts) == 0 {
		return errors.New("at least one expert must be configured")
	}

	seen := make(map[string]bool, len(cfg.Experts))
	for i, e := range cfg.Experts {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("expert %d missing name", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate expert name %q", name)
		}
		seen[name] = true

		switch strings.ToLower(strings.TrimSpace(e.Type)) {
		case "echo":
		case "http":
			if strings.TrimSpace(e.BaseURL) == "" {
				return fmt.Errorf("expert %q (http) missing base_url", name)
			}
			u, err := url.Parse(e.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("expert %q has invalid base_url", name)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("expert %q base_url must be http or https", name)
			}
		case "onnx":
			if strings.TrimSpace(e.ModelPath) == "" {
				return fmt.Errorf("expert %q (onnx) missing model_path", name)
			}
		default:
			return fmt.Errorf("expert %q has unknown type %q", name, e.Type)
		}
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return validateAuditConfig(cfg.Audit)
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
	case "", "grpc", "http":
		return nil
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
	}
}

func validateAuditConfig(a AuditConfig) error {
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "stdout":
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("audit sink %d (file_jsonl) missing path", i)
			}
		default:
			return fmt.Errorf("audit sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}
