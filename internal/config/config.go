package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds moegate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Experts   []ExpertConfig  `yaml:"experts"`
	Gate      GateConfig      `yaml:"gate"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxRequestBodyBytes int64  `yaml:"max_request_body_bytes"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds  int    `yaml:"idle_timeout_seconds"`
	RequestTTLMinutes   int    `yaml:"request_ttl_minutes"`
}

// ExpertConfig declares one expert backend. List order is load-bearing:
// it fixes the registry index each expert occupies, which is the gate
// output dimension it is scored on.
type ExpertConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // echo | http | onnx

	// http backends.
	BaseURL          string `yaml:"base_url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	MaxResponseBytes int64  `yaml:"max_response_bytes"`

	// onnx backends.
	ModelPath string `yaml:"model_path"`
	SeqLen    int    `yaml:"seq_len"`
	HiddenDim int    `yaml:"hidden_dim"`
}

type GateConfig struct {
	// WeightsPath is loaded at startup when it exists; otherwise the
	// gate starts from seeded initialization.
	WeightsPath string `yaml:"weights_path"`
	Seed        int64  `yaml:"seed"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type AuditConfig struct {
	Sinks []AuditSinkConfig `yaml:"sinks"`
}

type AuditSinkConfig struct {
	Type string `yaml:"type"` // stdout | file_jsonl
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Experts: []ExpertConfig{
			{Name: "byt5", Type: "echo"},
			{Name: "longformer", Type: "echo"},
		},
		Gate: GateConfig{
			Seed: 42,
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		cfg.Server.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds <= 0 {
		cfg.Server.WriteTimeoutSeconds = 120
	}
	if cfg.Server.IdleTimeoutSeconds <= 0 {
		cfg.Server.IdleTimeoutSeconds = 60
	}
	if cfg.Server.RequestTTLMinutes <= 0 {
		cfg.Server.RequestTTLMinutes = 30
	}

	if len(cfg.Experts) == 0 {
		cfg.Experts = []ExpertConfig{
			{Name: "byt5", Type: "echo"},
			{Name: "longformer", Type: "echo"},
		}
	}
	for i := range cfg.Experts {
		if cfg.Experts[i].Type == "" {
			cfg.Experts[i].Type = "echo"
		}
		if cfg.Experts[i].TimeoutSeconds <= 0 {
			cfg.Experts[i].TimeoutSeconds = 60
		}
		if cfg.Experts[i].MaxResponseBytes <= 0 {
			cfg.Experts[i].MaxResponseBytes = 4 << 20
		}
	}

	if cfg.Gate.Seed == 0 {
		cfg.Gate.Seed = 42
	}

	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}
