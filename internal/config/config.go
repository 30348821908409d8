package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the pipeline engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Inference   InferenceConfig   `yaml:"inference"`
	Sink        SinkConfig        `yaml:"sink"`
	Storage     StorageConfig     `yaml:"storage"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls the HTTP API, metrics, and gRPC probe listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	ProbeAddress    string        `yaml:"probeAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// InferenceConfig configures the structured-inference backend.
type InferenceConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SinkConfig configures the best-effort notification sink.
type SinkConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig controls the durable key-value store backing the content
// cache and preferences. An empty path keeps everything in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DiagnosticsConfig controls the periodic self-check schedule.
type DiagnosticsConfig struct {
	Schedule string `yaml:"schedule"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("PIPELINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			ProbeAddress:    ":50051",
			GracefulTimeout: 10 * time.Second,
		},
		Inference: InferenceConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
		Sink: SinkConfig{
			Timeout: 5 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			Schedule: "@every 5m",
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PIPELINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("PIPELINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("PIPELINE_PROBE_ADDRESS"); v != "" {
		cfg.Server.ProbeAddress = v
	}
	if v := os.Getenv("PIPELINE_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("PIPELINE_INFERENCE_BASE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv("PIPELINE_INFERENCE_MODEL"); v != "" {
		cfg.Inference.Model = v
	}
	if v := os.Getenv("PIPELINE_INFERENCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Inference.Timeout = d
		}
	}
	if v := os.Getenv("PIPELINE_SINK_WEBHOOK_URL"); v != "" {
		cfg.Sink.WebhookURL = v
	}
	if v := os.Getenv("PIPELINE_SINK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sink.Timeout = d
		}
	}
	if v := os.Getenv("PIPELINE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PIPELINE_DIAGNOSTICS_SCHEDULE"); v != "" {
		cfg.Diagnostics.Schedule = v
	}
	if v := os.Getenv("PIPELINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PIPELINE_LOG_FORMAT"); strings.EqualFold(v, "json") {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("PIPELINE_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.JSON = b
		}
	}
}
