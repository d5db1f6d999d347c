// Package config loads the tonegate YAML configuration, applies defaults and
// environment overrides, and validates the result.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tonegate configuration.
type Config struct {
	Server      ServerConfig              `yaml:"server"`
	Gate        GateConfig                `yaml:"gate"`
	Entitlement EntitlementConfig         `yaml:"entitlement"`
	Inference   InferenceConfig           `yaml:"inference"`
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Personas    PersonasConfig            `yaml:"personas"`
	Logging     LoggingConfig             `yaml:"logging"`
	Activation  ActivationConfig          `yaml:"activation"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type GateConfig struct {
	Strategy       string        `yaml:"strategy"` // concurrent | sequential
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type EntitlementConfig struct {
	BaseURL              string        `yaml:"base_url"`
	BaseURLEnv           string        `yaml:"base_url_env"` // e.g. "AUTH_API_URL"
	Timeout              time.Duration `yaml:"timeout"`
	AllowPrivateNetworks bool          `yaml:"allow_private_networks"`
}

type InferenceConfig struct {
	Provider    string        `yaml:"provider"` // provider name from Providers map
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ProviderConfig struct {
	Type                 string `yaml:"type"`        // openai | gemini | fake
	BaseURL              string `yaml:"base_url"`    // e.g. "https://api.openai.com/v1"
	APIKeyEnv            string `yaml:"api_key_env"` // e.g. "OPENAI_API_KEY"
	APIKey               string `yaml:"api_key"`
	ResponseFormat       string `yaml:"response_format"` // json_schema | json_object
	AllowPrivateNetworks bool   `yaml:"allow_private_networks"`
}

type PersonasConfig struct {
	File    string `yaml:"file"`
	Default string `yaml:"default"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

type ActivationConfig struct {
	QueueSize int          `yaml:"queue_size"`
	Workers   int          `yaml:"workers"`
	Sinks     []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type string `yaml:"type"` // stdout | file_jsonl | webhook | redis_stream

	Path     string `yaml:"path"`      // file_jsonl
	MaxBytes int64  `yaml:"max_bytes"` // file_jsonl rotation, 0 disables

	URL       string            `yaml:"url"` // webhook
	Headers   map[string]string `yaml:"headers"`
	TimeoutMs int               `yaml:"timeout_ms"`

	Addr   string `yaml:"addr"`   // redis_stream, host:port
	Stream string `yaml:"stream"` // redis_stream key
	MaxLen int64  `yaml:"max_len"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

const (
	defaultAddr            = ":8080"
	defaultMaxBodyBytes    = 64 << 10
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultEntitlementEnv  = "AUTH_API_URL"
	defaultEntitlementWait = 5 * time.Second
	defaultProviderName    = "openai"
	defaultQueueSize       = 1024
	defaultWorkers         = 1
)

// Load reads configuration from a YAML file, applies defaults and then
// environment overrides. A missing file yields the default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg, os.Getenv)
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Gate.Strategy == "" {
		cfg.Gate.Strategy = "concurrent"
	}
	if cfg.Gate.RequestTimeout <= 0 {
		cfg.Gate.RequestTimeout = defaultRequestTimeout
	}

	if cfg.Entitlement.BaseURLEnv == "" {
		cfg.Entitlement.BaseURLEnv = defaultEntitlementEnv
	}
	if cfg.Entitlement.Timeout <= 0 {
		cfg.Entitlement.Timeout = defaultEntitlementWait
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = map[string]ProviderConfig{
			defaultProviderName: {
				Type:      "openai",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
		}
	}
	// With exactly one provider and no explicit choice, use it.
	if cfg.Inference.Provider == "" && len(cfg.Providers) == 1 {
		for name := range cfg.Providers {
			cfg.Inference.Provider = name
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Activation.QueueSize <= 0 {
		cfg.Activation.QueueSize = defaultQueueSize
	}
	if cfg.Activation.Workers <= 0 {
		cfg.Activation.Workers = defaultWorkers
	}
}

// applyEnv overlays environment values. Only keys that commonly differ per
// deployment are read from the environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(cfg.Entitlement.BaseURLEnv)); v != "" {
		cfg.Entitlement.BaseURL = v
	}
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	if v := strings.TrimSpace(getenv("TONEGATE_STRATEGY")); v != "" {
		cfg.Gate.Strategy = v
	}
	if v := strings.TrimSpace(getenv("TONEGATE_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// ResolveAPIKey returns the provider's key, preferring the inline value.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}
