// Package config loads gateway configuration from an optional YAML file
// with environment-variable overrides.
//
// Precedence: defaults -> YAML file -> environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds the listen addresses and HTTP timeouts.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// ProvidersConfig holds the upstream provider credentials and shared
// per-attempt timeout. A provider with an empty key is not registered.
type ProvidersConfig struct {
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIOrg         string        `yaml:"openai_org"`
	DeepSeekAPIKey    string        `yaml:"deepseek_api_key"`
	HuggingFaceAPIKey string        `yaml:"huggingface_api_key"`
	Timeout           time.Duration `yaml:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// TelemetryConfig holds the optional tracing endpoint.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			MetricsAddr:     ":9091",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxIdleConns: 10,
			MaxOpenConns: 50,
			ConnLifetime: time.Hour,
		},
		Providers: ProvidersConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Environment: "dev",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "llmgateway",
		},
	}
}

// Load builds the configuration. path may be empty; a missing file at an
// explicit path is an error, env vars always apply last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.HTTPAddr, "HTTP_ADDR")
	setString(&c.Server.MetricsAddr, "METRICS_ADDR")
	setString(&c.Database.URL, "DATABASE_URL")
	setInt(&c.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setString(&c.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Providers.OpenAIOrg, "OPENAI_ORG")
	setString(&c.Providers.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&c.Providers.HuggingFaceAPIKey, "HUGGINGFACE_API_KEY")
	setDuration(&c.Providers.Timeout, "PROVIDER_TIMEOUT")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Environment, "ENVIRONMENT")
	setString(&c.Telemetry.OTLPEndpoint, "OTLP_ENDPOINT")
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("config: server.http_addr must not be empty")
	}
	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("config: providers.timeout must be positive")
	}
	return nil
}

// AnyProviderConfigured reports whether at least one upstream key is set.
func (c *Config) AnyProviderConfigured() bool {
	return c.Providers.OpenAIAPIKey != "" ||
		c.Providers.DeepSeekAPIKey != "" ||
		c.Providers.HuggingFaceAPIKey != ""
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		// bare seconds, e.g. PROVIDER_TIMEOUT=30
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}
