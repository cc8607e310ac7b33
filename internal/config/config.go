package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Sink   SinkConfig   `yaml:"sink"`
	Redact RedactConfig `yaml:"redact"`
	Demo   DemoConfig   `yaml:"demo"`
	Tags   TagsConfig   `yaml:"tags"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SinkConfig struct {
	DataDir        string `yaml:"data_dir"`
	ForwardURL     string `yaml:"forward_url"`
	ForwardBatch   int    `yaml:"forward_batch"`
	ForwardRetries int    `yaml:"forward_retries"`
}

type RedactConfig struct {
	Fields         []string `yaml:"fields"`
	HashSessionIDs bool     `yaml:"hash_session_ids"`
}

type DemoConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"interval_ms"`
}

type TagsConfig struct {
	Service     string `yaml:"service"`
	Environment string `yaml:"environment"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 1967,
		},
		Sink: SinkConfig{
			DataDir:        "./data",
			ForwardBatch:   32,
			ForwardRetries: 3,
		},
		Demo: DemoConfig{
			IntervalMs: 2000,
		},
		Tags: TagsConfig{
			Service: "trace-bridge",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the built-in defaults. Unset keys
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults
// instead of an error. Used for the well-known config path, which most
// deployments never create.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// envOverrides carries the BRIDGE_* environment variables. Everything
// is read as a string so that an unset variable is distinguishable from
// a zero value.
type envOverrides struct {
	Host           string   `envconfig:"BRIDGE_HOST"`
	Port           int      `envconfig:"BRIDGE_PORT"`
	DataDir        string   `envconfig:"BRIDGE_DATA_DIR"`
	ForwardURL     string   `envconfig:"BRIDGE_FORWARD_URL"`
	ForwardBatch   int      `envconfig:"BRIDGE_FORWARD_BATCH"`
	ForwardRetries int      `envconfig:"BRIDGE_FORWARD_RETRIES"`
	RedactFields   []string `envconfig:"BRIDGE_REDACT_FIELDS"`
	RedactHashIDs  string   `envconfig:"BRIDGE_REDACT_HASH_IDS"`
	Demo           string   `envconfig:"BRIDGE_DEMO"`
	DemoIntervalMs int      `envconfig:"BRIDGE_DEMO_INTERVAL_MS"`
	Service        string   `envconfig:"BRIDGE_SERVICE"`
	Environment    string   `envconfig:"BRIDGE_ENVIRONMENT"`
	LogLevel       string   `envconfig:"BRIDGE_LOG_LEVEL"`
	LogFile        string   `envconfig:"BRIDGE_LOG_FILE"`
}

// ApplyEnv overlays BRIDGE_* environment variables onto cfg. Variables
// that are unset leave the corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if env.Host != "" {
		cfg.Server.Host = env.Host
	}
	if env.Port > 0 {
		cfg.Server.Port = env.Port
	}
	if env.DataDir != "" {
		cfg.Sink.DataDir = env.DataDir
	}
	if env.ForwardURL != "" {
		cfg.Sink.ForwardURL = env.ForwardURL
	}
	if env.ForwardBatch > 0 {
		cfg.Sink.ForwardBatch = env.ForwardBatch
	}
	if env.ForwardRetries > 0 {
		cfg.Sink.ForwardRetries = env.ForwardRetries
	}
	if len(env.RedactFields) > 0 {
		cfg.Redact.Fields = env.RedactFields
	}
	if env.RedactHashIDs != "" {
		hash, err := strconv.ParseBool(env.RedactHashIDs)
		if err != nil {
			return fmt.Errorf("BRIDGE_REDACT_HASH_IDS: %w", err)
		}
		cfg.Redact.HashSessionIDs = hash
	}
	if env.Demo != "" {
		enabled, err := strconv.ParseBool(env.Demo)
		if err != nil {
			return fmt.Errorf("BRIDGE_DEMO: %w", err)
		}
		cfg.Demo.Enabled = enabled
	}
	if env.DemoIntervalMs > 0 {
		cfg.Demo.IntervalMs = env.DemoIntervalMs
	}
	if env.Service != "" {
		cfg.Tags.Service = env.Service
	}
	if env.Environment != "" {
		cfg.Tags.Environment = env.Environment
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFile != "" {
		cfg.Log.File = env.LogFile
	}

	return nil
}

func (c *Config) DemoInterval() time.Duration {
	return time.Duration(c.Demo.IntervalMs) * time.Millisecond
}
