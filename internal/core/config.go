package core

import (
	"fmt"
	"os"
	"time"

	"github.com/GalievDev/image-generator-module/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML values like "1h30m"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// CommandConfig represents a generic pipeline command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type CacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	Address string   `yaml:"address"`
	TTL     Duration `yaml:"ttl"`
}

type RetentionConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	MaxAge   Duration `yaml:"maxAge"`
}

type LimitsConfig struct {
	MaxUploadBytes    int64   `yaml:"maxUploadBytes"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

type ServiceConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Database  Database        `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	Retention RetentionConfig `yaml:"retention"`
	Limits    LimitsConfig    `yaml:"limits"`
	Pipeline  []CommandConfig `yaml:"pipeline"`
}

const (
	defaultPort           = 8000
	defaultMaxUploadBytes = 10 << 20 // 10 MiB
	defaultSchedule       = "0 3 * * *"
)

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *ServiceConfig) {
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.Database.Type == "" {
		config.Database.Type = "sqlite"
	}
	if config.Database.ConnectionString == "" {
		config.Database.ConnectionString = "images.db"
	}
	if config.Limits.MaxUploadBytes == 0 {
		config.Limits.MaxUploadBytes = defaultMaxUploadBytes
	}
	if config.Retention.Schedule == "" {
		config.Retention.Schedule = defaultSchedule
	}
}

func validateConfig(config *ServiceConfig) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", config.Port)
	}
	if config.Cache.Enabled && config.Cache.Address == "" {
		return fmt.Errorf("cache is enabled but no address is configured")
	}
	if config.Retention.Enabled && config.Retention.MaxAge.Std() <= 0 {
		return fmt.Errorf("retention is enabled but maxAge is not positive")
	}
	return validateCommands(config.Pipeline)
}

// validateCommands ensures all command configurations name a registered
// command and appear at most once.
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if !pipeline.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command name: %s", cmd.Name)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}

// CommandConfigs converts the configured pipeline to the form the pipeline
// package consumes, falling back to the default pipeline when none is set.
func (c *ServiceConfig) CommandConfigs() []pipeline.CommandConfig {
	if len(c.Pipeline) == 0 {
		return pipeline.DefaultCommandConfigs()
	}
	configs := make([]pipeline.CommandConfig, len(c.Pipeline))
	for i, cmd := range c.Pipeline {
		configs[i] = pipeline.CommandConfig{
			Name:   cmd.Name,
			Params: cmd.Params,
		}
	}
	return configs
}
