// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the relay.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Backend selects the object store implementation: "s3" or "fs".
	Backend string `yaml:"backend"`
	// TargetBucket is the destination for accepted attachments.
	TargetBucket string `yaml:"target_bucket"`
	// BodyBucket enables HTML body archiving when set.
	BodyBucket      string `yaml:"body_bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	// FSRoot is the base directory for the fs backend.
	FSRoot string `yaml:"fs_root"`
}

// NotifyConfig holds the optional SES run-notice configuration.
type NotifyConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
	Recipient       string `yaml:"recipient"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate reports whether the configuration can run an invocation.
func (c *Config) Validate() error {
	if c.Storage.TargetBucket == "" {
		return fmt.Errorf("target_bucket is required")
	}
	switch c.Storage.Backend {
	case "s3":
	case "fs":
		if c.Storage.FSRoot == "" {
			return fmt.Errorf("fs_root is required for the fs backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// NotifyConfigured returns true if the run-notice sender and recipient are set.
func (c *Config) NotifyConfigured() bool {
	return c.Notify.Sender != "" && c.Notify.Recipient != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Storage.Backend = "s3"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TARGET_BUCKET"); v != "" {
		c.Storage.TargetBucket = v
	}
	if v := os.Getenv("BODY_BUCKET"); v != "" {
		c.Storage.BodyBucket = v
	}
	if v := os.Getenv("STORAGE_REGION"); v != "" {
		c.Storage.Region = v
	}
	if v := os.Getenv("STORAGE_ACCESS_KEY_ID"); v != "" {
		c.Storage.AccessKeyID = v
	}
	if v := os.Getenv("STORAGE_SECRET_ACCESS_KEY"); v != "" {
		c.Storage.SecretAccessKey = v
	}
	if v := os.Getenv("FS_ROOT"); v != "" {
		c.Storage.FSRoot = v
	}

	if v := os.Getenv("NOTIFY_REGION"); v != "" {
		c.Notify.Region = v
	}
	if v := os.Getenv("NOTIFY_ACCESS_KEY_ID"); v != "" {
		c.Notify.AccessKeyID = v
	}
	if v := os.Getenv("NOTIFY_SECRET_ACCESS_KEY"); v != "" {
		c.Notify.SecretAccessKey = v
	}
	if v := os.Getenv("NOTIFY_SENDER"); v != "" {
		c.Notify.Sender = v
	}
	if v := os.Getenv("NOTIFY_RECIPIENT"); v != "" {
		c.Notify.Recipient = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
