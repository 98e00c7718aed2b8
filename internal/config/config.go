package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the omicsx CLI and report server.
type Config struct {
	Region  string `yaml:"region"`  // AWS region (AWS_DEFAULT_REGION, default us-east-1)
	Profile string `yaml:"profile"` // Shared config profile; empty uses the SDK default chain

	// Static credentials. Usually empty; the SDK default chain is used then.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	Pricing PricingConfig `yaml:"pricing"`

	MinimumStorageGiB int           `yaml:"minimum_storage_gib"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	MaxTasks          int           `yaml:"max_tasks"` // Safety cap on task pagination

	// Namespaces maps a source registry host to a private repository prefix,
	// e.g. quay.io -> quay. Hosts without an entry are stripped.
	Namespaces map[string]string `yaml:"namespaces"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
	Addr      string `yaml:"addr"`       // Report server listen address
}

// PricingConfig locates the pricing catalog.
type PricingConfig struct {
	Endpoint string `yaml:"endpoint"` // Base URL of the pricing offer files
	Version  string `yaml:"version"`  // Offer index version, e.g. v1.0
	Service  string `yaml:"service"`  // Offer code, e.g. AmazonOmics
	// File is a local catalog document used instead of the endpoint.
	File string `yaml:"file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Region: "us-east-1",
		Pricing: PricingConfig{
			Endpoint: "https://pricing.us-east-1.amazonaws.com",
			Version:  "v1.0",
			Service:  "AmazonOmics",
		},
		MinimumStorageGiB: 1200,
		HTTPTimeout:       30 * time.Second,
		MaxTasks:          100000,
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8090",
	}
}

// DefaultPath returns ~/.omicsx/config.yaml, or "" if the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".omicsx", "config.yaml")
}

// Load builds a Config from defaults, then the YAML file at path, then the
// environment. A missing file is not an error when optional is true.
func Load(path string, optional bool) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			if !(optional && errors.Is(err, os.ErrNotExist)) {
				return cfg, err
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AWS_DEFAULT_REGION"); ok && v != "" {
		c.Region = v
	}
	if v, ok := lookup("AWS_REGION"); ok && v != "" {
		c.Region = v
	}
	if v, ok := lookup("AWS_PROFILE"); ok && v != "" {
		c.Profile = v
	}
	if v, ok := lookup("OMICSX_PRICING_FILE"); ok && v != "" {
		c.Pricing.File = v
	}
	if v, ok := lookup("OMICSX_PRICING_ENDPOINT"); ok && v != "" {
		c.Pricing.Endpoint = v
	}
	if v, ok := lookup("OMICSX_MIN_STORAGE_GIB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMICSX_MIN_STORAGE_GIB: %w", err)
		}
		c.MinimumStorageGiB = n
	}
	if v, ok := lookup("OMICSX_HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OMICSX_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	var errs []error
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if c.MinimumStorageGiB < 0 {
		errs = append(errs, fmt.Errorf("minimum_storage_gib must be >= 0, got %d", c.MinimumStorageGiB))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout))
	}
	if c.MaxTasks <= 0 {
		errs = append(errs, fmt.Errorf("max_tasks must be positive, got %d", c.MaxTasks))
	}
	if c.Pricing.File == "" && c.Pricing.Endpoint == "" {
		errs = append(errs, errors.New("pricing.endpoint or pricing.file is required"))
	}
	return errors.Join(errs...)
}
