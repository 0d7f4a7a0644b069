package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelRoot   string `json:"model_root" yaml:"model_root" toml:"model_root"`
	CatalogPath string `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	EnableGPU       bool   `json:"enable_gpu" yaml:"enable_gpu" toml:"enable_gpu"`
	VerifyChecksums bool   `json:"verify_checksums" yaml:"verify_checksums" toml:"verify_checksums"`
	UnmatchedLayers string `json:"unmatched_layers" yaml:"unmatched_layers" toml:"unmatched_layers"`
	ORTLibraryPath  string `json:"ort_library_path" yaml:"ort_library_path" toml:"ort_library_path"`

	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated fields. Empty values are accepted.
func (c Config) Validate() error {
	switch c.UnmatchedLayers {
	case "", "skip", "error":
	default:
		return fmt.Errorf("unmatched_layers: want skip or error, got %q", c.UnmatchedLayers)
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("log_format: want console or json, got %q", c.LogFormat)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	return nil
}
