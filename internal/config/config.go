package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Assets   AssetsConfig   `yaml:"assets"`
	Images   ImagesConfig   `yaml:"images"`
	Model    ModelConfig    `yaml:"model"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig locates the downstream OpenAI-compatible provider.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// CatalogConfig locates the remote model catalog.
type CatalogConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the snapshot lifetime as a duration.
func (c CatalogConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// AssetsConfig locates the asset upload endpoint for persisted images.
type AssetsConfig struct {
	UploadURL string `yaml:"upload_url"`
	APIKey    string `yaml:"api_key"`
}

// ImagesConfig tunes outbound image fetching.
type ImagesConfig struct {
	UserAgent           string `yaml:"user_agent"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MaxBytes            int64  `yaml:"max_bytes"`
}

// FetchTimeout returns the per-image fetch timeout as a duration.
func (c ImagesConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ModelConfig supplies the model-string modifier syntax.
type ModelConfig struct {
	OnlineSuffix       string   `yaml:"online_suffix"`
	SearchContextSizes []string `yaml:"search_context_sizes"`
}

// Load reads YAML configuration from disk, applies defaults and validates
// the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Catalog.TTLSeconds == 0 {
		c.Catalog.TTLSeconds = 300
	}
	if c.Images.UserAgent == "" {
		c.Images.UserAgent = "modelrelay/0.1 (+image-fetch)"
	}
	if c.Images.FetchTimeoutSeconds == 0 {
		c.Images.FetchTimeoutSeconds = 30
	}
	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = 20 << 20
	}
	if c.Model.OnlineSuffix == "" {
		c.Model.OnlineSuffix = "online"
	}
	if len(c.Model.SearchContextSizes) == 0 {
		c.Model.SearchContextSizes = []string{"low", "medium", "high"}
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url must be provided")
	}
	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return fmt.Errorf("upstream.api_key must be provided")
	}
	if strings.TrimSpace(c.Catalog.URL) == "" {
		return fmt.Errorf("catalog.url must be provided")
	}
	if c.Catalog.TTLSeconds < 0 {
		return fmt.Errorf("catalog.ttl_seconds must not be negative, got %d", c.Catalog.TTLSeconds)
	}
	if strings.TrimSpace(c.Assets.UploadURL) == "" {
		return fmt.Errorf("assets.upload_url must be provided")
	}
	if strings.TrimSpace(c.Assets.APIKey) == "" {
		return fmt.Errorf("assets.api_key must be provided")
	}
	if c.Images.MaxBytes < 0 {
		return fmt.Errorf("images.max_bytes must not be negative, got %d", c.Images.MaxBytes)
	}
	if strings.ContainsAny(c.Model.OnlineSuffix, ":/") {
		return fmt.Errorf("model.online_suffix %q must not contain separator characters", c.Model.OnlineSuffix)
	}
	for _, size := range c.Model.SearchContextSizes {
		if strings.TrimSpace(size) == "" {
			return fmt.Errorf("model.search_context_sizes must not contain empty entries")
		}
		if size != strings.ToLower(size) {
			return fmt.Errorf("model.search_context_sizes entry %q must be lowercase", size)
		}
	}
	return nil
}
