package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Completion policies for tasks.
const (
	CompleteStrict  = "strict"
	CompleteLenient = "lenient"
)

// Config models campustasks.yml.
type Config struct {
	Marketplace struct {
		DefaultCampus     string `yaml:"default_campus" json:"default_campus"`
		BioMaxLength      int    `yaml:"bio_max_length" json:"bio_max_length"`
		PasswordMinLength int    `yaml:"password_min_length" json:"password_min_length"`
	} `yaml:"marketplace" json:"marketplace"`
	Policies struct {
		Complete string `yaml:"complete" json:"complete"`
	} `yaml:"policies" json:"policies"`
	Server struct {
		Addr           string `yaml:"addr" json:"addr"`
		BasePath       string `yaml:"base_path" json:"base_path"`
		AllowDevHeader bool   `yaml:"allow_dev_header" json:"allow_dev_header"`
		TokenTTLHours  int    `yaml:"token_ttl_hours" json:"token_ttl_hours"`
	} `yaml:"server" json:"server"`
	Log struct {
		Level string `yaml:"level" json:"level"`
	} `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Marketplace.DefaultCampus) == "" {
		return fmt.Errorf("config.marketplace.default_campus is required")
	}
	if c.Marketplace.BioMaxLength <= 0 {
		return fmt.Errorf("config.marketplace.bio_max_length must be positive")
	}
	if c.Marketplace.PasswordMinLength <= 0 {
		return fmt.Errorf("config.marketplace.password_min_length must be positive")
	}
	switch c.Policies.Complete {
	case CompleteStrict, CompleteLenient:
	default:
		return fmt.Errorf("config.policies.complete must be %q or %q", CompleteStrict, CompleteLenient)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.TokenTTLHours < 0 {
		return fmt.Errorf("config.server.token_ttl_hours must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level %q is not a known level", c.Log.Level)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "campustasks.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ct config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the workspace config, falling back to Default when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config from raw YAML bytes on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `marketplace:
  default_campus: Woxsen University
  bio_max_length: 300
  password_min_length: 6

policies:
  # strict: only accepted tasks can be completed
  # lenient: any task that is not completed yet can be completed
  complete: strict

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  allow_dev_header: false
  token_ttl_hours: 24

log:
  level: info

webhooks: []
`
