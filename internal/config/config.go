package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the default config file looked up in the working directory.
const FileName = "ideaforge.yml"

// Config models ideaforge.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Webhooks struct {
		Workers   int    `yaml:"workers"`
		QueueSize int    `yaml:"queue_size"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"webhooks"`
	Auth struct {
		AdminSecret string `yaml:"admin_secret"`
	} `yaml:"auth"`
	Limits struct {
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"limits"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ideaforge config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses config over the defaults, so omitted keys keep their
// default values, and validates the result.
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.server.public_url must be an absolute http(s) url")
		}
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("config.storage.path is required")
	}
	if c.Webhooks.Workers < 1 {
		return fmt.Errorf("config.webhooks.workers must be at least 1")
	}
	if c.Webhooks.QueueSize < 1 {
		return fmt.Errorf("config.webhooks.queue_size must be at least 1")
	}
	if c.Limits.DefaultPageSize < 1 || c.Limits.MaxPageSize < c.Limits.DefaultPageSize {
		return fmt.Errorf("config.limits: need 1 <= default_page_size <= max_page_size")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  public_url: http://localhost:8080

storage:
  path: .ideaforge/ideaforge.db

webhooks:
  workers: 8
  queue_size: 256
  user_agent: IdeaForge-Webhook/1.0

auth:
  # Empty disables the /admin endpoints.
  admin_secret: ""

limits:
  default_page_size: 20
  max_page_size: 100

log:
  level: info
  format: text
`
