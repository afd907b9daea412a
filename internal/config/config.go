// Package config loads the publisher configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default HTTP read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default HTTP write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default graceful shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30
)

type Config struct {
	Debug        bool                         `yaml:"debug"`
	Server       ServerConfig                 `yaml:"server"`
	Database     DatabaseConfig               `yaml:"database"`
	Redis        RedisConfig                  `yaml:"redis"`
	Auth         AuthConfig                   `yaml:"auth"`
	ContentStore ContentStoreConfig           `yaml:"content_store"`
	Credentials  CredentialsConfig            `yaml:"credentials"`
	Media        MediaConfig                  `yaml:"media"`
	Destinations map[string]DestinationConfig `yaml:"destinations"`
	Generation   GenerationConfig             `yaml:"generation"`
	Resilience   ResilienceConfig             `yaml:"resilience"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // Postgres connection string for publish history
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Enabled   bool   `yaml:"enabled"`
}

type ContentStoreConfig struct {
	URL     string        `yaml:"url"`     // Content store API base URL
	Token   string        `yaml:"token"`   // Static service token
	Timeout time.Duration `yaml:"timeout"` // Default: 10s
}

type CredentialsConfig struct {
	URL     string        `yaml:"url"`     // Token provider base URL; empty uses content store campaign settings
	Timeout time.Duration `yaml:"timeout"` // Default: 5s
}

type MediaConfig struct {
	// BaseURL is the application's public base URL, used to resolve relative
	// media paths and to build proxy URLs destinations can fetch.
	BaseURL string `yaml:"base_url"`
	// StorageHosts lists origin hosts that require proxying because they are
	// auth-gated (e.g., private S3 endpoints).
	StorageHosts []string `yaml:"storage_hosts"`
	// ProxyPath is the route of the same-process streaming proxy.
	ProxyPath string `yaml:"proxy_path"`
	// DownloadTimeout bounds a single media download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// MaxDownloadBytes caps a downloaded payload. Default: 50 MiB.
	MaxDownloadBytes int64 `yaml:"max_download_bytes"`
	// TempDir overrides the scratch directory for downloaded media.
	TempDir string `yaml:"temp_dir"`
}

// DestinationConfig holds per-destination publishing knobs. Credentials come
// from the token provider at publish time, not from this file.
type DestinationConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxLength is the destination's hard text length limit.
	MaxLength int `yaml:"max_length"`
	// CaptionLimit is the small-text threshold: formatted text at or below
	// it is sent as a media caption in one request, above it media and text
	// are sent separately.
	CaptionLimit int `yaml:"caption_limit"`
	// ChatIDFallback enables retrying a rejected chat/group id once with the
	// alternate prefix convention (with/without "-100").
	ChatIDFallback bool `yaml:"chat_id_fallback"`
	// RateLimitRPS limits publish calls per second to this destination.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

type GenerationConfig struct {
	// PollInterval is the delay between job status checks. Default: 3s.
	PollInterval time.Duration `yaml:"poll_interval"`
	// PollBudget bounds the total time waiting for one job. Default: 5m.
	PollBudget time.Duration `yaml:"poll_budget"`
	// SubmitTimeout bounds the initial submission request. Default: 1m.
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	// FalBaseURL is the fal.ai queue endpoint. Overridable for tests.
	FalBaseURL string `yaml:"fal_base_url"`
	// FalAPIKey authenticates against fal.ai when the caller supplies none.
	FalAPIKey string `yaml:"fal_api_key"`
}

type ResilienceConfig struct {
	MaxRetries       int           `yaml:"max_retries"`       // Default: 2
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`  // Default: 200ms
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`   // Default: 30s
	FailureThreshold int           `yaml:"failure_threshold"` // Default: 3
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`   // Default: 60s
}

// Validate checks if the server configuration is valid and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.ContentStore.URL == "" {
		return errors.New("content_store.url is required")
	}
	if c.Media.BaseURL == "" {
		return errors.New("media.base_url is required")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth.enabled is true")
	}
	for name, dest := range c.Destinations {
		if dest.MaxLength <= 0 {
			return fmt.Errorf("destinations.%s.max_length must be positive", name)
		}
		if dest.CaptionLimit > dest.MaxLength {
			return fmt.Errorf("destinations.%s.caption_limit exceeds max_length", name)
		}
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.ContentStore.Timeout == 0 {
		cfg.ContentStore.Timeout = 10 * time.Second
	}
	if cfg.Credentials.Timeout == 0 {
		cfg.Credentials.Timeout = 5 * time.Second
	}
	if cfg.Media.ProxyPath == "" {
		cfg.Media.ProxyPath = "/media/proxy"
	}
	if cfg.Media.DownloadTimeout == 0 {
		cfg.Media.DownloadTimeout = 30 * time.Second
	}
	if cfg.Media.MaxDownloadBytes == 0 {
		cfg.Media.MaxDownloadBytes = 50 << 20
	}
	if cfg.Generation.PollInterval == 0 {
		cfg.Generation.PollInterval = 3 * time.Second
	}
	if cfg.Generation.PollBudget == 0 {
		cfg.Generation.PollBudget = 5 * time.Minute
	}
	if cfg.Generation.SubmitTimeout == 0 {
		cfg.Generation.SubmitTimeout = time.Minute
	}
	if cfg.Generation.FalBaseURL == "" {
		cfg.Generation.FalBaseURL = "https://queue.fal.run"
	}
	if cfg.Resilience.MaxRetries == 0 {
		cfg.Resilience.MaxRetries = 2
	}
	if cfg.Resilience.RetryBaseDelay == 0 {
		cfg.Resilience.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.Resilience.RetryMaxDelay == 0 {
		cfg.Resilience.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Resilience.FailureThreshold == 0 {
		cfg.Resilience.FailureThreshold = 3
	}
	if cfg.Resilience.BreakerTimeout == 0 {
		cfg.Resilience.BreakerTimeout = 60 * time.Second
	}
	if cfg.Destinations == nil {
		cfg.Destinations = defaultDestinations()
	}
	for name, dest := range cfg.Destinations {
		if dest.MaxLength == 0 {
			if def, ok := defaultDestinations()[name]; ok {
				dest.MaxLength = def.MaxLength
			}
		}
		if dest.CaptionLimit == 0 {
			if def, ok := defaultDestinations()[name]; ok {
				dest.CaptionLimit = def.CaptionLimit
			}
		}
		if dest.RateLimitRPS == 0 {
			dest.RateLimitRPS = 1
		}
		cfg.Destinations[name] = dest
	}
}

// defaultDestinations carries each destination's documented content-shape
// limits.
func defaultDestinations() map[string]DestinationConfig {
	return map[string]DestinationConfig{
		"telegram": {
			Enabled:        true,
			MaxLength:      4096,
			CaptionLimit:   1024,
			ChatIDFallback: true,
			RateLimitRPS:   1,
		},
		"vk": {
			Enabled:      true,
			MaxLength:    16000,
			CaptionLimit: 16000,
			RateLimitRPS: 1,
		},
		"facebook": {
			Enabled:      true,
			MaxLength:    63206,
			CaptionLimit: 63206,
			RateLimitRPS: 1,
		},
		"instagram": {
			Enabled:      true,
			MaxLength:    2200,
			CaptionLimit: 2200,
			RateLimitRPS: 1,
		},
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if url := os.Getenv("CONTENT_STORE_URL"); url != "" {
		cfg.ContentStore.URL = url
	}
	if token := os.Getenv("CONTENT_STORE_TOKEN"); token != "" {
		cfg.ContentStore.Token = token
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.Media.BaseURL = baseURL
	}
	if key := os.Getenv("FAL_API_KEY"); key != "" {
		cfg.Generation.FalAPIKey = key
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}
	if port := os.Getenv("PUBLISHER_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
