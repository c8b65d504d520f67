// Package config handles the XDG configuration directory, config.yaml and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "todoctl"

	// ConfigFile is the optional settings file inside the config directory.
	ConfigFile = "config.yaml"

	// EnvFile is the optional dotenv file inside the config directory.
	EnvFile = ".env"

	// TokenFile is the stored credential filename.
	TokenFile = "token.json"

	// EnvPrefix prefixes environment overrides, e.g. TODOCTL_BASE_URL.
	EnvPrefix = "TODOCTL"
)

// Credential store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// RedisConfig configures the redis credential store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// BreakerConfig configures the request circuit breaker.
type BreakerConfig struct {
	Enabled      bool
	MinRequests  uint32
	FailureRatio float64
	Timeout      time.Duration
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// BaseURL is the todo API root, e.g. http://localhost:8000.
	BaseURL string

	// RenewalWindow is how long before expiry the access token is renewed.
	RenewalWindow time.Duration

	// AlwaysRefresh renews the access token before every request.
	AlwaysRefresh bool

	HTTPTimeout time.Duration

	// Store selects the credential backend: file, redis or memory.
	Store string
	Redis RedisConfig

	LogLevel string

	// MetricsFile, when set, receives a prometheus textfile after each command.
	MetricsFile string

	// DefaultList is the list used by task commands without --list.
	DefaultList string

	Breaker BreakerConfig
}

// New creates a Config with defaults for the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/todoctl or $HOME/.config/todoctl.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	v := newViper()
	return fromViper(dir, v), nil
}

// Load is New plus the config directory's .env and config.yaml and TODOCTL_* environment overrides.
// Missing files are not an error.
func Load(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}

	envPath := filepath.Join(dir, EnvFile)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	v := newViper()
	v.SetConfigFile(filepath.Join(dir, ConfigFile))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
		}
	}

	cfg := fromViper(dir, v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("base_url", "http://localhost:8000")
	v.SetDefault("renewal_window", 5*time.Minute)
	v.SetDefault("always_refresh", false)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("store", StoreFile)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "todoctl:")
	v.SetDefault("log_level", "warn")
	v.SetDefault("metrics_file", "")
	v.SetDefault("default_list", "")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("breaker.failure_ratio", 0.8)
	v.SetDefault("breaker.timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func fromViper(dir string, v *viper.Viper) *Config {
	return &Config{
		Dir:           dir,
		BaseURL:       strings.TrimRight(v.GetString("base_url"), "/"),
		RenewalWindow: v.GetDuration("renewal_window"),
		AlwaysRefresh: v.GetBool("always_refresh"),
		HTTPTimeout:   v.GetDuration("http_timeout"),
		Store:         strings.ToLower(v.GetString("store")),
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Prefix:   v.GetString("redis.prefix"),
		},
		LogLevel:    v.GetString("log_level"),
		MetricsFile: v.GetString("metrics_file"),
		DefaultList: v.GetString("default_list"),
		Breaker: BreakerConfig{
			Enabled:      v.GetBool("breaker.enabled"),
			MinRequests:  v.GetUint32("breaker.min_requests"),
			FailureRatio: v.GetFloat64("breaker.failure_ratio"),
			Timeout:      v.GetDuration("breaker.timeout"),
		},
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("invalid store: %s (want file, redis or memory)", c.Store)
	}
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.RenewalWindow < 0 {
		return fmt.Errorf("invalid renewal_window: %s", c.RenewalWindow)
	}
	return nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// TokenPath returns the path to the stored credential file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}
