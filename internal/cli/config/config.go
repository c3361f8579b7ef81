package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/conduit-lang/trident/internal/cache"
	"github.com/conduit-lang/trident/internal/logging"
	"github.com/conduit-lang/trident/internal/payload"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Name is the config file name without extension
const Name = "trident"

// EnvPrefix prefixes environment overrides, e.g. TRIDENT_SESSION_DRIVER
const EnvPrefix = "TRIDENT"

// Config represents the trident configuration
type Config struct {
	Session SessionConfig  `mapstructure:"session"`
	Cache   CacheConfig    `mapstructure:"cache"`
	Server  ServerConfig   `mapstructure:"server"`
	Log     logging.Config `mapstructure:"log"`
	Dump    DumpConfig     `mapstructure:"dump"`
}

// SessionConfig selects the store answering relationship callbacks
type SessionConfig struct {
	Driver   string   `mapstructure:"driver"`
	DSN      string   `mapstructure:"dsn"`
	Fixtures []string `mapstructure:"fixtures"`
}

// CacheConfig configures the Redis response cache
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// ServerConfig represents the record API server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DumpConfig holds dump defaults
type DumpConfig struct {
	Format string `mapstructure:"format"`
}

// Load reads the configuration. An explicit path must exist; otherwise
// trident.yml or trident.yaml is looked up from the working directory
// upwards, and defaults apply when none is found.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		if dir, err := FindRoot(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Session.Fixtures = splitList(config.Session.Fixtures)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.driver", session.DriverMemory)
	v.SetDefault("session.dsn", "")
	v.SetDefault("session.fixtures", []string{})
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", cache.DefaultConfig().Prefix)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("dump.format", string(payload.JSON))
}

// FindRoot returns the nearest directory at or above the working directory
// holding a trident config file
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, ext := range []string{".yml", ".yaml"} {
			if _, err := os.Stat(filepath.Join(dir, Name+ext)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yml found", Name)
		}
		dir = parent
	}
}

// SessionConfig returns the store configuration
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Driver:   c.Session.Driver,
		DSN:      c.Session.DSN,
		Fixtures: c.Session.Fixtures,
	}
}

// RedisConfig returns the cache connection settings
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.Cache.Addr,
		Password: c.Cache.Password,
		DB:       c.Cache.DB,
		Config: cache.Config{
			DefaultTTL: c.Cache.TTL,
			Prefix:     c.Cache.Prefix,
		},
	}
}

// Address returns the server listen address
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// splitList expands comma separated entries, as environment overrides arrive
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	var errs error

	switch cfg.Session.Driver {
	case session.DriverMemory:
	case session.DriverSQLite, session.DriverPostgres, session.DriverPgx, session.DriverHTTP:
		if cfg.Session.DSN == "" {
			errs = multierr.Append(errs, fmt.Errorf("session.dsn is required for driver %s", cfg.Session.Driver))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("session.driver must be one of memory, sqlite3, postgres, pgx, http, got: %s", cfg.Session.Driver))
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port))
	}
	if cfg.Cache.TTL < 0 {
		errs = multierr.Append(errs, fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL))
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := payload.ParseFormat(cfg.Dump.Format); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("dump.format: %w", err))
	}

	if errs != nil {
		return fmt.Errorf("invalid configuration: %w", errs)
	}
	return nil
}
