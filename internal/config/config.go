package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/gestures/internal/engine"
	"github.com/loykin/gestures/internal/library"
	"github.com/loykin/gestures/internal/logger"
	"github.com/loykin/gestures/internal/param"
	"github.com/loykin/gestures/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. GESTURES_ENGINE_MAX_EVENTS.
const EnvPrefix = "GESTURES"

// Config represents the top-level TOML structure.
type Config struct {
	Engine     EngineConfig  `toml:"engine" mapstructure:"engine"`
	Store      StoreConfig   `toml:"store" mapstructure:"store"`
	History    HistoryConfig `toml:"history" mapstructure:"history"`
	Log        logger.Config `toml:"log" mapstructure:"log"`
	Server     ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics    MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Parameters []param.Def   `toml:"parameters" mapstructure:"parameters"`
}

type EngineConfig struct {
	NamePrefix     string        `toml:"name_prefix" mapstructure:"name_prefix"`
	MaxDuration    time.Duration `toml:"max_duration" mapstructure:"max_duration"`
	MaxEvents      int           `toml:"max_events" mapstructure:"max_events"`
	StorageKey     string        `toml:"storage_key" mapstructure:"storage_key"`
	CaptureSources []string      `toml:"capture_sources" mapstructure:"capture_sources"`
	PersistTimeout time.Duration `toml:"persist_timeout" mapstructure:"persist_timeout"`
}

// StoreConfig selects the key-value backend. See store/factory for DSN forms.
type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HistoryConfig lists lifecycle export sinks. See history/factory for DSN forms.
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	Sinks   []string `toml:"sinks" mapstructure:"sinks"`
}

type ServerConfig struct {
	Enabled  bool       `toml:"enabled" mapstructure:"enabled"`
	Listen   string     `toml:"listen" mapstructure:"listen"`
	BasePath string     `toml:"base_path" mapstructure:"base_path"`
	TLS      tls.Config `toml:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.name_prefix", library.DefaultNamePrefix)
	v.SetDefault("engine.max_duration", engine.DefaultMaxDuration)
	v.SetDefault("engine.max_events", engine.DefaultMaxEvents)
	v.SetDefault("engine.storage_key", library.DefaultKey)
	v.SetDefault("engine.capture_sources", engine.DefaultCaptureSources)
	v.SetDefault("engine.persist_timeout", engine.DefaultPersistTimeout)
	v.SetDefault("store.dsn", "memory://")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("log.slog.level", string(logger.LevelInfo))
	v.SetDefault("log.slog.format", string(logger.FormatText))
	v.SetDefault("log.slog.color", false)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.file.path", "")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8090")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	setDefaults(v)
	return v
}

// Default returns the built-in configuration. Environment overrides are not
// applied; use Load("") for those.
func Default() *Config {
	cfg, err := decode(newViper(false))
	if err != nil {
		// built-in defaults always validate
		panic(err)
	}
	return cfg
}

// Load reads a TOML file, applies defaults and GESTURES_* environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := newViper(true)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_duration must be positive, got %s", c.Engine.MaxDuration))
	}
	if c.Engine.MaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_events must be positive, got %d", c.Engine.MaxEvents))
	}
	if strings.TrimSpace(c.Engine.StorageKey) == "" {
		errs = append(errs, errors.New("engine.storage_key must not be empty"))
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		errs = append(errs, errors.New("history.enabled requires at least one sink"))
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must be set when the server is enabled"))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen must be set when metrics are enabled"))
	}
	seen := make(map[string]struct{}, len(c.Parameters))
	for i, p := range c.Parameters {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("parameters[%d] requires name", i))
		case p.Max < p.Min:
			errs = append(errs, fmt.Errorf("parameter %s has max %v below min %v", p.Name, p.Max, p.Min))
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("parameter %s defined twice", p.Name))
		}
		seen[p.Name] = struct{}{}
	}
	return errors.Join(errs...)
}
