// Package config loads client settings from defaults, a config file, .env and GOPHSYNC_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables
const EnvPrefix = "GOPHSYNC"

// Storage backends
const (
	StorageBolt   = "bolt"
	StorageSQLite = "sqlite"
)

// Config holds client settings
type Config struct {
	DBPath    string `mapstructure:"db_path"`
	Storage   string `mapstructure:"storage"`
	ReplicaID string `mapstructure:"replica_id"` // ReplicaID пустой, если идентификатор берется из метаданных

	ServerURL      string        `mapstructure:"server_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageLimit      int           `mapstructure:"page_limit"`

	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`

	SyncInterval time.Duration `mapstructure:"sync_interval"`
	SyncRate     time.Duration `mapstructure:"sync_rate"` // SyncRate минимальный интервал между циклами синхронизации
	Retention    time.Duration `mapstructure:"retention"`

	StatusFile string `mapstructure:"status_file"`
	NotifyURL  string `mapstructure:"notify_url"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Options tells Load where to look besides defaults and the environment
type Options struct {
	Flags      *pflag.FlagSet // Flags переопределяют все остальные источники
	ConfigFile string
	EnvFile    string // EnvFile по умолчанию .env в текущей директории
}

var defaults = map[string]any{
	"db_path":         "gophsync.db",
	"storage":         StorageBolt,
	"replica_id":      "",
	"server_url":      "http://localhost:8080",
	"token":           "",
	"request_timeout": 30 * time.Second,
	"page_limit":      500,
	"batch_size":      50,
	"max_retries":     5,
	"initial_delay":   time.Second,
	"max_delay":       5 * time.Minute,
	"sync_interval":   5 * time.Minute,
	"sync_rate":       2 * time.Second,
	"retention":       30 * 24 * time.Hour,
	"status_file":     "",
	"notify_url":      "",
	"log_level":       "info",
	"log_format":      "text",
	"log_file":        "",
}

// Load reads the configuration. Later sources win: defaults, config file, .env, environment, flags.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		// Флаги называются через дефис, ключи конфигурации через подчеркивание
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := defaults[key]; !ok {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFile loads .env without overriding variables already set
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Validate rejects nonsensical values
func (c *Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Storage != StorageBolt && c.Storage != StorageSQLite {
		errs = append(errs, fmt.Errorf("storage must be %q or %q, got %q", StorageBolt, StorageSQLite, c.Storage))
	}
	if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url %q is not an absolute URL", c.ServerURL))
	}
	if c.NotifyURL != "" {
		if u, err := url.Parse(c.NotifyURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("notify_url %q must use ws or wss", c.NotifyURL))
		}
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.PageLimit <= 0 {
		errs = append(errs, errors.New("page_limit must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must not be negative"))
	}
	if c.InitialDelay <= 0 || c.MaxDelay < c.InitialDelay {
		errs = append(errs, errors.New("initial_delay must be positive and not exceed max_delay"))
	}
	if c.SyncInterval < 0 {
		errs = append(errs, errors.New("sync_interval must not be negative"))
	}
	if c.SyncRate < 0 {
		errs = append(errs, errors.New("sync_rate must not be negative"))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("retention must not be negative"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
