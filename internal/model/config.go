package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BackendConfig holds the connection settings for the assistant backend.
type BackendConfig struct {
	// BaseURL is the root URL the notification endpoints hang off.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds every single HTTP request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RegistrationConfig controls how the client obtains its identity.
type RegistrationConfig struct {
	// RetryDelay is the fixed pause between failed registration attempts.
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	// DeviceName overrides the human-readable device label.
	DeviceName string `mapstructure:"device_name" yaml:"device_name"`
}

// PollingConfig holds the intervals of the two polling channels.
type PollingConfig struct {
	ForegroundInterval time.Duration `mapstructure:"foreground_interval" yaml:"foreground_interval"`
	BackgroundInterval time.Duration `mapstructure:"background_interval" yaml:"background_interval"`
}

// StoreConfig holds local history settings.
type StoreConfig struct {
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
}

// PresenterConfig holds system alert settings.
type PresenterConfig struct {
	AlertTimeout time.Duration `mapstructure:"alert_timeout" yaml:"alert_timeout"`
}

// WorkerConfig holds the settings of the background worker process.
type WorkerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	HTTPAddr       string        `mapstructure:"http_addr" yaml:"http_addr"`
}

// URL returns the NATS URL of the worker's embedded bus.
func (w WorkerConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", w.Host, w.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend      BackendConfig      `mapstructure:"backend" yaml:"backend"`
	Registration RegistrationConfig `mapstructure:"registration" yaml:"registration"`
	Polling      PollingConfig      `mapstructure:"polling" yaml:"polling"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Presenter    PresenterConfig    `mapstructure:"presenter" yaml:"presenter"`
	Worker       WorkerConfig       `mapstructure:"worker" yaml:"worker"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// Default values shared by defaultAppConfig and the viper defaults.
const (
	DefaultBaseURL            = "http://localhost:8000"
	DefaultBackendTimeout     = 30 * time.Second
	DefaultRetryDelay         = 5 * time.Second
	DefaultForegroundInterval = 30 * time.Second
	DefaultBackgroundInterval = 5 * time.Minute
	DefaultStoreCapacity      = 100
	DefaultAlertTimeout       = 10 * time.Second
	DefaultWorkerHost         = "127.0.0.1"
	DefaultWorkerPort         = 4318
	DefaultWorkerTimeout      = 5 * time.Second
	DefaultWorkerHTTPAddr     = "127.0.0.1:9464"
)

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/agentnotify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "agentnotify", "config.yaml")
}

func defaultDataPath(elem ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(append([]string{"."}, elem[len(elem)-1])...)
	}
	return filepath.Join(append([]string{home}, elem...)...)
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultBackendTimeout,
		},
		Registration: RegistrationConfig{
			RetryDelay: DefaultRetryDelay,
		},
		Polling: PollingConfig{
			ForegroundInterval: DefaultForegroundInterval,
			BackgroundInterval: DefaultBackgroundInterval,
		},
		Store: StoreConfig{
			Capacity: DefaultStoreCapacity,
			DBPath:   defaultDataPath(".local", "share", "agentnotify", "agentnotify.db"),
		},
		Presenter: PresenterConfig{
			AlertTimeout: DefaultAlertTimeout,
		},
		Worker: WorkerConfig{
			Host:           DefaultWorkerHost,
			Port:           DefaultWorkerPort,
			RequestTimeout: DefaultWorkerTimeout,
			HTTPAddr:       DefaultWorkerHTTPAddr,
		},
		Log: LogConfig{
			Level: "info",
			File:  defaultDataPath(".local", "state", "agentnotify", "agentnotify.log"),
		},
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *AppConfig {
	return defaultAppConfig()
}

// newViper returns a viper instance with defaults and AGENTNOTIFY_ env
// overrides applied.
func newViper() *viper.Viper {
	d := defaultAppConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("agentnotify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("registration.retry_delay", d.Registration.RetryDelay)
	v.SetDefault("registration.device_name", "")
	v.SetDefault("polling.foreground_interval", d.Polling.ForegroundInterval)
	v.SetDefault("polling.background_interval", d.Polling.BackgroundInterval)
	v.SetDefault("store.capacity", d.Store.Capacity)
	v.SetDefault("store.db_path", d.Store.DBPath)
	v.SetDefault("presenter.alert_timeout", d.Presenter.AlertTimeout)
	v.SetDefault("worker.host", d.Worker.Host)
	v.SetDefault("worker.port", d.Worker.Port)
	v.SetDefault("worker.request_timeout", d.Worker.RequestTimeout)
	v.SetDefault("worker.http_addr", d.Worker.HTTPAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)

	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and environment overrides apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c *AppConfig) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Polling.ForegroundInterval <= 0 || c.Polling.BackgroundInterval <= 0 {
		return errors.New("polling intervals must be positive")
	}
	if c.Registration.RetryDelay <= 0 {
		return errors.New("registration.retry_delay must be positive")
	}
	if c.Store.Capacity <= 0 {
		return errors.New("store.capacity must be positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend.base_url", cfg.Backend.BaseURL)
	v.Set("backend.timeout", cfg.Backend.Timeout.String())
	v.Set("registration.retry_delay", cfg.Registration.RetryDelay.String())
	v.Set("registration.device_name", cfg.Registration.DeviceName)
	v.Set("polling.foreground_interval", cfg.Polling.ForegroundInterval.String())
	v.Set("polling.background_interval", cfg.Polling.BackgroundInterval.String())
	v.Set("store.capacity", cfg.Store.Capacity)
	v.Set("store.db_path", cfg.Store.DBPath)
	v.Set("presenter.alert_timeout", cfg.Presenter.AlertTimeout.String())
	v.Set("worker.host", cfg.Worker.Host)
	v.Set("worker.port", cfg.Worker.Port)
	v.Set("worker.request_timeout", cfg.Worker.RequestTimeout.String())
	v.Set("worker.http_addr", cfg.Worker.HTTPAddr)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.file", cfg.Log.File)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
