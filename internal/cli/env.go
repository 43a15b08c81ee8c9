package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/agent-notify/internal/client"
	"github.com/nhle/agent-notify/internal/credential"
	"github.com/nhle/agent-notify/internal/desktop"
	"github.com/nhle/agent-notify/internal/logging"
	"github.com/nhle/agent-notify/internal/model"
	"github.com/nhle/agent-notify/internal/notifications"
	"github.com/nhle/agent-notify/internal/permission"
	"github.com/nhle/agent-notify/internal/session"
	"github.com/nhle/agent-notify/internal/store"
)

// logToStderr logs console output to stderr, for one-shot commands.
func logToStderr(*model.AppConfig) logging.Options {
	return logging.Options{}
}

// logToFile logs to log.file so the terminal UI is not disturbed.
func logToFile(cfg *model.AppConfig) logging.Options {
	return logging.Options{File: cfg.Log.File}
}

// logToJSON logs JSON to stderr, for the long-running worker.
func logToJSON(*model.AppConfig) logging.Options {
	return logging.Options{Format: logging.FormatJSON}
}

// Replaceable in tests.
var (
	openCredentials = credential.Open
	connectNotifier = desktop.Connect
)

// defaultRegisterTimeout bounds registration for one-shot commands.
const defaultRegisterTimeout = 30 * time.Second

// env is the set of collaborators every command builds from the config.
type env struct {
	cfg       *model.AppConfig
	logger    *zap.Logger
	client    *client.Client
	session   *session.Session
	registrar *session.Registrar
	store     *store.Store
	sqlite    *store.SQLiteStore

	deviceName string
	deviceID   string

	cleanup []func()
}

// loadConfig reads the configuration and applies the --log-level override.
func (o *globalOptions) loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// newEnv loads the configuration and opens the logger, the backend client,
// the local database and the device identity. logTo picks the log output
// for the command.
func newEnv(o *globalOptions, logTo func(*model.AppConfig) logging.Options) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logOpts := logTo(cfg)
	logOpts.Level = cfg.Log.Level
	logger, flush, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:     cfg,
		logger:  logger,
		cleanup: []func(){flush},
	}

	e.client = client.New(cfg.Backend.BaseURL,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithLogger(logger),
	)
	e.session = session.New()
	e.registrar = session.NewRegistrar(e.client, e.session, logger, cfg.Registration.RetryDelay)
	e.store = store.NewStore(cfg.Store.Capacity)

	sqlite, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("opening local database: %w", err)
	}
	e.sqlite = sqlite
	e.onClose(func() { _ = sqlite.Close() })

	e.deviceName = cfg.Registration.DeviceName
	if e.deviceName == "" {
		e.deviceName = credential.DefaultDeviceName()
	}
	e.deviceID = deviceID(logger)

	return e, nil
}

// deviceID returns the stored device id, or a fresh one for this run when
// no keyring is available.
func deviceID(logger *zap.Logger) string {
	creds, err := openCredentials()
	if err == nil {
		var id string
		if id, err = creds.DeviceID(); err == nil {
			return id
		}
	}
	logger.Warn("device id not persisted", zap.Error(err))
	return credential.NewDeviceID()
}

func (e *env) onClose(fn func()) {
	e.cleanup = append(e.cleanup, fn)
}

// Close releases everything newEnv and later setup opened, last first.
func (e *env) Close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
	e.cleanup = nil
}

// register obtains an identity, retrying until timeout.
func (e *env) register(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultRegisterTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := e.registrar.RegisterUntilSuccess(ctx, e.deviceName, e.deviceID); err != nil {
		return fmt.Errorf("registering with %s: %w", e.cfg.Backend.BaseURL, err)
	}
	return nil
}

// service builds a notification service over the env's store and snapshot.
func (e *env) service(opts ...notifications.Option) *notifications.Service {
	opts = append([]notifications.Option{
		notifications.WithSnapshot(e.sqlite),
		notifications.WithLogger(e.logger),
	}, opts...)
	return notifications.NewService(e.client, e.session, e.store, opts...)
}

// connectDesktop attaches to the desktop notification service. When that is
// not possible the returned platform reports unsupported and the notifier
// is nil.
func (e *env) connectDesktop() (permission.Platform, *desktop.Notifier) {
	notifier, err := connectNotifier(e.logger)
	if err != nil {
		e.logger.Info("desktop notifications unavailable", zap.Error(err))
		return desktop.Unsupported{}, nil
	}
	e.onClose(notifier.Close)
	return notifier, notifier
}
