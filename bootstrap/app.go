// Package bootstrap wires the s4 components together: logger, server
// settings, instance configuration, storage, and the API server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"s4/api"
	"s4/config"
	"s4/storage"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Options carries CLI-level overrides applied on top of the loaded
// server settings.
type Options struct {
	// Port overrides api.port when non-zero.
	Port int
	// InMemory forces a transient in-memory database for this session.
	InMemory bool
	// LogLevel overrides log.level when non-empty.
	LogLevel string
}

// App represents the s4 application with all its components.
type App struct {
	Config   *config.Config
	Instance *config.InstanceConfig
	Logger   *zap.Logger
	Sugar    *zap.SugaredLogger

	Store     *storage.Store
	APIServer *api.API

	// Degraded reports whether the app runs with the default
	// non-secret credential and a non-persistent store.
	Degraded bool

	shutdownCh chan struct{}
}

// NewApp creates a new application instance and initializes all
// components. The instance configuration resolved here is immutable for
// the life of the process.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.Port != 0 {
		cfg.API.Port = opts.Port
	}
	if opts.InMemory {
		cfg.InMemory = true
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, sugar, err := InitLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Sugar:      sugar,
		shutdownCh: make(chan struct{}),
	}

	sugar.Info("s4 starting...")

	instanceDir, err := EnsureInstanceDir(cfg.InstanceDir)
	if err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}
	cfg.InstanceDir = instanceDir

	instance, degraded, err := resolveInstance(instanceDir, sugar)
	if err != nil {
		return nil, err
	}
	app.Degraded = degraded

	if cfg.InMemory && !instance.IsMemory() {
		sugar.Info("Using in-memory database for this session")
		instance = &config.InstanceConfig{
			SecretKey: instance.SecretKey,
			Database:  config.MemoryDatabase,
		}
	}
	app.Instance = instance

	store, err := storage.NewStore(instance.Database, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.Store = store

	app.APIServer = api.New(store, instance, cfg, sugar)

	return app, nil
}

// resolveInstance reads the persisted instance configuration, falling
// back to the documented degraded default when none exists. A corrupt
// artifact is fatal; it is never silently replaced.
func resolveInstance(instanceDir string, sugar *zap.SugaredLogger) (*config.InstanceConfig, bool, error) {
	instance, err := config.ResolveInstance(instanceDir)
	if err == nil {
		sugar.Infow("Instance configuration loaded",
			"config", config.InstancePath(instanceDir),
			"database", instance.Database)
		return instance, false, nil
	}

	if errors.Is(err, config.ErrNotConfigured) {
		sugar.Warn("No configuration file found. Using in-memory database with default secret key. " +
			"Run 's4 configure' to create a configuration file (recommended).")
		return config.DefaultInstance(), true, nil
	}

	return nil, false, fmt.Errorf("failed to resolve instance configuration: %w", err)
}

// Start starts the API server.
func (a *App) Start(ctx context.Context) error {
	addr := a.Config.ListenAddr()
	a.Sugar.Infow("API server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Give the listener a moment to fail fast on bind errors.
	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	go func() {
		if err := <-errCh; err != nil {
			a.Sugar.Errorw("API server terminated", "error", err)
			close(a.shutdownCh)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a termination signal arrives or the
// server fails.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Sugar.Infow("Shutdown signal received", "signal", sig.String())
	case <-a.shutdownCh:
	}
}

// Shutdown stops the API server and closes the store.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.APIServer != nil {
		if err := a.APIServer.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop API server", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Sugar.Errorw("Failed to close store", "error", err)
		}
	}

	a.Sugar.Info("s4 stopped")
	_ = a.Logger.Sync()
}
