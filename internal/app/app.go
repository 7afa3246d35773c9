package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/llmgrid/internal/config"
	"github.com/specialistvlad/llmgrid/internal/ctxlog"
	"github.com/specialistvlad/llmgrid/internal/httpclient"
	"github.com/specialistvlad/llmgrid/internal/provider"
	"github.com/specialistvlad/llmgrid/internal/search"
	"github.com/specialistvlad/llmgrid/internal/store"
)

// App encapsulates the project's dependencies, configuration, and
// lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	ctx     context.Context
	config  *Config
	project *config.Config

	http      *http.Client
	providers *provider.Registry
	search    *search.Registry

	storeOnce sync.Once
	store     store.Store
	storeErr  error

	httpServer *http.Server
}

// NewApp configures the logger, loads the project config and registers its
// providers and search backends. The store is opened on first use.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	load := config.LoadOrDefault
	if cfg.ConfigRequired {
		load = config.Load
	}
	project, err := load(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	client := httpclient.New(project.Run.Timeout)
	providers, err := buildProviders(project.Providers, client)
	if err != nil {
		return nil, err
	}
	logger.Debug("Providers registered.", "names", providers.Names())

	searchReg, err := buildSearch(project.Search, client)
	if err != nil {
		return nil, err
	}
	logger.Debug("Search backends registered.", "names", searchReg.Names())

	a := &App{
		outW:      outW,
		logger:    logger,
		ctx:       ctx,
		config:    cfg,
		project:   project,
		http:      client,
		providers: providers,
		search:    searchReg,
	}
	a.healthCheckServer()
	return a, nil
}

// Context returns a background context carrying the app's logger.
func (a *App) Context() context.Context {
	return a.ctx
}

// Bind returns ctx carrying the app's logger.
func (a *App) Bind(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Project returns the loaded project configuration.
func (a *App) Project() *config.Config {
	return a.project
}

// Providers returns the provider registry. This is primarily for testing.
func (a *App) Providers() *provider.Registry {
	return a.providers
}

// Store opens the configured store once and returns it.
func (a *App) Store(ctx context.Context) (store.Store, error) {
	a.storeOnce.Do(func() {
		a.store, a.storeErr = openStore(ctx, a.project)
		if a.storeErr == nil {
			ctxlog.FromContext(ctx).Debug("Store opened.", "driver", a.project.Store.Driver)
		}
	})
	return a.store, a.storeErr
}

// Close stops the health server and closes the store.
func (a *App) Close() error {
	var errs []error
	errs = append(errs, a.closeHealthCheckServer())
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
