// Package app assembles the service from its parts.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/api"
	"github.com/bindery/novelbind/internal/assemble"
	"github.com/bindery/novelbind/internal/clock/system"
	"github.com/bindery/novelbind/internal/config"
	"github.com/bindery/novelbind/internal/fetch"
	"github.com/bindery/novelbind/internal/id/uuid"
	"github.com/bindery/novelbind/internal/job"
	"github.com/bindery/novelbind/internal/logging"
	"github.com/bindery/novelbind/internal/novel"
	"github.com/bindery/novelbind/internal/render"
	"github.com/bindery/novelbind/internal/retry"
	"github.com/bindery/novelbind/internal/source"
	"github.com/bindery/novelbind/internal/store/memory"
)

// App holds the wired service graph.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Store       *memory.JobStore
	Coordinator *job.Coordinator
	Server      *api.Server

	renderPool *render.Pool
}

// New loads configuration and wires every component. Rendering is
// optional: with render.enabled=false the browser never launches and
// sites that require it are simply not registered.
func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	fetcher, err := fetch.New(fetch.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		Concurrency: cfg.Fetch.Workers,
		DomainQPS:   cfg.Fetch.DomainQPS,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	var (
		renderPool *render.Pool
		sessions   novel.RenderPool
	)
	if cfg.Render.Enabled {
		engine, err := render.NewChromeEngine(cfg.Fetch.UserAgent, logger)
		if err != nil {
			return nil, fmt.Errorf("init render engine: %w", err)
		}
		renderPool = render.NewPool(engine, cfg.Render.MaxSessions, cfg.NavTimeout(), logger)
		sessions = renderPool
	}

	registry := source.Default(fetcher, sessions, logger)
	store := memory.NewJobStore()
	clk := system.New()

	policy := retry.New(cfg.Retry.MaxAttempts, cfg.BaseDelay(), cfg.MaxDelay())
	pool := job.NewPool(cfg.Fetch.Workers, policy, sessions, logger)
	assembler := assemble.New(assemble.Config{
		OutputDir:     cfg.Output.Dir,
		RetainPartial: cfg.Output.RetainPartial,
	}, clk, logger)

	coord := job.NewCoordinator(registry, store, assembler, pool, clk, uuid.NewGenerator(), job.Options{
		DefaultFormats: cfg.DefaultFormats(),
	}, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Coordinator: coord,
		Server:      api.NewServer(coord, logger),
		renderPool:  renderPool,
	}, nil
}

// Close shuts the coordinator and render pool down.
func (a *App) Close(ctx context.Context) error {
	err := a.Coordinator.Shutdown(ctx)
	if a.renderPool != nil {
		if cerr := a.renderPool.Close(ctx); err == nil {
			err = cerr
		}
	}
	_ = a.Logger.Sync()
	return err
}
