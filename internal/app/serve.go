package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/api"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/capability"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/config"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/events"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/genai"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/hooks"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/pipeline"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/store"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/transport"
)

const shutdownGrace = 10 * time.Second

// Serve runs the daemon until ctx is cancelled: capability servers
// connected and health-polled, hook rules loaded and watched, the pipeline
// manager accepting jobs, and the HTTP surface up.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	loader := config.NewLoader(a.logger)
	conf, err := loader.Load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	a.logger.Info("configuration loaded",
		zap.String("config", cfg.ConfigPath),
		zap.Int("servers", len(conf.Servers)),
	)

	jobStore, err := store.OpenBolt(conf.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			a.logger.Warn("job store close failed", zap.Error(err))
		}
	}()

	a.recoverStaleJobs(ctx, jobStore)

	metrics := telemetry.NewPrometheusMetrics(nil)

	stdio := transport.NewStdioTransport(transport.StdioTransportOptions{Logger: a.logger})
	registry, err := capability.NewRegistry(conf.Servers, stdio, capability.RegistryOptions{
		Logger:  a.logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			a.logger.Warn("registry close failed", zap.Error(err))
		}
	}()

	// A server that fails to connect leaves the daemon degraded, not dead;
	// health polling keeps retrying it.
	for name, connErr := range registry.ConnectAll(ctx) {
		a.logger.Warn("capability server not connected",
			telemetry.ServerField(name),
			zap.Error(connErr),
		)
	}
	// Seed the health snapshot so /healthz answers before the first ticker
	// fire.
	registry.CheckHealth(ctx)
	registry.StartHealthPolling(time.Duration(conf.HealthIntervalSeconds) * time.Second)
	defer registry.StopHealthPolling()

	bus := events.NewProgressBus(events.Options{Logger: a.logger})

	var dispatcher *hooks.Dispatcher
	var hookAdmin api.HookAdmin
	if conf.Hooks.Path != "" {
		loaded, err := hooks.LoadRules(conf.Hooks.Path)
		if err != nil {
			return err
		}
		ruleSet := hooks.NewRules(loaded)
		dispatcher = hooks.NewDispatcher(ruleSet, hooks.DispatcherOptions{
			Caller: registry,
			Logger: a.logger,
		})
		hookAdmin = ruleSet
		a.logger.Info("hook rules loaded",
			zap.String("path", conf.Hooks.Path),
			zap.Int("rules", len(loaded)),
		)

		if conf.Hooks.Watch {
			watcher := hooks.NewWatcher(conf.Hooks.Path, ruleSet, a.logger)
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	}

	stages := pipeline.NewStages(registry, a.buildGeneration(ctx, conf.GenAI), pipeline.DefaultStageServers())
	engine, err := pipeline.NewEngine(jobStore, stages, pipeline.EngineOptions{
		Bus:     bus,
		Hooks:   dispatcher,
		Logger:  a.logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	manager, err := pipeline.NewManager(engine, jobStore, pipeline.ManagerOptions{
		BaseContext: ctx,
		Bus:         bus,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	handlers := api.NewHandlers(api.Options{
		Runner: manager,
		Store:  jobStore,
		Stream: bus,
		Health: registry,
		Hooks:  hookAdmin,
		Logger: a.logger,
	})
	server := api.NewServer(api.ServerOptions{
		Addr:     conf.Observability.ListenAddress,
		Handlers: handlers,
		Logger:   a.logger,
	})

	serveErr := server.Run(ctx)

	// Running jobs were cancelled with ctx; give them a bounded window to
	// land in a terminal status before the store closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("pipeline shutdown incomplete", zap.Error(err))
	}

	return serveErr
}

// buildGeneration prefers the configured model and falls back to the static
// planner when it cannot be initialized. The capability servers still do the
// real analyze, validate and deploy work either way.
func (a *App) buildGeneration(ctx context.Context, cfg genai.Config) genai.Service {
	service, err := genai.NewEinoService(ctx, cfg, genai.EinoServiceOptions{Logger: a.logger})
	if err != nil {
		a.logger.Warn("generation model unavailable, using static planner", zap.Error(err))
		return genai.NewStaticService()
	}
	return service
}

// recoverStaleJobs marks jobs left non-terminal by a previous process as
// failed. Their run goroutines died with the daemon and nothing will ever
// advance them.
func (a *App) recoverStaleJobs(ctx context.Context, jobStore domain.JobStore) {
	jobs, err := jobStore.ListJobs(ctx)
	if err != nil {
		a.logger.Warn("stale job sweep failed", zap.Error(err))
		return
	}
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		err := jobStore.UpdateJobStatus(ctx, job.ID, domain.JobFailed, job.CurrentStage, "interrupted by daemon restart")
		if err != nil {
			a.logger.Warn("stale job not recovered", telemetry.JobField(job.ID), zap.Error(err))
			continue
		}
		a.logger.Info("stale job marked failed",
			telemetry.JobField(job.ID),
			telemetry.StatusField(string(job.Status)),
		)
	}
}
