package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/capability"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/events"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/genai"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/pipeline"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/store"
)

// Run executes one pipeline end to end against the simulation providers and
// returns the finished job with its stage history. A failed job is a normal
// outcome here, not an error.
func (a *App) Run(ctx context.Context, cfg RunConfig) (domain.Job, []domain.StageLogEntry, error) {
	jobStore := store.NewMemoryStore()
	bus := events.NewProgressBus(events.Options{Logger: a.logger})

	registry, err := capability.NewRegistry(simulationServers(), simulationTransport(), capability.RegistryOptions{
		Logger: a.logger,
	})
	if err != nil {
		return domain.Job{}, nil, err
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			a.logger.Warn("registry close failed", zap.Error(err))
		}
	}()
	for name, connErr := range registry.ConnectAll(ctx) {
		return domain.Job{}, nil, fmt.Errorf("connect %s: %w", name, connErr)
	}

	stages := pipeline.NewStages(registry, genai.NewStaticService(), pipeline.DefaultStageServers())
	engine, err := pipeline.NewEngine(jobStore, stages, pipeline.EngineOptions{
		Bus:    bus,
		Logger: a.logger,
	})
	if err != nil {
		return domain.Job{}, nil, err
	}

	job, err := engine.Execute(ctx, uuid.NewString(), cfg.Input)
	if err != nil {
		return domain.Job{}, nil, err
	}

	log, err := jobStore.StageLog(ctx, job.ID)
	if err != nil {
		a.logger.Warn("stage log unavailable", zap.Error(err))
	}
	return job, log, nil
}
