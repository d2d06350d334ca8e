package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/events"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

// Manager runs pipelines as independent asynchronous tasks, one goroutine
// per job. Job state lives in the store; the manager only tracks what is
// in flight so runs can be cancelled and awaited.
type Manager struct {
	engine *Engine
	store  domain.JobStore
	bus    *events.ProgressBus
	logger *zap.Logger
	base   context.Context

	mu      sync.Mutex
	running map[string]*runState
}

type runState struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type ManagerOptions struct {
	// BaseContext bounds every run; cancelling it stops all jobs.
	BaseContext context.Context
	Bus         *events.ProgressBus
	Logger      *zap.Logger
}

func NewManager(engine *Engine, store domain.JobStore, opts ManagerOptions) (*Manager, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if store == nil {
		return nil, errors.New("job store is required")
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		engine:  engine,
		store:   store,
		bus:     opts.Bus,
		logger:  logger.Named("pipeline"),
		base:    base,
		running: make(map[string]*runState),
	}, nil
}

// Submit creates a job and starts its pipeline in the background. The
// returned job is already persisted, so callers can poll it immediately.
func (m *Manager) Submit(ctx context.Context, input domain.PipelineInput) (domain.Job, error) {
	job, err := m.engine.CreateJob(ctx, uuid.NewString(), input)
	if err != nil {
		return domain.Job{}, err
	}

	runCtx, cancel := context.WithCancel(m.base)
	state := &runState{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.running[job.ID] = state
	m.mu.Unlock()

	go m.runJob(runCtx, job.ID, input, state)
	return job, nil
}

func (m *Manager) runJob(ctx context.Context, jobID string, input domain.PipelineInput, state *runState) {
	defer func() {
		state.cancel()
		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
		if m.bus != nil {
			m.bus.Forget(jobID)
		}
		close(state.done)
	}()

	if _, err := m.engine.Run(ctx, jobID, input); err != nil {
		m.logger.Warn("pipeline run error",
			telemetry.JobField(jobID),
			telemetry.ErrorField(err),
		)
	}
}

// Cancel stops an in-flight job. The pipeline notices between stages (or
// inside the current capability call) and marks the job failed with a
// cancelled reason.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	state, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		m.logger.Info("job cancel requested",
			telemetry.EventField(telemetry.EventJobCancel),
			telemetry.JobField(jobID),
		)
		state.cancel()
		return nil
	}

	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return domain.E(domain.CodeNotFound, "pipeline.cancel", fmt.Sprintf("job %s not found", jobID), err)
		}
		return err
	}
	if job.Status.IsTerminal() {
		return domain.E(domain.CodeConflict, "pipeline.cancel",
			fmt.Sprintf("job %s is already %s", jobID, job.Status), domain.ErrJobTerminal)
	}
	return domain.E(domain.CodeConflict, "pipeline.cancel", fmt.Sprintf("job %s is not running", jobID), nil)
}

// Wait blocks until the job's run finishes, then returns the stored job.
// Jobs that are not in flight return immediately.
func (m *Manager) Wait(ctx context.Context, jobID string) (domain.Job, error) {
	m.mu.Lock()
	state, ok := m.running[jobID]
	m.mu.Unlock()
	if ok {
		select {
		case <-ctx.Done():
			return domain.Job{}, ctx.Err()
		case <-state.done:
		}
	}
	return m.store.GetJob(ctx, jobID)
}

// Active returns the IDs of jobs currently in flight, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every in-flight job and waits for their runs to land in
// a terminal state, or until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	states := make([]*runState, 0, len(m.running))
	for _, state := range m.running {
		states = append(states, state)
	}
	m.mu.Unlock()

	for _, state := range states {
		state.cancel()
	}
	for _, state := range states {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-state.done:
		}
	}
	return nil
}
