package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/events"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/hooks"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

// Engine drives one job through the fixed stage sequence. It is the only
// writer of job state and the only publisher of a job's progress events.
// Stage work happens in the StageRunner; the engine owns ordering,
// persistence, events, hooks and metrics.
type Engine struct {
	store   domain.JobStore
	stages  StageRunner
	bus     *events.ProgressBus
	hooks   *hooks.Dispatcher
	logger  *zap.Logger
	metrics domain.Metrics
	now     func() time.Time
}

type EngineOptions struct {
	Bus     *events.ProgressBus
	Hooks   *hooks.Dispatcher
	Logger  *zap.Logger
	Metrics domain.Metrics
}

func NewEngine(store domain.JobStore, stages StageRunner, opts EngineOptions) (*Engine, error) {
	if store == nil {
		return nil, errors.New("job store is required")
	}
	if stages == nil {
		return nil, errors.New("stage runner is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Engine{
		store:   store,
		stages:  stages,
		bus:     opts.Bus,
		hooks:   opts.Hooks,
		logger:  logger.Named("pipeline"),
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// CreateJob persists the initial record for a run. The job starts in the
// created status; Run moves it forward.
func (e *Engine) CreateJob(ctx context.Context, jobID string, input domain.PipelineInput) (domain.Job, error) {
	if jobID == "" {
		return domain.Job{}, domain.E(domain.CodeInvalidArgument, "pipeline.create", "job id is required", nil)
	}
	if err := validateInput(input); err != nil {
		return domain.Job{}, err
	}

	job := domain.Job{
		ID:        jobID,
		Status:    domain.JobCreated,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, domain.ErrJobExists) {
			return domain.Job{}, domain.E(domain.CodeConflict, "pipeline.create", fmt.Sprintf("job %s already exists", jobID), err)
		}
		return domain.Job{}, err
	}

	e.logger.Info("job created",
		telemetry.EventField(telemetry.EventJobCreate),
		telemetry.JobField(jobID),
		zap.String("bundle", input.BundleName),
		zap.String("target", input.TargetStack),
	)
	e.publish(domain.ProgressEvent{JobID: jobID, Status: domain.JobCreated, Message: "job created"})
	e.trigger(ctx, domain.HookJobStarted, job, input, "")
	return job, nil
}

// Run executes the stage sequence for an existing job. Completed and failed
// jobs are immutable; re-running one is rejected. A stage failure ends the
// run with the job marked failed, not with an error return: the job record
// and its stage log are the source of truth for what happened.
func (e *Engine) Run(ctx context.Context, jobID string, input domain.PipelineInput) (domain.Job, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return domain.Job{}, domain.E(domain.CodeNotFound, "pipeline.run", fmt.Sprintf("job %s not found", jobID), err)
		}
		return domain.Job{}, err
	}
	if job.Status.IsTerminal() {
		return job, domain.E(domain.CodeConflict, "pipeline.run",
			fmt.Sprintf("job %s is already %s", jobID, job.Status), domain.ErrJobTerminal)
	}

	outputs := &domain.StageOutputs{}
	for _, stage := range domain.StageSequence() {
		// Cancellation lands between stages, never mid-write.
		if err := ctx.Err(); err != nil {
			cause := domain.E(domain.CodeCanceled, "pipeline.run", "job cancelled", err)
			e.appendLog(ctx, domain.StageLogEntry{
				JobID:     jobID,
				Stage:     stage,
				Status:    domain.StageFailed,
				StartedAt: e.now().UTC(),
				Error:     cause.Error(),
			})
			return e.failJob(ctx, job, stage, input, cause), nil
		}

		job.Status = stage.RunningStatus()
		job.CurrentStage = stage
		if err := e.store.UpdateJobStatus(ctx, jobID, job.Status, stage, ""); err != nil {
			return e.failJob(ctx, job, stage, input,
				domain.E(domain.CodeInternal, "pipeline.run", "persist status", err)), nil
		}
		e.publish(domain.ProgressEvent{JobID: jobID, Stage: stage, Status: job.Status, Message: "stage started"})
		e.logger.Info("stage started",
			telemetry.EventField(telemetry.EventStageStart),
			telemetry.JobField(jobID),
			telemetry.StageField(string(stage)),
		)

		started := e.now().UTC()
		e.appendLog(ctx, domain.StageLogEntry{
			JobID:        jobID,
			Stage:        stage,
			Status:       domain.StageStarted,
			StartedAt:    started,
			InputSummary: inputSummary(stage, input, outputs),
		})

		summary, err := e.stages.Run(ctx, stage, input, outputs)
		duration := e.now().Sub(started)
		e.metrics.ObserveStage(stage, duration, err)
		if err != nil {
			e.appendLog(ctx, domain.StageLogEntry{
				JobID:      jobID,
				Stage:      stage,
				Status:     domain.StageFailed,
				StartedAt:  started,
				DurationMs: duration.Milliseconds(),
				Error:      err.Error(),
			})
			e.logger.Warn("stage failed",
				telemetry.EventField(telemetry.EventStageFailure),
				telemetry.JobField(jobID),
				telemetry.StageField(string(stage)),
				telemetry.DurationField(duration),
				telemetry.ErrorField(err),
			)
			return e.failJob(ctx, job, stage, input, err), nil
		}

		e.appendLog(ctx, domain.StageLogEntry{
			JobID:         jobID,
			Stage:         stage,
			Status:        domain.StageCompleted,
			StartedAt:     started,
			DurationMs:    duration.Milliseconds(),
			OutputSummary: summary,
		})
		e.publish(domain.ProgressEvent{JobID: jobID, Stage: stage, Status: job.Status, Message: summary})
		e.logger.Info("stage completed",
			telemetry.EventField(telemetry.EventStageSuccess),
			telemetry.JobField(jobID),
			telemetry.StageField(string(stage)),
			telemetry.DurationField(duration),
		)
		if stage == domain.StageValidate {
			e.trigger(ctx, domain.HookStageValidated, job, input, "")
		}
	}

	if err := e.store.UpdateJobStatus(ctx, jobID, domain.JobCompleted, domain.StageDeploy, ""); err != nil {
		return e.failJob(ctx, job, domain.StageDeploy, input,
			domain.E(domain.CodeInternal, "pipeline.run", "persist completion", err)), nil
	}
	e.metrics.ObserveJob(domain.JobCompleted)
	e.publish(domain.ProgressEvent{JobID: jobID, Stage: domain.StageDeploy, Status: domain.JobCompleted, Message: "job completed"})
	e.logger.Info("job completed",
		telemetry.EventField(telemetry.EventJobComplete),
		telemetry.JobField(jobID),
	)

	job, err = e.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	e.trigger(ctx, domain.HookJobCompleted, job, input, "")
	return job, nil
}

// Execute creates the job and runs it to a terminal state in one call.
func (e *Engine) Execute(ctx context.Context, jobID string, input domain.PipelineInput) (domain.Job, error) {
	if _, err := e.CreateJob(ctx, jobID, input); err != nil {
		return domain.Job{}, err
	}
	return e.Run(ctx, jobID, input)
}

// failJob is the single path to the failed terminal state. The store write
// uses a detached context so a cancelled run still lands in a terminal
// status instead of staying stuck mid-pipeline.
func (e *Engine) failJob(ctx context.Context, job domain.Job, stage domain.Stage, input domain.PipelineInput, cause error) domain.Job {
	msg := cause.Error()
	storeCtx := context.WithoutCancel(ctx)
	if err := e.store.UpdateJobStatus(storeCtx, job.ID, domain.JobFailed, stage, msg); err != nil {
		e.logger.Error("persist job failure",
			telemetry.JobField(job.ID),
			telemetry.ErrorField(err),
		)
	}
	e.metrics.ObserveJob(domain.JobFailed)
	e.publish(domain.ProgressEvent{JobID: job.ID, Stage: stage, Status: domain.JobFailed, Message: msg})
	e.logger.Warn("job failed",
		telemetry.EventField(telemetry.EventJobFailure),
		telemetry.JobField(job.ID),
		telemetry.StageField(string(stage)),
		telemetry.ErrorField(cause),
	)

	job.Status = domain.JobFailed
	job.CurrentStage = stage
	job.ErrorMessage = msg
	if refreshed, err := e.store.GetJob(storeCtx, job.ID); err == nil {
		job = refreshed
	}
	e.trigger(storeCtx, domain.HookJobFailed, job, input, msg)
	return job
}

func (e *Engine) publish(event domain.ProgressEvent) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event)
}

func (e *Engine) appendLog(ctx context.Context, entry domain.StageLogEntry) {
	if err := e.store.AppendStageLog(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("append stage log",
			telemetry.JobField(entry.JobID),
			telemetry.StageField(string(entry.Stage)),
			telemetry.ErrorField(err),
		)
	}
}

func (e *Engine) trigger(ctx context.Context, event string, job domain.Job, input domain.PipelineInput, errMsg string) {
	if e.hooks == nil {
		return
	}
	fields := map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
		"stage":  string(job.CurrentStage),
		"bundle": input.BundleName,
		"target": input.TargetStack,
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	e.hooks.Trigger(ctx, event, fields)
}

func validateInput(input domain.PipelineInput) error {
	var problems []string
	if strings.TrimSpace(input.BundleName) == "" {
		problems = append(problems, "bundle name is required")
	}
	if strings.TrimSpace(input.LegacySource) == "" {
		problems = append(problems, "legacy source is required")
	}
	if len(problems) > 0 {
		return domain.E(domain.CodeInvalidArgument, "pipeline.create", strings.Join(problems, "; "), nil)
	}
	return nil
}

func inputSummary(stage domain.Stage, input domain.PipelineInput, outputs *domain.StageOutputs) string {
	switch stage {
	case domain.StageAnalyze:
		return fmt.Sprintf("bundle %s", input.BundleName)
	case domain.StagePlan:
		if outputs.Analysis != nil {
			return fmt.Sprintf("%d modules", len(outputs.Analysis.Modules))
		}
	case domain.StageGenerate:
		if outputs.Plan != nil {
			return fmt.Sprintf("%d plan steps", len(outputs.Plan.Steps))
		}
	case domain.StageValidate:
		if outputs.Artifact != nil {
			return fmt.Sprintf("%d files", len(outputs.Artifact.Files))
		}
	case domain.StageDeploy:
		if outputs.Artifact != nil {
			return fmt.Sprintf("%d validated files", len(outputs.Artifact.Files))
		}
	}
	return ""
}
