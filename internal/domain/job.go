package domain

import (
	"context"
	"time"
)

type JobStatus string

const (
	JobCreated    JobStatus = "created"
	JobAnalyzing  JobStatus = "analyzing"
	JobPlanning   JobStatus = "planning"
	JobGenerating JobStatus = "generating"
	JobValidating JobStatus = "validating"
	JobDeploying  JobStatus = "deploying"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

type Stage string

const (
	StageAnalyze  Stage = "analyze"
	StagePlan     Stage = "plan"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageDeploy   Stage = "deploy"
)

// StageSequence returns the fixed pipeline order. Stages never run out of
// order and none is skipped.
func StageSequence() []Stage {
	return []Stage{StageAnalyze, StagePlan, StageGenerate, StageValidate, StageDeploy}
}

// RunningStatus maps a stage to the job status that announces it.
func (s Stage) RunningStatus() JobStatus {
	switch s {
	case StageAnalyze:
		return JobAnalyzing
	case StagePlan:
		return JobPlanning
	case StageGenerate:
		return JobGenerating
	case StageValidate:
		return JobValidating
	case StageDeploy:
		return JobDeploying
	default:
		return JobCreated
	}
}

// Job is one end-to-end resurrection run. Mutated only by the pipeline
// engine; Completed and Failed are terminal.
type Job struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	CurrentStage Stage      `json:"currentStage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageLogEntry records one step of a stage. Entries are append-only; a stage
// may write several entries when it fans out to capability servers.
type StageLogEntry struct {
	JobID         string      `json:"jobId"`
	Stage         Stage       `json:"stage"`
	Status        StageStatus `json:"status"`
	StartedAt     time.Time   `json:"startedAt"`
	DurationMs    int64       `json:"durationMs,omitempty"`
	InputSummary  string      `json:"inputSummary,omitempty"`
	OutputSummary string      `json:"outputSummary,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// ProgressEvent is published on every stage transition. Sequence is assigned
// by the bus at publish time and is monotonic per job.
type ProgressEvent struct {
	JobID     string    `json:"jobId"`
	Stage     Stage     `json:"stage,omitempty"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`
}

// PipelineInput is the raw material a job transforms: a named legacy code
// bundle and the stack it should be reborn into.
type PipelineInput struct {
	BundleName   string            `json:"bundleName"`
	LegacySource string            `json:"legacySource"`
	TargetStack  string            `json:"targetStack,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
}

// JobStore is the minimal persistence contract the pipeline needs. Stage logs
// are append-only; the engine never reads back its own writes mid-run.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, stage Stage, errMsg string) error
	AppendStageLog(ctx context.Context, entry StageLogEntry) error
	StageLog(ctx context.Context, jobID string) ([]StageLogEntry, error)
	ListJobs(ctx context.Context) ([]Job, error)
}
