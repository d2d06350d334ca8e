// Package api exposes the daemon over HTTP: job submission and inspection,
// live progress streams, hook administration, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// JobRunner starts and cancels pipeline jobs.
type JobRunner interface {
	Submit(ctx context.Context, input domain.PipelineInput) (domain.Job, error)
	Cancel(ctx context.Context, jobID string) error
	Active() []string
}

// EventStream delivers live job progress to subscribers.
type EventStream interface {
	Subscribe(ctx context.Context, jobID string) <-chan domain.ProgressEvent
	Sequence(jobID string) uint64
	Dropped() uint64
}

// HealthSource reports capability server health.
type HealthSource interface {
	Health() []domain.HealthRecord
	Healthy() bool
	Stats() domain.RegistryStats
}

// HookAdmin exposes the loaded hook rules for inspection and toggling.
type HookAdmin interface {
	Snapshot() []domain.HookRule
	SetEnabled(name string, enabled bool) error
}

// Handlers holds the HTTP handlers and their dependencies. Hooks may be nil
// when no rules file is configured.
type Handlers struct {
	runner JobRunner
	store  domain.JobStore
	stream EventStream
	health HealthSource
	hooks  HookAdmin
	logger *zap.Logger
}

type Options struct {
	Runner JobRunner
	Store  domain.JobStore
	Stream EventStream
	Health HealthSource
	Hooks  HookAdmin
	Logger *zap.Logger
}

func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		runner: opts.Runner,
		store:  opts.Store,
		stream: opts.Stream,
		health: opts.Health,
		hooks:  opts.Hooks,
		logger: logger.Named("api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Debug("response encode failed", zap.Error(err))
		}
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	code, ok := domain.CodeFrom(err)
	if !ok {
		code = domain.CodeInternal
	}
	h.respondJSON(w, httpStatus(code), errorResponse{
		Error: err.Error(),
		Code:  string(code),
	})
}

func httpStatus(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	case domain.CodeUnavailable, domain.CodeConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
