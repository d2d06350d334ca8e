package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

const heartbeatInterval = 15 * time.Second

// StreamJobEvents handles GET /api/jobs/{id}/events as a server-sent event
// stream. The first frame is a "status" snapshot of the job as stored, which
// doubles as the resync point for clients that reconnected after missing
// events. Live frames follow as "progress" events until the job reaches a
// terminal status.
func (h *Handlers) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "streaming is not supported",
			Code:  string(domain.CodeInternal),
		})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the snapshot so nothing published in
	// between is lost.
	events := h.stream.Subscribe(ctx, jobID)

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot := domain.ProgressEvent{
		JobID:     job.ID,
		Stage:     job.CurrentStage,
		Status:    job.Status,
		Message:   job.ErrorMessage,
		Timestamp: time.Now(),
		Sequence:  h.stream.Sequence(jobID),
	}
	if err := writeSSE(w, "status", snapshot); err != nil {
		return
	}
	flusher.Flush()
	if job.Status.IsTerminal() {
		return
	}

	h.logger.Debug("event stream opened", telemetry.JobField(jobID))
	defer h.logger.Debug("event stream closed", telemetry.JobField(jobID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, "progress", event); err != nil {
				return
			}
			flusher.Flush()
			if event.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, name string, event domain.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", name, event.Sequence, data)
	return err
}
