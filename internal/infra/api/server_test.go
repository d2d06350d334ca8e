package api

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

func TestStreamJobEvents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateJob(context.Background(), domain.Job{
		ID:           "j-1",
		Status:       domain.JobAnalyzing,
		CurrentStage: domain.StageAnalyze,
		CreatedAt:    time.Now().UTC(),
	}))

	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/j-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	frame := readSSEFrame(t, reader)
	require.Contains(t, frame, "event: status")
	require.Contains(t, frame, `"status":"analyzing"`)

	// The subscription predates the snapshot write, so events published
	// once the snapshot arrived must reach this client.
	f.bus.Publish(domain.ProgressEvent{
		JobID:   "j-1",
		Stage:   domain.StageValidate,
		Status:  domain.JobValidating,
		Message: "stage validate started",
	})
	f.bus.Publish(domain.ProgressEvent{
		JobID:   "j-1",
		Status:  domain.JobCompleted,
		Message: "job completed",
	})

	frame = readSSEFrame(t, reader)
	require.Contains(t, frame, "event: progress")
	require.Contains(t, frame, `"status":"validating"`)
	require.Contains(t, frame, "id: 1")

	frame = readSSEFrame(t, reader)
	require.Contains(t, frame, `"status":"completed"`)

	// The terminal event ends the stream.
	_, err = reader.ReadString('\n')
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamJobEventsTerminalSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.CreateJob(context.Background(), domain.Job{
		ID:        "j-done",
		Status:    domain.JobCompleted,
		CreatedAt: time.Now().UTC(),
	}))

	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/j-done/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "event: status")
	require.Contains(t, string(body), `"status":"completed"`)
}

func TestStreamJobEventsUnknownJob(t *testing.T) {
	f := newFixture(t)

	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRunGracefulShutdown(t *testing.T) {
	f := newFixture(t)
	listener := mustListen(t)
	addr := listener.Addr().String()
	listener.Close()

	srv := NewServer(ServerOptions{Addr: addr, Handlers: f.handlers, Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run(ctx)
	}()

	waitForStatus(t, "http://"+addr+"/healthz", http.StatusOK)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "# HELP")

	cancel()
	select {
	case err := <-errChan:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestServerRunPortInUse(t *testing.T) {
	f := newFixture(t)
	listener := mustListen(t)
	defer listener.Close()

	srv := NewServer(ServerOptions{Addr: listener.Addr().String(), Handlers: f.handlers, Logger: zap.NewNop()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := srv.Run(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to start")
}

func readSSEFrame(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return sb.String()
		}
		sb.WriteString(line)
	}
}

func mustListen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skip test due to listen error: %v", err)
	}
	return listener
}

func waitForStatus(t *testing.T, url string, status int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == status
	}, 2*time.Second, 25*time.Millisecond)
}
