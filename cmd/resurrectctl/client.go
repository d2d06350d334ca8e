package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// apiClient is a thin JSON client for the daemon status API.
type apiClient struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
}

func newAPIClient(opts *cliOptions) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(opts.apiAddress, "/"),
		// Timeouts are applied per request; a client-wide deadline would
		// sever the event stream mid-watch.
		httpc:   &http.Client{},
		timeout: time.Duration(opts.timeoutSeconds) * time.Second,
	}
}

// apiError mirrors the daemon's error envelope.
type apiError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e apiError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type jobListPayload struct {
	Jobs []domain.Job `json:"jobs"`
}

type jobDetailPayload struct {
	Job      domain.Job             `json:"job"`
	StageLog []domain.StageLogEntry `json:"stageLog"`
}

type cancelPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type healthPayload struct {
	Status  string                `json:"status"`
	Servers []domain.HealthRecord `json:"servers"`
}

type statusPayload struct {
	ActiveJobs    []string              `json:"activeJobs"`
	Servers       []domain.HealthRecord `json:"servers"`
	Stats         domain.RegistryStats  `json:"stats"`
	DroppedEvents uint64                `json:"droppedEvents"`
}

type hookListPayload struct {
	Hooks []domain.HookRule `json:"hooks"`
}

type hookTogglePayload struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// health decodes the body on every status: a degraded daemon answers 503
// with the same payload shape.
func (c *apiClient) health(ctx context.Context) (healthPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return healthPayload{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return healthPayload{}, err
	}
	defer resp.Body.Close()

	var payload healthPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return healthPayload{}, fmt.Errorf("%s: %w", resp.Status, err)
	}
	return payload, nil
}

// streamEvents follows the job event stream, invoking fn per frame until the
// daemon closes the stream or fn returns an error. The request deadline is
// deliberately unbounded.
func (c *apiClient) streamEvents(ctx context.Context, jobID string, fn func(name string, data json.RawMessage) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	var name string
	var data bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				frame := json.RawMessage(bytes.Clone(data.Bytes()))
				if err := fn(name, frame); err != nil {
					return err
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%s: %w", resp.Status, err)
	}
	var apiErr apiError
	if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Message != "" {
		return apiErr
	}
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
}
