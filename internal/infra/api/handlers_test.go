package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/events"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/hooks"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/store"
)

type fakeRunner struct {
	submitted []domain.PipelineInput
	job       domain.Job
	submitErr error
	cancelled []string
	cancelErr error
	active    []string
}

func (f *fakeRunner) Submit(ctx context.Context, input domain.PipelineInput) (domain.Job, error) {
	if f.submitErr != nil {
		return domain.Job{}, f.submitErr
	}
	f.submitted = append(f.submitted, input)
	return f.job, nil
}

func (f *fakeRunner) Cancel(ctx context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return f.cancelErr
}

func (f *fakeRunner) Active() []string { return f.active }

type fakeHealth struct {
	healthy bool
	records []domain.HealthRecord
	stats   domain.RegistryStats
}

func (f *fakeHealth) Health() []domain.HealthRecord { return f.records }
func (f *fakeHealth) Healthy() bool                 { return f.healthy }
func (f *fakeHealth) Stats() domain.RegistryStats   { return f.stats }

type apiFixture struct {
	runner   *fakeRunner
	store    *store.MemoryStore
	bus      *events.ProgressBus
	health   *fakeHealth
	rules    *hooks.Rules
	handlers *Handlers
	mux      *http.ServeMux
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		runner: &fakeRunner{},
		store:  store.NewMemoryStore(),
		bus:    events.NewProgressBus(events.Options{}),
		health: &fakeHealth{healthy: true},
		rules:  hooks.NewRules(nil),
	}
	f.handlers = NewHandlers(Options{
		Runner: f.runner,
		Store:  f.store,
		Stream: f.bus,
		Health: f.health,
		Hooks:  f.rules,
		Logger: zap.NewNop(),
	})
	f.mux = routes(f.handlers)
	return f
}

func perform(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSubmitJob(t *testing.T) {
	f := newFixture(t)
	f.runner.job = domain.Job{ID: "j-1", Status: domain.JobCreated, CreatedAt: time.Now().UTC()}

	rec := perform(t, f.mux, http.MethodPost, "/api/jobs",
		`{"bundleName":"fi-core","legacySource":"REPORT zpay.","targetStack":"go"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	got := decodeBody[domain.Job](t, rec)
	require.Equal(t, "j-1", got.ID)
	require.Equal(t, domain.JobCreated, got.Status)

	require.Len(t, f.runner.submitted, 1)
	require.Equal(t, "fi-core", f.runner.submitted[0].BundleName)
	require.Equal(t, "go", f.runner.submitted[0].TargetStack)
}

func TestSubmitJobInvalidBody(t *testing.T) {
	f := newFixture(t)

	rec := perform(t, f.mux, http.MethodPost, "/api/jobs", `{"bundleName":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	require.Equal(t, string(domain.CodeInvalidArgument), resp.Code)
	require.Empty(t, f.runner.submitted)
}

func TestSubmitJobRunnerError(t *testing.T) {
	f := newFixture(t)
	f.runner.submitErr = domain.E(domain.CodeInvalidArgument, "pipeline.create", "bundle name is required", nil)

	rec := perform(t, f.mux, http.MethodPost, "/api/jobs", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	require.Contains(t, resp.Error, "bundle name is required")
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	require.NoError(t, f.store.CreateJob(context.Background(),
		domain.Job{ID: "j-1", Status: domain.JobCompleted, CreatedAt: base}))
	require.NoError(t, f.store.CreateJob(context.Background(),
		domain.Job{ID: "j-2", Status: domain.JobAnalyzing, CreatedAt: base.Add(time.Second)}))

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[jobListResponse](t, rec)
	require.Len(t, resp.Jobs, 2)
	require.Equal(t, "j-1", resp.Jobs[0].ID)
	require.Equal(t, "j-2", resp.Jobs[1].ID)
}

func TestListJobsEmpty(t *testing.T) {
	f := newFixture(t)

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"jobs":[]`)
}

func TestListJobsStatusFilter(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	require.NoError(t, f.store.CreateJob(context.Background(),
		domain.Job{ID: "j-1", Status: domain.JobCompleted, CreatedAt: base}))
	require.NoError(t, f.store.CreateJob(context.Background(),
		domain.Job{ID: "j-2", Status: domain.JobFailed, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, f.store.CreateJob(context.Background(),
		domain.Job{ID: "j-3", Status: domain.JobFailed, CreatedAt: base.Add(2 * time.Second)}))

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[jobListResponse](t, rec)
	require.Len(t, resp.Jobs, 2)
	require.Equal(t, "j-2", resp.Jobs[0].ID)
	require.Equal(t, "j-3", resp.Jobs[1].ID)

	// An unknown status matches nothing rather than erroring.
	rec = perform(t, f.mux, http.MethodGet, "/api/jobs?status=bogus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"jobs":[]`)
}

func TestListJobsLimit(t *testing.T) {
	f := newFixture(t)
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.CreateJob(context.Background(), domain.Job{
			ID:        fmt.Sprintf("j-%d", i),
			Status:    domain.JobCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[jobListResponse](t, rec)
	require.Len(t, resp.Jobs, 2)

	// A malformed limit is ignored.
	rec = perform(t, f.mux, http.MethodGet, "/api/jobs?limit=nope", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[jobListResponse](t, rec)
	require.Len(t, resp.Jobs, 3)
}

func TestGetJobWithStageLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.CreateJob(ctx,
		domain.Job{ID: "j-1", Status: domain.JobAnalyzing, CurrentStage: domain.StageAnalyze, CreatedAt: time.Now().UTC()}))
	require.NoError(t, f.store.AppendStageLog(ctx, domain.StageLogEntry{
		JobID:     "j-1",
		Stage:     domain.StageAnalyze,
		Status:    domain.StageStarted,
		StartedAt: time.Now().UTC(),
	}))

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs/j-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[jobDetailResponse](t, rec)
	require.Equal(t, "j-1", resp.Job.ID)
	require.Len(t, resp.StageLog, 1)
	require.Equal(t, domain.StageAnalyze, resp.StageLog[0].Stage)
}

func TestGetJobNotFound(t *testing.T) {
	f := newFixture(t)

	rec := perform(t, f.mux, http.MethodGet, "/api/jobs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	resp := decodeBody[errorResponse](t, rec)
	require.Equal(t, string(domain.CodeNotFound), resp.Code)
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t)

	rec := perform(t, f.mux, http.MethodPost, "/api/jobs/j-1/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"j-1"}, f.runner.cancelled)

	resp := decodeBody[cancelResponse](t, rec)
	require.Equal(t, "cancelling", resp.Status)
}

func TestCancelJobConflict(t *testing.T) {
	f := newFixture(t)
	f.runner.cancelErr = domain.E(domain.CodeConflict, "pipeline.cancel", "job j-1 is already completed", domain.ErrJobTerminal)

	rec := perform(t, f.mux, http.MethodPost, "/api/jobs/j-1/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	f.health.records = []domain.HealthRecord{{Server: "analyzer", Healthy: true}}

	rec := perform(t, f.mux, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[healthResponse](t, rec)
	require.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Servers, 1)
}

func TestHealthzDegraded(t *testing.T) {
	f := newFixture(t)
	f.health.healthy = false
	f.health.records = []domain.HealthRecord{{Server: "analyzer", Healthy: false, LastError: "connection refused"}}

	rec := perform(t, f.mux, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeBody[healthResponse](t, rec)
	require.Equal(t, "degraded", resp.Status)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.runner.active = []string{"j-1", "j-2"}
	f.health.stats = domain.RegistryStats{Servers: 3, Connected: 2, TotalCalls: 17}

	rec := perform(t, f.mux, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[statusResponse](t, rec)
	require.Equal(t, []string{"j-1", "j-2"}, resp.ActiveJobs)
	require.Equal(t, 3, resp.Stats.Servers)
	require.Equal(t, int64(17), resp.Stats.TotalCalls)
}

func TestHooksListAndToggle(t *testing.T) {
	f := newFixture(t)
	f.rules.Replace([]domain.HookRule{
		{Name: "notify-done", Event: domain.HookJobCompleted, Action: domain.ActionNotify, Config: map[string]string{"message": "done"}, Enabled: true},
	})

	rec := perform(t, f.mux, http.MethodGet, "/api/hooks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[hookListResponse](t, rec)
	require.Len(t, list.Hooks, 1)
	require.True(t, list.Hooks[0].Enabled)

	rec = perform(t, f.mux, http.MethodPost, "/api/hooks/notify-done/disable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	toggle := decodeBody[hookToggleResponse](t, rec)
	require.False(t, toggle.Enabled)
	require.False(t, f.rules.Snapshot()[0].Enabled)

	rec = perform(t, f.mux, http.MethodPost, "/api/hooks/notify-done/enable", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.rules.Snapshot()[0].Enabled)
}

func TestHooksToggleUnknown(t *testing.T) {
	f := newFixture(t)

	rec := perform(t, f.mux, http.MethodPost, "/api/hooks/absent/enable", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
