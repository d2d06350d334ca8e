package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/store"
)

const payrollReport = `REPORT zpayroll.
DATA: lv_total TYPE p.
FORM calculate_tax.
  lv_total = lv_total * '0.19'.
ENDFORM.
FORM print_summary.
  WRITE: / 'total', lv_total.
ENDFORM.
`

func TestRunCompletesAgainstSimulation(t *testing.T) {
	application := New(zap.NewNop())

	job, log, err := application.Run(context.Background(), RunConfig{
		Input: domain.PipelineInput{
			BundleName:   "payroll",
			LegacySource: payrollReport,
			TargetStack:  "go",
		},
	})
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, job.Status)
	require.Equal(t, domain.StageDeploy, job.CurrentStage)
	require.NotNil(t, job.CompletedAt)
	require.Empty(t, job.ErrorMessage)

	require.Len(t, log, 2*len(domain.StageSequence()))
	require.Equal(t, domain.StageAnalyze, log[0].Stage)
	require.Equal(t, domain.StageStarted, log[0].Status)

	last := log[len(log)-1]
	require.Equal(t, domain.StageDeploy, last.Stage)
	require.Equal(t, domain.StageCompleted, last.Status)
	require.Contains(t, last.OutputSummary, "deployed to s3://resurrector-artifacts")
}

func TestRunRejectsInvalidInput(t *testing.T) {
	application := New(zap.NewNop())

	_, _, err := application.Run(context.Background(), RunConfig{})
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, code)
}

func TestRecoverStaleJobs(t *testing.T) {
	application := New(zap.NewNop())
	jobStore := store.NewMemoryStore()
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, jobStore.CreateJob(ctx, domain.Job{
		ID: "j-stuck", Status: domain.JobGenerating, CurrentStage: domain.StageGenerate, CreatedAt: base,
	}))
	require.NoError(t, jobStore.CreateJob(ctx, domain.Job{
		ID: "j-done", Status: domain.JobCompleted, CurrentStage: domain.StageDeploy, CreatedAt: base,
	}))

	application.recoverStaleJobs(ctx, jobStore)

	stuck, err := jobStore.GetJob(ctx, "j-stuck")
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, stuck.Status)
	require.Contains(t, stuck.ErrorMessage, "interrupted by daemon restart")

	done, err := jobStore.GetJob(ctx, "j-done")
	require.NoError(t, err)
	require.Equal(t, domain.JobCompleted, done.Status)
	require.Empty(t, done.ErrorMessage)
}

func TestValidateConfigAndHooks(t *testing.T) {
	dir := t.TempDir()
	hooksPath := filepath.Join(dir, "hooks.yaml")
	require.NoError(t, os.WriteFile(hooksPath, []byte(`
hooks:
  - name: notify-done
    event: job.completed
    action: notify
    config:
      message: "job {{job_id}} finished"
`), 0o644))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
servers:
  - name: analyzer
    cmd: ["./analyzer"]
hooks:
  path: `+hooksPath+`
`), 0o644))

	application := New(zap.NewNop())
	require.NoError(t, application.Validate(context.Background(), ValidateConfig{ConfigPath: configPath}))
}

func TestValidateRejectsBrokenHooksFile(t *testing.T) {
	dir := t.TempDir()
	hooksPath := filepath.Join(dir, "hooks.yaml")
	require.NoError(t, os.WriteFile(hooksPath, []byte(`
hooks:
  - name: broken
    event: job.finished
    action: notify
    config:
      message: hi
`), 0o644))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
servers:
  - name: analyzer
    cmd: ["./analyzer"]
hooks:
  path: `+hooksPath+`
`), 0o644))

	application := New(zap.NewNop())
	err := application.Validate(context.Background(), ValidateConfig{ConfigPath: configPath})
	require.Error(t, err)
	require.Contains(t, err.Error(), "job.finished")
}
