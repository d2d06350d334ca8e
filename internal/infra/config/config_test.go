package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

func TestLoader_Success(t *testing.T) {
	file := writeTempConfig(t, `
healthIntervalSeconds: 45
servers:
  - name: analyzer
    cmd: ["./bin/abap-analyzer", "--stdio"]
    env:
      SAP_CLIENT: "100"
    cwd: /opt/resurrector
    timeoutSeconds: 20
    maxRetries: 2
    healthMethod: ping
genai:
  provider: openai
  model: gpt-4o-mini
  apiKeyEnvVar: OPENAI_API_KEY
hooks:
  path: hooks.yaml
	`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)

	expect := domain.ServerConfig{
		Name:           "analyzer",
		Cmd:            []string{"./bin/abap-analyzer", "--stdio"},
		Env:            map[string]string{"SAP_CLIENT": "100"},
		Cwd:            "/opt/resurrector",
		TimeoutSeconds: 20,
		MaxRetries:     2,
		HealthMethod:   "ping",
	}
	if diff := cmp.Diff(expect, cfg.Servers[0]); diff != "" {
		t.Fatalf("server mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, 45, cfg.HealthIntervalSeconds)
	require.Equal(t, "gpt-4o-mini", cfg.GenAI.Model)
	require.Equal(t, "OPENAI_API_KEY", cfg.GenAI.APIKeyEnvVar)
	require.Equal(t, "hooks.yaml", cfg.Hooks.Path)

	// Everything the file does not mention keeps its default.
	require.Equal(t, domain.DefaultStorePath, cfg.Store.Path)
	require.Equal(t, domain.DefaultStatusListenAddress, cfg.Observability.ListenAddress)
	require.True(t, cfg.Hooks.Watch)
}

func TestLoader_Defaults(t *testing.T) {
	file := writeTempConfig(t, `
servers:
  - name: analyzer
    cmd: ["./analyzer"]
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultHealthIntervalSeconds, cfg.HealthIntervalSeconds)
	require.Equal(t, domain.DefaultStorePath, cfg.Store.Path)
	require.Equal(t, domain.DefaultStatusListenAddress, cfg.Observability.ListenAddress)
	require.Equal(t, "openai", cfg.GenAI.Provider)
	require.True(t, cfg.Hooks.Watch)
	require.Empty(t, cfg.Hooks.Path)
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("ANALYZER_CMD", "./from-env")
	file := writeTempConfig(t, `
servers:
  - name: env-server
    cmd: ["${ANALYZER_CMD}"]
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, []string{"./from-env"}, cfg.Servers[0].Cmd)
}

func TestLoader_EnvExpansionNumeric(t *testing.T) {
	t.Setenv("CALL_TIMEOUT", "25")
	file := writeTempConfig(t, `
servers:
  - name: env-server
    cmd: ["./env-server"]
    timeoutSeconds: ${CALL_TIMEOUT}
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Servers[0].TimeoutSeconds)
}

func TestLoader_MissingEnvVarExpandsEmpty(t *testing.T) {
	file := writeTempConfig(t, `
servers:
  - name: env-server
    cmd: ["./env-server"]
genai:
  apiKey: ${RESURRECTOR_TEST_UNSET_KEY}
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Empty(t, cfg.GenAI.APIKey)
}

func TestLoader_DisabledServerWithoutCmd(t *testing.T) {
	file := writeTempConfig(t, `
servers:
  - name: parked
    disabled: true
`)

	loader := NewLoader(zap.NewNop())
	cfg, err := loader.Load(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	require.True(t, cfg.Servers[0].Disabled)
}

func TestLoader_AggregatedErrors(t *testing.T) {
	file := writeTempConfig(t, `
healthIntervalSeconds: 0
genai:
  provider: anthropic
servers:
  - name: dup
    cmd: ["./a"]
  - name: dup
    cmd: ["./b"]
  - name: no-cmd
  - name: bad-limits
    cmd: ["./c"]
    timeoutSeconds: -1
    maxRetries: -2
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "healthIntervalSeconds must be positive")
	require.Contains(t, err.Error(), `genai.provider "anthropic" is not supported`)
	require.Contains(t, err.Error(), `servers[1]: duplicate name "dup"`)
	require.Contains(t, err.Error(), "servers[2]: cmd is required")
	require.Contains(t, err.Error(), "servers[3]: timeoutSeconds must not be negative")
	require.Contains(t, err.Error(), "servers[3]: maxRetries must not be negative")
}

func TestLoader_MalformedYAML(t *testing.T) {
	file := writeTempConfig(t, `
servers: [unclosed
`)

	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), file)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
}

func TestLoader_MissingFile(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestLoader_EmptyPath(t *testing.T) {
	loader := NewLoader(zap.NewNop())
	_, err := loader.Load(context.Background(), "")
	require.Error(t, err)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	normalized := strings.ReplaceAll(content, "\t", "  ")
	if err := os.WriteFile(path, []byte(normalized), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}
