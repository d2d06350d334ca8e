package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

// StdioTransport launches a capability server as a child process and frames
// JSON-RPC messages over its stdin/stdout.
type StdioTransport struct {
	logger *zap.Logger
}

type StdioTransportOptions struct {
	Logger *zap.Logger
}

func NewStdioTransport(opts StdioTransportOptions) *StdioTransport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{logger: logger}
}

func (t *StdioTransport) Start(ctx context.Context, cfg domain.ServerConfig) (domain.Conn, domain.StopFn, error) {
	if len(cfg.Cmd) == 0 {
		return nil, nil, errors.New("cmd is required for stdio transport")
	}
	if _, err := exec.LookPath(cfg.Cmd[0]); err != nil {
		return nil, nil, fmt.Errorf("resolve executable: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.Cmd[0], cfg.Cmd[1:]...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	cmd.Env = append(os.Environ(), formatEnv(cfg.Env)...)
	reap := prepareProcess(cmd)

	mcpConn, err := (&mcp.CommandTransport{Command: cmd}).Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect stdio: %w", err)
	}
	t.logger.Debug("capability server process started",
		telemetry.ServerField(cfg.Name),
		zap.String("executable", cfg.Cmd[0]),
	)

	stop := func(stopCtx context.Context) error {
		_ = mcpConn.Close()
		if reap != nil {
			reap()
		}
		t.logger.Debug("capability server process stopped", telemetry.ServerField(cfg.Name))
		return nil
	}
	return &sdkConn{conn: mcpConn}, stop, nil
}

// sdkConn adapts the SDK connection to the raw-message Conn the rest of the
// daemon speaks.
type sdkConn struct {
	conn mcp.Connection
}

func (c *sdkConn) Send(ctx context.Context, msg json.RawMessage) error {
	if len(msg) == 0 {
		return errors.New("message is empty")
	}
	decoded, err := jsonrpc.DecodeMessage(msg)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return c.conn.Write(ctx, decoded)
}

func (c *sdkConn) Recv(ctx context.Context) (json.RawMessage, error) {
	msg, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return json.RawMessage(raw), nil
}

func (c *sdkConn) Close() error {
	return c.conn.Close()
}

// formatEnv renders the env map sorted so the child sees a stable environment
// across restarts.
func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
