package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/transport"
)

const healthCheckTimeout = 5 * time.Second

// Client owns the connection to one capability server and runs its state
// machine: disconnected -> connecting -> connected, with error and
// reconnecting on the failure paths. All methods are safe for concurrent use.
type Client struct {
	cfg       domain.ServerConfig
	transport domain.Transport
	policy    domain.RetryPolicy
	timeout   time.Duration
	logger    *zap.Logger
	metrics   domain.Metrics

	mu      sync.RWMutex
	state   domain.ConnState
	rpc     *transport.RPCConn
	stop    domain.StopFn
	lastErr error

	calls      int64
	failures   int64
	retries    int64
	lastCallAt time.Time
}

type ClientOptions struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	Policy  domain.RetryPolicy
	// CallTimeout overrides the per-attempt timeout derived from the server
	// config. Zero keeps the config value.
	CallTimeout time.Duration
}

func NewClient(cfg domain.ServerConfig, tp domain.Transport, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = domain.DefaultRetryPolicy()
	}
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}
	return &Client{
		cfg:       cfg,
		transport: tp,
		policy:    policy,
		timeout:   timeout,
		logger:    logger.Named("capability").With(telemetry.ServerField(cfg.Name)),
		metrics:   metrics,
		state:     domain.StateDisconnected,
	}
}

func (c *Client) Name() string {
	return c.cfg.Name
}

func (c *Client) Config() domain.ServerConfig {
	return c.cfg
}

// Connect dials the server. Connecting from connected is a no-op, and a
// second Connect while a dial is in flight returns immediately without
// starting another one.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case domain.StateConnected:
		c.mu.Unlock()
		return nil
	case domain.StateConnecting, domain.StateReconnecting:
		c.mu.Unlock()
		return nil
	}
	c.state = domain.StateConnecting
	c.mu.Unlock()

	return c.dial(ctx, domain.StateConnecting)
}

// Reconnect tears the current connection down and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == domain.StateConnecting || c.state == domain.StateReconnecting {
		c.mu.Unlock()
		return nil
	}
	rpc, stop := c.rpc, c.stop
	c.rpc, c.stop = nil, nil
	c.state = domain.StateReconnecting
	c.mu.Unlock()

	c.teardown(ctx, rpc, stop)
	c.logger.Info("reconnecting", telemetry.EventField(telemetry.EventReconnect))
	return c.dial(ctx, domain.StateReconnecting)
}

// dial runs the transport start and finalizes the state transition. The
// caller must have already moved the state to from.
func (c *Client) dial(ctx context.Context, from domain.ConnState) error {
	c.logger.Debug("connecting", telemetry.EventField(telemetry.EventConnectAttempt))

	conn, stop, err := c.transport.Start(ctx, c.cfg)
	if err != nil {
		wrapped := domain.E(domain.CodeConnectionFailed, "capability.connect",
			fmt.Sprintf("connect %s", c.cfg.Name), err)
		c.mu.Lock()
		c.state = domain.StateError
		c.lastErr = wrapped
		c.mu.Unlock()
		c.logger.Warn("connect failed",
			telemetry.EventField(telemetry.EventConnectFailure),
			zap.Error(err),
		)
		return wrapped
	}

	rpc := transport.NewRPCConn(conn, transport.RPCConnOptions{
		Logger: c.logger,
		Server: c.cfg.Name,
	})

	c.mu.Lock()
	if c.state != from {
		// Disconnected while the dial was in flight; drop the fresh conn.
		c.mu.Unlock()
		c.teardown(ctx, rpc, stop)
		return domain.ErrNotConnected
	}
	c.rpc = rpc
	c.stop = stop
	c.state = domain.StateConnected
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("connected", telemetry.EventField(telemetry.EventConnectSuccess))
	return nil
}

// Disconnect closes the connection and returns the client to disconnected.
// Safe to call in any state.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	rpc, stop := c.rpc, c.stop
	c.rpc, c.stop = nil, nil
	c.state = domain.StateDisconnected
	c.lastErr = nil
	c.mu.Unlock()

	if rpc == nil && stop == nil {
		return nil
	}
	c.logger.Info("disconnected", telemetry.EventField(telemetry.EventDisconnect))
	return c.close(ctx, rpc, stop)
}

func (c *Client) teardown(ctx context.Context, rpc *transport.RPCConn, stop domain.StopFn) {
	if err := c.close(ctx, rpc, stop); err != nil {
		c.logger.Debug("teardown failed", zap.Error(err))
	}
}

func (c *Client) close(ctx context.Context, rpc *transport.RPCConn, stop domain.StopFn) error {
	var errs []error
	if rpc != nil {
		if err := rpc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if stop != nil {
		if err := stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Call invokes a method on the server, retrying transient failures with
// exponential backoff. A broken connection is redialed before the next
// attempt. The outcome is always a CallResult; Err is populated instead of
// being thrown so callers can treat failures as data.
func (c *Client) Call(ctx context.Context, method string, params any) domain.CallResult {
	started := time.Now()

	c.mu.Lock()
	c.calls++
	c.lastCallAt = started
	state := c.state
	c.mu.Unlock()

	result := domain.CallResult{Timestamp: started}

	if state != domain.StateConnected {
		result.Err = domain.E(domain.CodeUnavailable, "capability.call",
			fmt.Sprintf("server %s is not connected", c.cfg.Name), domain.ErrNotConnected)
		return c.finish(method, started, result)
	}

	attempts := c.policy.Attempts()
	var lastErr *domain.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := c.callOnce(ctx, method, params)
		if err == nil {
			result.Success = true
			result.Data = data
			return c.finish(method, started, result)
		}
		lastErr = err

		if err.Code == domain.CodeCanceled || !c.policy.Retryable(err) || attempt == attempts {
			break
		}

		delay := c.policy.Backoff(attempt)
		c.mu.Lock()
		c.retries++
		c.mu.Unlock()
		c.metrics.ObserveCallRetry(c.cfg.Name)
		c.logger.Warn("call retry",
			telemetry.EventField(telemetry.EventCallRetry),
			telemetry.MethodField(method),
			telemetry.AttemptField(attempt),
			telemetry.DurationField(delay),
			zap.Error(err),
		)
		if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
			lastErr = domain.E(domain.CodeCanceled, "capability.call", "call canceled during backoff", sleepErr)
			break
		}
		if c.State() != domain.StateConnected {
			if rerr := c.Reconnect(ctx); rerr != nil {
				c.logger.Warn("redial before retry failed", zap.Error(rerr))
			}
		}
	}

	result.Err = lastErr
	return c.finish(method, started, result)
}

// callOnce performs a single attempt under the per-attempt timeout.
func (c *Client) callOnce(ctx context.Context, method string, params any) ([]byte, *domain.Error) {
	op := fmt.Sprintf("capability.call %s.%s", c.cfg.Name, method)

	c.mu.RLock()
	state := c.state
	rpc := c.rpc
	c.mu.RUnlock()
	if state != domain.StateConnected || rpc == nil {
		return nil, domain.E(domain.CodeConnectionFailed, op, "connection unavailable", domain.ErrNotConnected)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := rpc.Call(attemptCtx, method, params)
	if err == nil {
		return data, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, domain.E(domain.CodeCanceled, op, "call canceled", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return nil, domain.E(domain.CodeTimeout, op,
			fmt.Sprintf("call timed out after %s", c.timeout), err)
	case errors.Is(err, domain.ErrConnectionClosed):
		c.markBroken(err)
		return nil, domain.E(domain.CodeConnectionFailed, op, "connection lost", err)
	}

	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == jsonrpc.CodeMethodNotFound {
			return nil, domain.E(domain.CodeNotFound, op, rpcErr.Message, err)
		}
		return nil, domain.E(domain.CodeInternal, op, rpcErr.Message, err)
	}
	return nil, domain.Wrap(domain.CodeInternal, op, err)
}

// markBroken flags the connection as lost so health polling reconnects it.
func (c *Client) markBroken(err error) {
	c.mu.Lock()
	if c.state == domain.StateConnected {
		c.state = domain.StateError
		c.lastErr = err
	}
	c.mu.Unlock()
}

func (c *Client) finish(method string, started time.Time, result domain.CallResult) domain.CallResult {
	result.Duration = time.Since(started)
	var callErr error
	if result.Err != nil {
		callErr = result.Err
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		c.logger.Warn("call failed",
			telemetry.EventField(telemetry.EventCallFailure),
			telemetry.MethodField(method),
			telemetry.DurationField(result.Duration),
			zap.Error(result.Err),
		)
	}
	c.metrics.ObserveCall(c.cfg.Name, method, result.Duration, callErr)
	return result
}

// HealthCheck sends the configured health method once, without retries.
func (c *Client) HealthCheck(ctx context.Context) domain.HealthRecord {
	record := domain.HealthRecord{
		Server:    c.cfg.Name,
		CheckedAt: time.Now(),
	}

	c.mu.RLock()
	record.State = c.state
	rpc := c.rpc
	lastErr := c.lastErr
	c.mu.RUnlock()

	if record.State != domain.StateConnected || rpc == nil {
		if lastErr != nil {
			record.LastError = lastErr.Error()
		} else {
			record.LastError = domain.ErrNotConnected.Error()
		}
		return record
	}

	method := c.cfg.HealthMethod
	if method == "" {
		method = domain.DefaultHealthMethod
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := rpc.Call(checkCtx, method, nil); err != nil {
		record.LastError = err.Error()
		c.logger.Warn("health check failed",
			telemetry.EventField(telemetry.EventHealthCheckFailure),
			zap.Error(err),
		)
		return record
	}

	record.Healthy = true
	return record
}

func (c *Client) State() domain.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Client) Stats() domain.ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ClientStats{
		Server:     c.cfg.Name,
		State:      c.state,
		Calls:      c.calls,
		Failures:   c.failures,
		Retries:    c.retries,
		LastCallAt: c.lastCallAt,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
