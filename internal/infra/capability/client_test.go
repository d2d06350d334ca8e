package capability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/transport"
)

// scriptedTransport hands out connections whose first failConns incarnations
// refuse every send, so retry paths can be driven deterministically.
type scriptedTransport struct {
	mu        sync.Mutex
	starts    int
	failConns int
	startErr  error
}

func (s *scriptedTransport) Start(ctx context.Context, cfg domain.ServerConfig) (domain.Conn, domain.StopFn, error) {
	s.mu.Lock()
	s.starts++
	fail := s.starts <= s.failConns
	err := s.startErr
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	conn := newScriptConn(fail)
	return conn, func(context.Context) error { return conn.Close() }, nil
}

func (s *scriptedTransport) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

type scriptConn struct {
	fail      bool
	respCh    chan json.RawMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptConn(fail bool) *scriptConn {
	return &scriptConn{
		fail:   fail,
		respCh: make(chan json.RawMessage, 4),
		closed: make(chan struct{}),
	}
}

func (c *scriptConn) Send(ctx context.Context, msg json.RawMessage) error {
	if c.fail {
		return domain.ErrConnectionClosed
	}
	decoded, err := jsonrpc.DecodeMessage(msg)
	if err != nil {
		return err
	}
	req, ok := decoded.(*jsonrpc.Request)
	if !ok || !req.ID.IsValid() {
		return nil
	}
	resp := &jsonrpc.Response{ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		return err
	}
	c.respCh <- json.RawMessage(wire)
	return nil
}

func (c *scriptConn) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-c.respCh:
		return msg, nil
	case <-c.closed:
		return nil, domain.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *scriptConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// silentTransport connects fine but never answers, so every attempt runs
// into the per-attempt timeout.
type silentTransport struct{}

func (silentTransport) Start(ctx context.Context, cfg domain.ServerConfig) (domain.Conn, domain.StopFn, error) {
	conn := &silentConn{closed: make(chan struct{})}
	return conn, func(context.Context) error { return conn.Close() }, nil
}

type silentConn struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *silentConn) Send(ctx context.Context, msg json.RawMessage) error { return nil }

func (c *silentConn) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, domain.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *silentConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func fastPolicy(attempts int) domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

func newLoopbackClient(t *testing.T, lt *transport.LoopbackTransport, name string, opts ClientOptions) *Client {
	t.Helper()
	client := NewClient(domain.ServerConfig{Name: name, Cmd: []string{"loopback"}}, lt, opts)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func TestClientConnectLifecycle(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"summary":"ok"}`), nil
	})
	client := newLoopbackClient(t, lt, "analyzer", ClientOptions{})

	require.Equal(t, domain.StateDisconnected, client.State())
	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, domain.StateConnected, client.State())

	// Connecting again is a no-op.
	require.NoError(t, client.Connect(context.Background()))
	require.Equal(t, domain.StateConnected, client.State())

	require.NoError(t, client.Disconnect(context.Background()))
	require.Equal(t, domain.StateDisconnected, client.State())
	require.NoError(t, client.Disconnect(context.Background()))
}

func TestClientConnectFailureSetsErrorState(t *testing.T) {
	tp := &scriptedTransport{startErr: errors.New("spawn failed")}
	client := NewClient(domain.ServerConfig{Name: "broken"}, tp, ClientOptions{})

	err := client.Connect(context.Background())
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.CodeConnectionFailed, domainErr.Code)
	require.True(t, domainErr.Retryable)

	require.Equal(t, domain.StateError, client.State())
	require.Error(t, client.LastError())
}

func TestClientCallSucceeds(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"summary":"3 modules"}`), nil
	})
	client := newLoopbackClient(t, lt, "analyzer", ClientOptions{})
	require.NoError(t, client.Connect(context.Background()))

	result := client.Call(context.Background(), "analyze", map[string]string{"bundle": "orders"})
	require.True(t, result.Success)
	require.Nil(t, result.Err)
	require.JSONEq(t, `{"summary":"3 modules"}`, string(result.Data))
	require.False(t, result.Timestamp.IsZero())

	stats := client.Stats()
	require.EqualValues(t, 1, stats.Calls)
	require.EqualValues(t, 0, stats.Failures)
	require.EqualValues(t, 0, stats.Retries)
}

func TestClientCallWhenDisconnectedFailsImmediately(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	client := newLoopbackClient(t, lt, "analyzer", ClientOptions{Policy: fastPolicy(3)})

	result := client.Call(context.Background(), "analyze", nil)
	require.False(t, result.Success)
	require.NotNil(t, result.Err)
	require.Equal(t, domain.CodeUnavailable, result.Err.Code)

	stats := client.Stats()
	require.EqualValues(t, 1, stats.Failures)
	require.EqualValues(t, 0, stats.Retries)
}

func TestClientCallRetriesTransientFailures(t *testing.T) {
	// The first two connections die on send; the third answers. A three
	// attempt budget should therefore end in success.
	tp := &scriptedTransport{failConns: 2}
	client := NewClient(domain.ServerConfig{Name: "flaky"}, tp, ClientOptions{Policy: fastPolicy(3)})
	require.NoError(t, client.Connect(context.Background()))

	result := client.Call(context.Background(), "analyze", nil)
	require.True(t, result.Success)
	require.JSONEq(t, `{"ok":true}`, string(result.Data))

	stats := client.Stats()
	require.EqualValues(t, 2, stats.Retries)
	require.Equal(t, 3, tp.startCount())
	require.Equal(t, domain.StateConnected, client.State())
}

func TestClientCallExhaustsRetryBudget(t *testing.T) {
	tp := &scriptedTransport{failConns: 100}
	client := NewClient(domain.ServerConfig{Name: "dead"}, tp, ClientOptions{Policy: fastPolicy(3)})
	require.NoError(t, client.Connect(context.Background()))

	result := client.Call(context.Background(), "analyze", nil)
	require.False(t, result.Success)
	require.NotNil(t, result.Err)
	require.Equal(t, domain.CodeConnectionFailed, result.Err.Code)

	stats := client.Stats()
	require.EqualValues(t, 2, stats.Retries)
	require.EqualValues(t, 1, stats.Failures)
}

func TestClientCallTimesOutPerAttempt(t *testing.T) {
	client := NewClient(domain.ServerConfig{Name: "slow"}, silentTransport{}, ClientOptions{
		Policy:      fastPolicy(2),
		CallTimeout: 30 * time.Millisecond,
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	started := time.Now()
	result := client.Call(context.Background(), "analyze", nil)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeTimeout, result.Err.Code)
	require.True(t, result.Err.Retryable)
	require.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)

	stats := client.Stats()
	require.EqualValues(t, 1, stats.Retries)
}

func TestClientCallCanceledContextDoesNotRetry(t *testing.T) {
	client := NewClient(domain.ServerConfig{Name: "slow"}, silentTransport{}, ClientOptions{
		Policy:      fastPolicy(3),
		CallTimeout: time.Second,
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := client.Call(ctx, "analyze", nil)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeCanceled, result.Err.Code)
	require.EqualValues(t, 0, client.Stats().Retries)
}

func TestClientCallProviderErrorIsNotRetried(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("validator", "validate", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("schema mismatch")
	})
	client := newLoopbackClient(t, lt, "validator", ClientOptions{Policy: fastPolicy(3)})
	require.NoError(t, client.Connect(context.Background()))

	result := client.Call(context.Background(), "validate", nil)
	require.False(t, result.Success)
	require.Equal(t, domain.CodeInternal, result.Err.Code)
	require.Contains(t, result.Err.Error(), "schema mismatch")
	require.EqualValues(t, 0, client.Stats().Retries)
}

func TestClientReconnectReplacesConnection(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	client := newLoopbackClient(t, lt, "analyzer", ClientOptions{})
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.Reconnect(context.Background()))
	require.Equal(t, domain.StateConnected, client.State())
	require.True(t, client.Call(context.Background(), "analyze", nil).Success)
}

func TestClientHealthCheck(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	client := newLoopbackClient(t, lt, "analyzer", ClientOptions{})

	record := client.HealthCheck(context.Background())
	require.False(t, record.Healthy)
	require.Equal(t, domain.StateDisconnected, record.State)

	require.NoError(t, client.Connect(context.Background()))
	record = client.HealthCheck(context.Background())
	require.True(t, record.Healthy)
	require.Equal(t, domain.StateConnected, record.State)
	require.False(t, record.CheckedAt.IsZero())
}

func TestClientHealthCheckFailure(t *testing.T) {
	lt := transport.NewLoopbackTransport()
	lt.Register("flaky", "ping", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("overloaded")
	})
	client := newLoopbackClient(t, lt, "flaky", ClientOptions{})
	require.NoError(t, client.Connect(context.Background()))

	record := client.HealthCheck(context.Background())
	require.False(t, record.Healthy)
	require.Contains(t, record.LastError, "overloaded")
}
