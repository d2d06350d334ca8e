package transport

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
)

type fakeConn struct {
	recvCh chan json.RawMessage
	sent   []json.RawMessage
	mu     sync.Mutex
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		recvCh: make(chan json.RawMessage, 4),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) Send(ctx context.Context, msg json.RawMessage) error {
	select {
	case <-f.closed:
		return domain.ErrConnectionClosed
	default:
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-f.recvCh:
		return msg, nil
	case <-f.closed:
		return nil, domain.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) lastSent(t *testing.T) *jsonrpc.Request {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		f.mu.Lock()
		n := len(f.sent)
		f.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no message sent")
		case <-time.After(5 * time.Millisecond):
		}
	}
	f.mu.Lock()
	raw := f.sent[len(f.sent)-1]
	f.mu.Unlock()
	msg, err := jsonrpc.DecodeMessage(raw)
	require.NoError(t, err)
	req, ok := msg.(*jsonrpc.Request)
	require.True(t, ok)
	return req
}

func newLoopbackConn(t *testing.T, transport *LoopbackTransport, server string) *RPCConn {
	t.Helper()
	conn, stop, err := transport.Start(context.Background(), domain.ServerConfig{Name: server})
	require.NoError(t, err)
	rpc := NewRPCConn(conn, RPCConnOptions{Server: server})
	t.Cleanup(func() {
		_ = rpc.Close()
		_ = stop(context.Background())
	})
	return rpc
}

func TestRPCConnCallReturnsResult(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"modules":3}`), nil
	})
	rpc := newLoopbackConn(t, lt, "analyzer")

	result, err := rpc.Call(context.Background(), "analyze", map[string]string{"source": "legacy"})
	require.NoError(t, err)
	require.JSONEq(t, `{"modules":3}`, string(result))
}

func TestRPCConnCallSurfacesServerError(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("parse failed")
	})
	rpc := newLoopbackConn(t, lt, "analyzer")

	_, err := rpc.Call(context.Background(), "analyze", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse failed")
}

func TestRPCConnCallMethodNotFound(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("analyzer", "analyze", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	rpc := newLoopbackConn(t, lt, "analyzer")

	_, err := rpc.Call(context.Background(), "nope", nil)
	require.Error(t, err)
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, jsonrpc.CodeMethodNotFound, rpcErr.Code)
}

func TestRPCConnConcurrentCallsCorrelate(t *testing.T) {
	lt := NewLoopbackTransport()
	lt.Register("gen", "fast", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"which":"fast"}`), nil
	})
	lt.Register("gen", "slow", func(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
		time.Sleep(20 * time.Millisecond)
		return json.RawMessage(`{"which":"slow"}`), nil
	})
	rpc := newLoopbackConn(t, lt, "gen")

	var wg sync.WaitGroup
	results := make([]json.RawMessage, 2)
	errs := make([]error, 2)
	for i, method := range []string{"slow", "fast"} {
		wg.Add(1)
		go func(idx int, m string) {
			defer wg.Done()
			results[idx], errs[idx] = rpc.Call(context.Background(), m, nil)
		}(i, method)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.JSONEq(t, `{"which":"slow"}`, string(results[0]))
	require.JSONEq(t, `{"which":"fast"}`, string(results[1]))
}

func TestRPCConnCloseFailsPendingCalls(t *testing.T) {
	conn := newFakeConn()
	rpc := NewRPCConn(conn, RPCConnOptions{Server: "stuck"})

	callErr := make(chan error, 1)
	go func() {
		_, err := rpc.Call(context.Background(), "hang", nil)
		callErr <- err
	}()

	// The request must be in flight before we tear the connection down.
	conn.lastSent(t)
	require.NoError(t, rpc.Close())

	select {
	case err := <-callErr:
		require.ErrorIs(t, err, domain.ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call did not fail on close")
	}
}

func TestRPCConnCallAfterCloseFails(t *testing.T) {
	conn := newFakeConn()
	rpc := NewRPCConn(conn, RPCConnOptions{Server: "gone"})
	require.NoError(t, rpc.Close())

	_, err := rpc.Call(context.Background(), "anything", nil)
	require.ErrorIs(t, err, domain.ErrConnectionClosed)
}

func TestRPCConnContextCancellation(t *testing.T) {
	conn := newFakeConn()
	rpc := NewRPCConn(conn, RPCConnOptions{Server: "never"})
	t.Cleanup(func() { _ = rpc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	_, err := rpc.Call(ctx, "hang", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
