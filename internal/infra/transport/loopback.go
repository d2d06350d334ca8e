package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// Handler serves one JSON-RPC method of an in-process capability server.
type Handler func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// LoopbackTransport serves capability calls from registered in-process
// handlers instead of child processes. It backs the built-in simulation
// providers and keeps transport behavior testable without spawning anything.
type LoopbackTransport struct {
	mu      sync.RWMutex
	servers map[string]map[string]Handler
}

func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{
		servers: make(map[string]map[string]Handler),
	}
}

// Register installs a handler for one method of the named server. Later
// registrations replace earlier ones.
func (t *LoopbackTransport) Register(server, method string, handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	methods := t.servers[server]
	if methods == nil {
		methods = make(map[string]Handler)
		t.servers[server] = methods
	}
	methods[method] = handler
}

// RegisterServer installs a full method table for the named server.
func (t *LoopbackTransport) RegisterServer(server string, methods map[string]Handler) {
	for method, handler := range methods {
		t.Register(server, method, handler)
	}
}

func (t *LoopbackTransport) Start(ctx context.Context, cfg domain.ServerConfig) (domain.Conn, domain.StopFn, error) {
	t.mu.RLock()
	_, ok := t.servers[cfg.Name]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown loopback server %q", cfg.Name)
	}

	conn := &loopbackConn{
		transport: t,
		server:    cfg.Name,
		respCh:    make(chan json.RawMessage, 32),
		closed:    make(chan struct{}),
	}
	stop := func(stopCtx context.Context) error {
		return conn.Close()
	}
	return conn, stop, nil
}

func (t *LoopbackTransport) lookup(server, method string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	methods := t.servers[server]
	if methods == nil {
		return nil, false
	}
	handler, ok := methods[method]
	return handler, ok
}

type loopbackConn struct {
	transport *LoopbackTransport
	server    string
	respCh    chan json.RawMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *loopbackConn) Send(ctx context.Context, msg json.RawMessage) error {
	if c.isClosed() {
		return domain.ErrConnectionClosed
	}
	decoded, err := jsonrpc.DecodeMessage(msg)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	req, ok := decoded.(*jsonrpc.Request)
	if !ok {
		return nil
	}

	handler, found := c.transport.lookup(c.server, req.Method)
	if !req.ID.IsValid() {
		if found {
			_, _ = handler(ctx, req.Params)
		}
		return nil
	}

	resp := &jsonrpc.Response{ID: req.ID}
	switch {
	case found:
		result, err := handler(ctx, req.Params)
		if err != nil {
			resp.Error = err
		} else {
			resp.Result = result
		}
	case req.Method == "ping":
		// Every loopback server answers pings unless a handler overrides it.
		resp.Result = json.RawMessage(`{}`)
	default:
		resp.Error = &jsonrpc.Error{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		}
	}

	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	select {
	case c.respCh <- json.RawMessage(wire):
		return nil
	case <-c.closed:
		return domain.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *loopbackConn) Recv(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-c.respCh:
		return msg, nil
	case <-c.closed:
		return nil, domain.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *loopbackConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

func (c *loopbackConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var (
	_ domain.Transport = (*LoopbackTransport)(nil)
	_ domain.Transport = (*StdioTransport)(nil)
)
