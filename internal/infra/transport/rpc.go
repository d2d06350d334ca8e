package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// RPCConn matches JSON-RPC responses to in-flight requests over a raw Conn,
// so multiple calls to the same server can overlap. Server-initiated requests
// are answered with method-not-found; notifications are dropped.
type RPCConn struct {
	conn    domain.Conn
	server  string
	logger  *zap.Logger
	seq     atomic.Uint64
	pending map[string]chan rpcResult

	mu        sync.Mutex
	closeOnce sync.Once
	cancel    context.CancelFunc
	closed    chan struct{}
}

type rpcResult struct {
	resp *jsonrpc.Response
	err  error
}

type RPCConnOptions struct {
	Logger *zap.Logger
	Server string
}

func NewRPCConn(conn domain.Conn, opts RPCConnOptions) *RPCConn {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &RPCConn{
		conn:    conn,
		server:  opts.Server,
		logger:  logger,
		pending: make(map[string]chan rpcResult),
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c
}

// Call sends one request and blocks until its response arrives, the context
// expires, or the connection closes. A server-reported error comes back as a
// *jsonrpc.Error.
func (c *RPCConn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.isClosed() {
		return nil, domain.ErrConnectionClosed
	}
	if strings.TrimSpace(method) == "" {
		return nil, errors.New("method is required")
	}

	seq := c.seq.Add(1)
	id, err := jsonrpc.MakeID(fmt.Sprintf("%s-%s-%d", c.server, method, seq))
	if err != nil {
		return nil, fmt.Errorf("build request id: %w", err)
	}
	rawParams, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	req := &jsonrpc.Request{ID: id, Method: method, Params: rawParams}
	wire, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	key, err := idKey(id)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan rpcResult, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed
	}
	c.pending[key] = resultCh
	c.mu.Unlock()

	if err := c.conn.Send(ctx, json.RawMessage(wire)); err != nil {
		c.removePending(key)
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, result.resp.Error
		}
		return result.resp.Result, nil
	case <-ctx.Done():
		c.removePending(key)
		return nil, ctx.Err()
	}
}

// Notify sends a request without an id and does not wait for a reply.
func (c *RPCConn) Notify(ctx context.Context, method string, params any) error {
	if c.isClosed() {
		return domain.ErrConnectionClosed
	}
	if strings.TrimSpace(method) == "" {
		return errors.New("method is required")
	}
	rawParams, err := marshalParams(params)
	if err != nil {
		return err
	}
	req := &jsonrpc.Request{Method: method, Params: rawParams}
	wire, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := c.conn.Send(ctx, json.RawMessage(wire)); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (c *RPCConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		// Claim the pending map before waking the read loop so every
		// in-flight call sees ErrConnectionClosed, not a recv error.
		c.failPending(domain.ErrConnectionClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

func (c *RPCConn) readLoop(ctx context.Context) {
	for {
		raw, err := c.conn.Recv(ctx)
		if err != nil {
			c.failPending(fmt.Errorf("recv: %w", err))
			return
		}
		msg, err := jsonrpc.DecodeMessage(raw)
		if err != nil {
			c.logger.Debug("drop undecodable message", zap.Error(err))
			continue
		}
		switch typed := msg.(type) {
		case *jsonrpc.Response:
			c.dispatchResponse(typed)
		case *jsonrpc.Request:
			if typed.ID.IsValid() {
				c.rejectServerCall(ctx, typed)
				continue
			}
			c.logger.Debug("drop notification", zap.String("method", typed.Method))
		}
	}
}

func (c *RPCConn) dispatchResponse(resp *jsonrpc.Response) {
	key, err := idKey(resp.ID)
	if err != nil {
		c.logger.Debug("drop response with invalid id", zap.Error(err))
		return
	}
	c.mu.Lock()
	ch := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()
	if ch == nil {
		c.logger.Debug("drop response with no pending call", zap.String("id", key))
		return
	}
	ch <- rpcResult{resp: resp}
}

func (c *RPCConn) rejectServerCall(ctx context.Context, req *jsonrpc.Request) {
	resp := &jsonrpc.Response{
		ID: req.ID,
		Error: &jsonrpc.Error{
			Code:    jsonrpc.CodeMethodNotFound,
			Message: "method not found",
		},
	}
	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		c.logger.Warn("encode method-not-found response failed", zap.Error(err))
		return
	}
	if err := c.conn.Send(ctx, json.RawMessage(wire)); err != nil {
		c.logger.Warn("respond to server call failed", zap.String("method", req.Method), zap.Error(err))
	}
}

func (c *RPCConn) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- rpcResult{err: err}
	}
}

func (c *RPCConn) removePending(key string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, key)
	}
	c.mu.Unlock()
}

func (c *RPCConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return json.RawMessage(raw), nil
}

// idKey normalizes a request id for the pending map. String and numeric ids
// never collide because of the prefix.
func idKey(id jsonrpc.ID) (string, error) {
	if !id.IsValid() {
		return "", errors.New("missing request id")
	}
	switch raw := id.Raw().(type) {
	case string:
		return "s:" + raw, nil
	case float64, int, int64:
		return fmt.Sprintf("n:%v", raw), nil
	case json.Number:
		return "n:" + raw.String(), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", raw)
	}
}
