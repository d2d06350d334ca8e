package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ServerConfig describes one named capability server. Immutable after the
// registry is built.
type ServerConfig struct {
	Name           string            `json:"name"`
	Cmd            []string          `json:"cmd"`
	Env            map[string]string `json:"env,omitempty"`
	Cwd            string            `json:"cwd,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
	MaxRetries     int               `json:"maxRetries"`
	HealthMethod   string            `json:"healthMethod,omitempty"`
	Disabled       bool              `json:"disabled,omitempty"`
}

// Timeout returns the per-attempt call timeout.
func (c ServerConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return time.Duration(DefaultCallTimeoutSeconds) * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
	StateReconnecting ConnState = "reconnecting"
)

// CallResult is the non-throwing outcome of a capability call. Err is set
// exactly when Success is false.
type CallResult struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Err       *Error          `json:"-"`
	Duration  time.Duration   `json:"-"`
	Timestamp time.Time       `json:"timestamp"`
}

// HealthRecord is a read-only snapshot produced by health polling.
type HealthRecord struct {
	Server    string    `json:"server"`
	State     ConnState `json:"state"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checkedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// ClientStats is a read-only counter snapshot for one client.
type ClientStats struct {
	Server     string    `json:"server"`
	State      ConnState `json:"state"`
	Calls      int64     `json:"calls"`
	Failures   int64     `json:"failures"`
	Retries    int64     `json:"retries"`
	LastCallAt time.Time `json:"lastCallAt"`
}

// RegistryStats aggregates client counters across the registry.
type RegistryStats struct {
	Servers       int           `json:"servers"`
	Connected     int           `json:"connected"`
	TotalCalls    int64         `json:"totalCalls"`
	TotalFailures int64         `json:"totalFailures"`
	Clients       []ClientStats `json:"clients"`
}

// Conn is a bidirectional message stream to one capability server.
type Conn interface {
	Send(ctx context.Context, msg json.RawMessage) error
	Recv(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// StopFn tears down whatever Transport.Start spawned.
type StopFn func(ctx context.Context) error

// Transport establishes connections to capability servers.
type Transport interface {
	Start(ctx context.Context, cfg ServerConfig) (Conn, StopFn, error)
}
