package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/telemetry"
)

// Registry holds one Client per configured capability server and routes
// calls to them by name. Disabled servers are dropped at construction.
type Registry struct {
	transport domain.Transport
	logger    *zap.Logger
	metrics   domain.Metrics

	clients map[string]*Client
	names   []string

	healthMu sync.RWMutex
	health   map[string]domain.HealthRecord

	mu         sync.Mutex
	pollTicker *time.Ticker
	stopPoll   chan struct{}
}

type RegistryOptions struct {
	Logger  *zap.Logger
	Metrics domain.Metrics
	Policy  domain.RetryPolicy
	// CallTimeout overrides every client's per-attempt timeout. Zero keeps
	// the per-server config values.
	CallTimeout time.Duration
}

func NewRegistry(configs []domain.ServerConfig, tp domain.Transport, opts RegistryOptions) (*Registry, error) {
	if tp == nil {
		return nil, errors.New("transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}

	r := &Registry{
		transport: tp,
		logger:    logger,
		metrics:   metrics,
		clients:   make(map[string]*Client),
		health:    make(map[string]domain.HealthRecord),
		stopPoll:  make(chan struct{}),
	}

	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, domain.E(domain.CodeInvalidArgument, "capability.registry", "server name is required", nil)
		}
		if _, exists := r.clients[cfg.Name]; exists {
			return nil, domain.E(domain.CodeInvalidArgument, "capability.registry",
				fmt.Sprintf("duplicate server name %q", cfg.Name), nil)
		}
		if cfg.Disabled {
			logger.Info("server disabled", telemetry.ServerField(cfg.Name))
			continue
		}
		r.clients[cfg.Name] = NewClient(cfg, tp, ClientOptions{
			Logger:      logger,
			Metrics:     metrics,
			Policy:      opts.Policy,
			CallTimeout: opts.CallTimeout,
		})
		r.names = append(r.names, cfg.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Servers returns the names of all managed servers in sorted order.
func (r *Registry) Servers() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Client returns the client for the named server.
func (r *Registry) Client(name string) (*Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrServerNotFound, name)
	}
	return client, nil
}

// ConnectAll dials every server concurrently. A failed dial does not stop
// the others; the returned map carries one entry per server that failed.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := make(map[string]error)

	for _, name := range r.names {
		client := r.clients[name]
		wg.Add(1)
		go func(name string, client *Client) {
			defer wg.Done()
			if err := client.Connect(ctx); err != nil {
				mu.Lock()
				failures[name] = err
				mu.Unlock()
			}
		}(name, client)
	}
	wg.Wait()

	r.metrics.SetConnectedServers(r.connectedCount())
	if len(failures) > 0 {
		r.logger.Warn("some servers failed to connect",
			zap.Int("failed", len(failures)),
			zap.Int("total", len(r.names)),
		)
	}
	return failures
}

// DisconnectAll tears every connection down concurrently.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, name := range r.names {
		client := r.clients[name]
		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			if err := client.Disconnect(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(client)
	}
	wg.Wait()

	r.metrics.SetConnectedServers(r.connectedCount())
	return errors.Join(errs...)
}

// Call routes one call to the named server. Routing failures come back as a
// CallResult like any other call failure.
func (r *Registry) Call(ctx context.Context, server, method string, params any) domain.CallResult {
	client, err := r.Client(server)
	if err != nil {
		return domain.CallResult{
			Timestamp: time.Now(),
			Err: domain.E(domain.CodeNotFound, "capability.route",
				fmt.Sprintf("no server named %q", server), err),
		}
	}
	return client.Call(ctx, method, params)
}

// ReconnectServer drops and re-establishes the named server's connection.
func (r *Registry) ReconnectServer(ctx context.Context, name string) error {
	client, err := r.Client(name)
	if err != nil {
		return err
	}
	err = client.Reconnect(ctx)
	r.metrics.SetConnectedServers(r.connectedCount())
	return err
}

// CheckHealth sweeps every client once and refreshes the health snapshot.
func (r *Registry) CheckHealth(ctx context.Context) []domain.HealthRecord {
	records := make([]domain.HealthRecord, 0, len(r.names))
	for _, name := range r.names {
		record := r.clients[name].HealthCheck(ctx)
		records = append(records, record)
		r.metrics.SetServerHealth(name, record.Healthy)
	}

	r.healthMu.Lock()
	for _, record := range records {
		r.health[record.Server] = record
	}
	r.healthMu.Unlock()

	r.metrics.SetConnectedServers(r.connectedCount())
	return records
}

// PollOnce runs one health sweep and reconnects servers that failed it.
func (r *Registry) PollOnce(ctx context.Context) {
	for _, record := range r.CheckHealth(ctx) {
		if record.Healthy {
			continue
		}
		name := record.Server
		r.logger.Warn("server unhealthy",
			telemetry.EventField(telemetry.EventHealthCheckFailure),
			telemetry.ServerField(name),
			telemetry.StateField(string(record.State)),
			zap.String("lastError", record.LastError),
		)
		if record.State == domain.StateDisconnected {
			// Deliberately taken down; leave it alone.
			continue
		}
		go func(name string) {
			if err := r.ReconnectServer(ctx, name); err != nil {
				r.logger.Warn("reconnect failed",
					telemetry.EventField(telemetry.EventConnectFailure),
					telemetry.ServerField(name),
					zap.Error(err),
				)
			}
		}(name)
	}
}

// Health returns the latest health snapshot in server name order.
func (r *Registry) Health() []domain.HealthRecord {
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()
	records := make([]domain.HealthRecord, 0, len(r.names))
	for _, name := range r.names {
		if record, ok := r.health[name]; ok {
			records = append(records, record)
		}
	}
	return records
}

// Healthy reports whether every managed server passed its last check.
func (r *Registry) Healthy() bool {
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()
	if len(r.health) < len(r.names) {
		return false
	}
	for _, record := range r.health {
		if !record.Healthy {
			return false
		}
	}
	return true
}

// Stats aggregates per-client counters.
func (r *Registry) Stats() domain.RegistryStats {
	stats := domain.RegistryStats{Servers: len(r.names)}
	for _, name := range r.names {
		cs := r.clients[name].Stats()
		if cs.State == domain.StateConnected {
			stats.Connected++
		}
		stats.TotalCalls += cs.Calls
		stats.TotalFailures += cs.Failures
		stats.Clients = append(stats.Clients, cs)
	}
	return stats
}

// StartHealthPolling begins periodic health sweeps.
func (r *Registry) StartHealthPolling(interval time.Duration) {
	if interval <= 0 {
		interval = time.Duration(domain.DefaultHealthIntervalSeconds) * time.Second
	}
	r.mu.Lock()
	if r.pollTicker != nil {
		r.mu.Unlock()
		return
	}
	r.pollTicker = time.NewTicker(interval)
	r.stopPoll = make(chan struct{})
	stop := r.stopPoll
	ticker := r.pollTicker
	r.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				r.PollOnce(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// StopHealthPolling ends the periodic sweeps.
func (r *Registry) StopHealthPolling() {
	r.mu.Lock()
	if r.pollTicker == nil {
		r.mu.Unlock()
		return
	}
	r.pollTicker.Stop()
	r.pollTicker = nil
	close(r.stopPoll)
	r.stopPoll = make(chan struct{})
	r.mu.Unlock()
}

// Close stops polling and disconnects everything.
func (r *Registry) Close(ctx context.Context) error {
	r.StopHealthPolling()
	return r.DisconnectAll(ctx)
}

func (r *Registry) connectedCount() int {
	count := 0
	for _, name := range r.names {
		if r.clients[name].State() == domain.StateConnected {
			count++
		}
	}
	return count
}
