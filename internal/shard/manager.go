// Package shard keeps one connection pool and one shared session per
// configured shard, and health checks them through the executor engine.
package shard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aryankumar/shardexec/internal/executor"
	"github.com/aryankumar/shardexec/internal/postgres"
	"github.com/aryankumar/shardexec/internal/util"
)

// maxConcurrentConnects bounds the number of shards dialed at once
const maxConcurrentConnects = 10

// healthCheckTimeout bounds a single shard's health check
const healthCheckTimeout = 10 * time.Second

// Manager manages connections to multiple shards.
// It handles concurrent connection establishment, health checking, and graceful shutdown
type Manager struct {
	// backends is a map of shard name to its pool
	backends map[string]Backend

	// conns holds the session shared by every statement routed to a shard.
	// Its lock serializes physical calls on that shard.
	conns map[string]*postgres.Conn

	// mu protects concurrent access to the maps
	mu sync.RWMutex

	resolver Resolver
	open     Opener
	logger   *slog.Logger

	// closed indicates if the manager has been closed
	closed bool
}

// NewManager creates a shard manager that dials PostgreSQL through lib/pq
func NewManager(resolver Resolver, logger *slog.Logger) *Manager {
	return NewManagerWithOpener(resolver, postgresOpener, logger)
}

// NewManagerWithOpener creates a shard manager with a custom way of dialing shards
func NewManagerWithOpener(resolver Resolver, open Opener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		backends: make(map[string]Backend),
		conns:    make(map[string]*postgres.Conn),
		resolver: resolver,
		open:     open,
		logger:   logger,
	}
}

// Connect establishes connections to the named shards concurrently.
// Every shard is attempted; failures are returned together as a *util.MultiError.
// Shards that are already connected are skipped.
func (m *Manager) Connect(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no shard names provided")
	}

	m.logger.Info("connecting to shards", "count", len(names), "shards", names)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs util.MultiError
	)
	fail := func(name string, err error) {
		mu.Lock()
		errs.Add(fmt.Errorf("shard %s: %w", name, err))
		mu.Unlock()
	}

	sem := make(chan struct{}, maxConcurrentConnects)

	for _, name := range names {
		if m.HasShard(name) {
			continue
		}

		shardConfig, ok := m.resolver.GetShardConfig(name)
		if !ok {
			fail(name, util.ErrShardNotFound)
			continue
		}

		wg.Add(1)
		go func(name, dsn string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				fail(name, ctx.Err())
				return
			}

			if err := ctx.Err(); err != nil {
				fail(name, err)
				return
			}

			m.logger.Debug("connecting to shard", "shard", name, "host", util.DSNHost(dsn))

			backend, err := m.open(ctx, dsn)
			if err != nil {
				m.logger.Error("failed to connect to shard", "shard", name, "error", err)
				fail(name, err)
				return
			}

			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				m.logger.Warn("manager is closed, discarding connection", "shard", name)
				backend.Close()
				return
			}
			m.backends[name] = backend
			m.mu.Unlock()

			m.logger.Info("connected to shard", "shard", name, "host", util.DSNHost(dsn))
		}(name, shardConfig.DSN)
	}

	wg.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		m.logger.Warn("some shard connections failed",
			"total", len(names),
			"failed", len(errs.Errors),
			"succeeded", len(names)-len(errs.Errors))
		return fmt.Errorf("failed to connect to %d/%d shards: %w", len(errs.Errors), len(names), err)
	}

	m.logger.Debug("connected to all shards", "count", len(names))
	return nil
}

// Conn returns the session of a connected shard, opening it on first use.
// Every caller gets the same *postgres.Conn for a given shard.
func (m *Manager) Conn(ctx context.Context, name string) (*postgres.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("shard manager is closed")
	}

	if conn, ok := m.conns[name]; ok {
		return conn, nil
	}

	backend, ok := m.backends[name]
	if !ok {
		return nil, fmt.Errorf("shard %q not connected: %w", name, util.ErrShardNotFound)
	}

	conn, err := backend.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("shard %s: %w", name, err)
	}
	m.conns[name] = conn
	return conn, nil
}

// Release returns the shared session of a shard to its pool. The next Conn
// call opens a new one.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	delete(m.conns, name)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return conn.Close()
}

// HasShard returns true if the shard is connected
func (m *Manager) HasShard(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.backends[name]
	return ok
}

// Names returns the sorted names of connected shards
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.backends))
	for name := range m.backends {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Count returns the number of connected shards
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.backends)
}

// pingUnit is one shard to health check
type pingUnit struct {
	name    string
	backend Backend
}

func (u pingUnit) Target() string { return u.name }

// HealthCheck pings every connected shard through engine and returns one
// status per shard, sorted by name.
func (m *Manager) HealthCheck(ctx context.Context, engine *executor.Engine) []HealthStatus {
	m.mu.RLock()
	units := make([]pingUnit, 0, len(m.backends))
	for name, backend := range m.backends {
		units = append(units, pingUnit{name: name, backend: backend})
	}
	m.mu.RUnlock()

	if len(units) == 0 {
		m.logger.Warn("no shards to health check")
		return []HealthStatus{}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].name < units[j].name })

	results := executor.Collect(ctx, engine, units, func(ctx context.Context, u pingUnit) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()

		if err := u.backend.Ping(ctx); err != nil {
			return "", err
		}
		return u.backend.ServerVersion(ctx)
	})

	statuses := make([]HealthStatus, len(results))
	healthy := 0
	for i, r := range results {
		statuses[i] = HealthStatus{
			Shard:   r.Target,
			Healthy: r.Error == nil,
			Error:   r.Error,
			Latency: r.Duration,
		}
		if version, ok := r.Data.(string); ok {
			statuses[i].ServerVersion = version
		}
		if r.Error != nil {
			m.logger.Warn("health check failed", "shard", r.Target, "error", r.Error)
			continue
		}
		healthy++
	}

	m.logger.Info("health checks completed", "total", len(statuses), "healthy", healthy)
	return statuses
}

// Close closes every session and pool.
// This clears the maps and marks the manager as closed
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.logger.Debug("manager already closed")
		return nil
	}

	m.logger.Debug("closing shard manager", "shards", len(m.backends))

	var errs util.MultiError
	for name, conn := range m.conns {
		if err := conn.Close(); err != nil {
			errs.Add(fmt.Errorf("shard %s session: %w", name, err))
		}
	}
	for name, backend := range m.backends {
		if err := backend.Close(); err != nil {
			errs.Add(fmt.Errorf("shard %s: %w", name, err))
		}
	}

	m.conns = make(map[string]*postgres.Conn)
	m.backends = make(map[string]Backend)
	m.closed = true

	return errs.ErrorOrNil()
}

// IsClosed returns true if the manager has been closed
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
