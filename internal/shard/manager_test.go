package shard

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aryankumar/shardexec/internal/config"
	"github.com/aryankumar/shardexec/internal/executor"
	"github.com/aryankumar/shardexec/internal/postgres"
	"github.com/aryankumar/shardexec/internal/util"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeBackend stands in for a shard pool
type fakeBackend struct {
	dsn      string
	pingErr  error
	version  string
	conns    atomic.Int32
	closed   atomic.Bool
	closeErr error
}

func (f *fakeBackend) Conn(ctx context.Context) (*postgres.Conn, error) {
	f.conns.Add(1)
	return &postgres.Conn{}, nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeBackend) ServerVersion(ctx context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

// fakeOpener hands out fakeBackends and records them by DSN
type fakeOpener struct {
	mu       sync.Mutex
	backends map[string]*fakeBackend
	fail     map[string]error
	pingErr  map[string]error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		backends: make(map[string]*fakeBackend),
		fail:     make(map[string]error),
		pingErr:  make(map[string]error),
	}
}

func (o *fakeOpener) open(ctx context.Context, dsn string) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.fail[dsn]; err != nil {
		return nil, err
	}
	b := &fakeBackend{dsn: dsn, version: "16.2", pingErr: o.pingErr[dsn]}
	o.backends[dsn] = b
	return b, nil
}

func (o *fakeOpener) backend(dsn string) *fakeBackend {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.backends[dsn]
}

// testResolver returns a config manager with the given shards, named ds_N
func testResolver(t *testing.T, dsns ...string) *config.Manager {
	t.Helper()

	cfg := config.NewManager(filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := cfg.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	for i, dsn := range dsns {
		cfg.SetShardConfig(shardName(i), config.ShardConfig{DSN: dsn, Enabled: true})
	}
	return cfg
}

func shardName(i int) string {
	return "ds_" + string(rune('0'+i))
}

func newTestEngine(t *testing.T) *executor.Engine {
	t.Helper()

	pool := executor.NewPool(4, testLogger)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	return executor.NewEngine(pool, testLogger)
}

func TestNewManager_NilLogger(t *testing.T) {
	manager := NewManager(testResolver(t), nil)

	if manager.logger == nil {
		t.Error("expected default logger when nil is provided")
	}
	if manager.open == nil {
		t.Error("expected the postgres opener to be set")
	}
	if manager.closed {
		t.Error("expected closed to be false")
	}
}

func TestManager_Connect(t *testing.T) {
	tests := []struct {
		name      string
		shards    []string
		fail      map[string]error
		wantErr   bool
		wantIs    error
		wantCount int
	}{
		{
			name:    "empty shard names",
			shards:  []string{},
			wantErr: true,
		},
		{
			name:      "single shard",
			shards:    []string{"ds_0"},
			wantCount: 1,
		},
		{
			name:      "multiple shards",
			shards:    []string{"ds_0", "ds_1", "ds_2"},
			wantCount: 3,
		},
		{
			name:      "unknown shard",
			shards:    []string{"ds_0", "ds_9"},
			wantErr:   true,
			wantIs:    util.ErrShardNotFound,
			wantCount: 1,
		},
		{
			name:      "one shard unreachable",
			shards:    []string{"ds_0", "ds_1"},
			fail:      map[string]error{"host=db1": util.ErrConnectionFailed},
			wantErr:   true,
			wantIs:    util.ErrConnectionFailed,
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := newFakeOpener()
			for dsn, err := range tt.fail {
				opener.fail[dsn] = err
			}
			manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1", "host=db2"), opener.open, testLogger)

			err := manager.Connect(context.Background(), tt.shards)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
					t.Errorf("expected %v, got %v", tt.wantIs, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if manager.Count() != tt.wantCount {
				t.Errorf("got %d connected shards, want %d", manager.Count(), tt.wantCount)
			}
		})
	}
}

func TestManager_Connect_AggregatesFailures(t *testing.T) {
	opener := newFakeOpener()
	opener.fail["host=db0"] = errors.New("refused")
	opener.fail["host=db1"] = errors.New("refused")
	manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1"), opener.open, testLogger)

	err := manager.Connect(context.Background(), []string{"ds_0", "ds_1"})

	var multi *util.MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("expected *util.MultiError, got %T: %v", err, err)
	}
	if len(multi.Errors) != 2 {
		t.Errorf("got %d errors, want 2", len(multi.Errors))
	}
}

func TestManager_Connect_ContextCancellation(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1"), opener.open, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := manager.Connect(ctx, []string{"ds_0", "ds_1"})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled error, got: %v", err)
	}
	if manager.Count() != 0 {
		t.Errorf("expected no connected shards, got %d", manager.Count())
	}
}

func TestManager_Connect_SkipsConnected(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0"), opener.open, testLogger)

	if err := manager.Connect(context.Background(), []string{"ds_0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := opener.backend("host=db0")

	if err := manager.Connect(context.Background(), []string{"ds_0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opener.backend("host=db0") != first {
		t.Error("connected shard was dialed again")
	}
}

func TestManager_Conn_SharedPerShard(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0"), opener.open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	conns := make([]*postgres.Conn, 8)
	for i := range conns {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := manager.Conn(context.Background(), "ds_0")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			conns[i] = conn
		}(i)
	}
	wg.Wait()

	for i, conn := range conns {
		if conn != conns[0] {
			t.Errorf("conn %d differs from the first one", i)
		}
	}
	if n := opener.backend("host=db0").conns.Load(); n != 1 {
		t.Errorf("got %d sessions opened, want 1", n)
	}
}

func TestManager_Conn_NotConnected(t *testing.T) {
	manager := NewManagerWithOpener(testResolver(t), newFakeOpener().open, testLogger)

	if _, err := manager.Conn(context.Background(), "ds_0"); !errors.Is(err, util.ErrShardNotFound) {
		t.Errorf("expected ErrShardNotFound, got %v", err)
	}
}

func TestManager_Release(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0"), opener.open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := manager.Conn(context.Background(), "ds_0")
	if err := manager.Release("ds_0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := manager.Conn(context.Background(), "ds_0")

	if first == second {
		t.Error("expected a new session after release")
	}
	if err := manager.Release("ds_9"); err != nil {
		t.Errorf("releasing an unknown shard should be a no-op, got %v", err)
	}
}

func TestManager_Names(t *testing.T) {
	manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1", "host=db2"), newFakeOpener().open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_2", "ds_0", "ds_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := manager.Names()
	want := []string{"ds_0", "ds_1", "ds_2"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("got %v, want %v", names, want)
			break
		}
	}
	if !manager.HasShard("ds_1") || manager.HasShard("ds_9") {
		t.Error("HasShard disagrees with Names")
	}
}

func TestManager_HealthCheck(t *testing.T) {
	opener := newFakeOpener()
	opener.pingErr["host=db1"] = errors.New("server closed the connection")
	manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1"), opener.open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_0", "ds_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := manager.HealthCheck(context.Background(), newTestEngine(t))

	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Shard != "ds_0" || !statuses[0].Healthy || statuses[0].ServerVersion != "16.2" {
		t.Errorf("unexpected status for ds_0: %+v", statuses[0])
	}
	if statuses[1].Shard != "ds_1" || statuses[1].Healthy || statuses[1].Error == nil {
		t.Errorf("unexpected status for ds_1: %+v", statuses[1])
	}
	if statuses[1].ServerVersion != "" {
		t.Error("unhealthy shard should not report a version")
	}
}

func TestManager_HealthCheck_NoShards(t *testing.T) {
	manager := NewManagerWithOpener(testResolver(t), newFakeOpener().open, testLogger)

	if statuses := manager.HealthCheck(context.Background(), newTestEngine(t)); len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}

func TestManager_Close(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0", "host=db1"), opener.open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_0", "ds_1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := manager.Conn(context.Background(), "ds_0"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := manager.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !manager.IsClosed() {
		t.Error("expected manager to be closed")
	}
	if manager.Count() != 0 {
		t.Errorf("expected no shards after close, got %d", manager.Count())
	}
	for _, dsn := range []string{"host=db0", "host=db1"} {
		if !opener.backend(dsn).closed.Load() {
			t.Errorf("backend %s not closed", dsn)
		}
	}
	if _, err := manager.Conn(context.Background(), "ds_0"); err == nil {
		t.Error("expected error from closed manager")
	}

	// Second close is a no-op
	if err := manager.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}

func TestManager_Close_ReportsErrors(t *testing.T) {
	opener := newFakeOpener()
	manager := NewManagerWithOpener(testResolver(t, "host=db0"), opener.open, testLogger)
	if err := manager.Connect(context.Background(), []string{"ds_0"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opener.backend("host=db0").closeErr = errors.New("close failed")

	if err := manager.Close(); err == nil {
		t.Error("expected close error to be reported")
	}
}
