package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// TestManager_EnvOverrides checks SHARDEXEC_* variables against a real file
func TestManager_EnvOverrides(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	configPath := filepath.Join(t.TempDir(), ".shardexec.yaml")
	content := `
shards:
  ds_0:
    dsn: postgres://db0/orders
events:
  natsURL: nats://file:4222
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("SHARDEXEC_EVENTS_NATSURL", "nats://env:4222")
	t.Setenv("SHARDEXEC_DEFAULTS_EXCEPTIONSUPPRESSED", "true")

	config, err := NewManager(configPath).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if config.Events.NATSURL != "nats://env:4222" {
		t.Errorf("got natsURL %q, want env override", config.Events.NATSURL)
	}
	if !config.Defaults.ExceptionSuppressed {
		t.Error("expected exceptionSuppressed from environment")
	}
}

// TestManager_EnvOverridesWithoutFile checks that env variables apply when no file exists
func TestManager_EnvOverridesWithoutFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Setenv("SHARDEXEC_EVENTS_NATSURL", "nats://env:4222")

	config, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if config.Events.NATSURL != "nats://env:4222" {
		t.Errorf("got natsURL %q, want env override", config.Events.NATSURL)
	}
}

// TestManager_ConcurrentReads tests read access from many goroutines after Load
func TestManager_ConcurrentReads(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	configPath := filepath.Join(t.TempDir(), ".shardexec.yaml")
	content := `
shards:
  ds_0:
    dsn: postgres://db0/orders
    labels:
      env: prod
  ds_1:
    dsn: postgres://db1/orders
    labels:
      env: prod
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	manager := NewManager(configPath)
	if _, err := manager.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 50)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 5; j++ {
				if len(manager.GetShardsByLabel(map[string]string{"env": "prod"})) != 2 {
					errs <- "label selection returned wrong shards"
				}
				if _, ok := manager.GetShardConfig("ds_1"); !ok {
					errs <- "ds_1 missing"
				}
				if len(manager.ShardInfos()) != 2 {
					errs <- "shard infos returned wrong count"
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}
