package shard

import (
	"context"
	"time"

	"github.com/aryankumar/shardexec/internal/config"
	"github.com/aryankumar/shardexec/internal/postgres"
)

// Backend is the connection pool of one shard. *postgres.DB is the
// production implementation.
type Backend interface {
	Conn(ctx context.Context) (*postgres.Conn, error)
	Ping(ctx context.Context) error
	ServerVersion(ctx context.Context) (string, error)
	Close() error
}

// Opener connects to the shard behind dsn.
type Opener func(ctx context.Context, dsn string) (Backend, error)

// Resolver looks up shard configuration by name. *config.Manager implements it.
type Resolver interface {
	GetShardConfig(name string) (*config.ShardConfig, bool)
}

// HealthStatus represents the health status of a shard
type HealthStatus struct {
	// Shard is the name of the shard
	Shard string `json:"shard" yaml:"shard"`

	// Healthy indicates if the shard answered the ping
	Healthy bool `json:"healthy" yaml:"healthy"`

	// Error contains any health check error
	Error error `json:"-" yaml:"-"`

	// Latency is the round trip of the check
	Latency time.Duration `json:"latency" yaml:"latency"`

	// ServerVersion is the PostgreSQL server version (if healthy)
	ServerVersion string `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
}

// postgresOpener adapts postgres.Open to Opener.
func postgresOpener(ctx context.Context, dsn string) (Backend, error) {
	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}
