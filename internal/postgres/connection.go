// Package postgres adapts lib/pq connections to the statement executors.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aryankumar/shardexec/internal/util"
)

const (
	maxOpenConnections = 5
	maxIdleConnections = 2
	connMaxLifetime    = 1 * time.Hour
	connMaxIdleTime    = 10 * time.Minute
)

// DB is the connection pool of one shard.
type DB struct {
	db  *sql.DB
	dsn string
}

// Open creates the pool for dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", util.RedactDSN(dsn), err)
	}

	db.SetMaxOpenConns(maxOpenConnections)
	db.SetMaxIdleConns(maxIdleConnections)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w: %w", util.RedactDSN(dsn), util.ErrConnectionFailed, TranslateError(err))
	}

	return &DB{db: db, dsn: dsn}, nil
}

// Conn reserves one physical connection from the pool.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection to %s: %w", util.RedactDSN(d.dsn), TranslateError(err))
	}
	return &Conn{conn: c}, nil
}

// Ping verifies the pool can still reach the server.
func (d *DB) Ping(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return TranslateError(d.db.PingContext(ctx))
}

// ServerVersion reports the server_version setting of the shard.
func (d *DB) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := d.db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", TranslateError(err)
	}
	return version, nil
}

// Stats returns the pool statistics.
func (d *DB) Stats() sql.DBStats {
	return d.db.Stats()
}

// Close closes the pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
