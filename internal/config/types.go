package config

import "time"

// Config represents the shardexec configuration file structure
type Config struct {
	// Shards is a map of shard names to their configurations
	Shards map[string]ShardConfig `yaml:"shards,omitempty" json:"shards,omitempty"`

	// Defaults contains default settings for operations
	Defaults DefaultsConfig `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Events configures where lifecycle events are published
	Events EventsConfig `yaml:"events,omitempty" json:"events,omitempty"`
}

// ShardConfig represents configuration for a single shard
type ShardConfig struct {
	// DSN is the PostgreSQL connection string of the shard
	DSN string `yaml:"dsn" json:"dsn"`

	// Labels for selecting groups of shards
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// Enabled indicates if this shard takes part in broadcast statements.
	// Shards without the key are enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// DefaultsConfig contains default configuration values
type DefaultsConfig struct {
	// Timeout bounds a whole command
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Parallel is the number of pool workers
	Parallel int `yaml:"parallel,omitempty" json:"parallel,omitempty"`

	// OutputFormat is the default output format (table, json, yaml)
	OutputFormat string `yaml:"outputFormat,omitempty" json:"outputFormat,omitempty"`

	// NoColor disables colored output
	NoColor bool `yaml:"noColor,omitempty" json:"noColor,omitempty"`

	// ExceptionSuppressed makes shard failures degrade instead of failing the statement
	ExceptionSuppressed bool `yaml:"exceptionSuppressed,omitempty" json:"exceptionSuppressed,omitempty"`
}

// EventsConfig configures the NATS event publisher
type EventsConfig struct {
	// NATSURL enables publishing when set
	NATSURL string `yaml:"natsURL,omitempty" json:"natsURL,omitempty"`

	// SubjectPrefix is prepended to every event subject
	SubjectPrefix string `yaml:"subjectPrefix,omitempty" json:"subjectPrefix,omitempty"`
}

// ShardInfo is the listing view of a configured shard. The DSN is redacted.
type ShardInfo struct {
	Name    string            `json:"name" yaml:"name"`
	Host    string            `json:"host" yaml:"host"`
	DSN     string            `json:"dsn" yaml:"dsn"`
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}
