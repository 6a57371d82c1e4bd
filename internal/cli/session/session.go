// Package session wires the pieces a shardexec command needs: configuration,
// shard connections, the shared worker pool, event sinks and timers.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardexec/internal/config"
	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/execctx"
	"github.com/aryankumar/shardexec/internal/executor"
	"github.com/aryankumar/shardexec/internal/metrics"
	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/internal/shard"
	"github.com/aryankumar/shardexec/internal/statement"
	"github.com/aryankumar/shardexec/internal/util"
)

// poolShutdownTimeout bounds how long Close waits for queued tasks
const poolShutdownTimeout = 5 * time.Second

// Settings are the effective command settings: flags when given, the
// config file defaults otherwise.
type Settings struct {
	Shards     []string
	Timeout    time.Duration
	Parallel   int
	Format     output.Format
	NoColor    bool
	Suppress   bool
	NATSURL    string
	NATSPrefix string
}

// LoadConfig loads and validates the file named by --config
func LoadConfig() (*config.Manager, error) {
	manager := config.NewManager(viper.GetString("config"))
	if _, err := manager.Load(); err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, err
	}
	return manager, nil
}

// Resolve merges the bound flags over the config defaults
func Resolve(cfg *config.Config) (Settings, error) {
	s := Settings{
		Shards:     viper.GetStringSlice("shards"),
		Timeout:    cfg.Defaults.Timeout,
		Parallel:   cfg.Defaults.Parallel,
		NoColor:    cfg.Defaults.NoColor || viper.GetBool("no-color"),
		Suppress:   cfg.Defaults.ExceptionSuppressed,
		NATSURL:    cfg.Events.NATSURL,
		NATSPrefix: cfg.Events.SubjectPrefix,
	}

	if viper.IsSet("timeout") {
		s.Timeout = viper.GetDuration("timeout")
	}
	if viper.IsSet("parallel") {
		s.Parallel = viper.GetInt("parallel")
	}
	if viper.IsSet("suppress-errors") {
		s.Suppress = viper.GetBool("suppress-errors")
	}
	if url := viper.GetString("nats-url"); url != "" {
		s.NATSURL = url
	}

	formatName := viper.GetString("output")
	if formatName == "" {
		formatName = cfg.Defaults.OutputFormat
	}
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", util.ErrInvalidConfig, err)
	}
	s.Format = format

	if s.Parallel < 1 {
		return Settings{}, util.NewValidationError("parallel", s.Parallel, "must be at least 1")
	}

	return s, nil
}

// Session holds everything one command run needs. Close releases it.
type Session struct {
	Config   *config.Manager
	Settings Settings
	Shards   *shard.Manager
	Names    []string
	Pool     *executor.Pool
	Engine   *executor.Engine
	Timers   *metrics.Registry
	Recorder *event.Recorder
	Sink     event.Sink
	Logger   *slog.Logger

	nc *nats.Conn
}

// Open loads configuration, starts the worker pool and connects to the
// selected shards. With requireAll, any shard that fails to connect fails
// Open; otherwise the session keeps whatever did connect and the failure is
// only logged.
func Open(ctx context.Context, requireAll bool) (*Session, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return OpenWith(ctx, cfg, shard.NewManager(cfg, slog.Default()), requireAll)
}

// OpenWith is Open over an already loaded configuration and shard manager
func OpenWith(ctx context.Context, cfg *config.Manager, shards *shard.Manager, requireAll bool) (*Session, error) {
	logger := slog.Default()

	settings, err := Resolve(cfg.GetConfig())
	if err != nil {
		return nil, err
	}

	names, err := cfg.ResolveShards(settings.Shards)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Config:   cfg,
		Settings: settings,
		Shards:   shards,
		Names:    names,
		Timers:   metrics.NewRegistry(logger),
		Recorder: event.NewRecorder(),
		Logger:   logger,
	}

	bus := event.NewBus(logger)
	bus.Subscribe(event.NewLogSink(logger))
	bus.Subscribe(s.Recorder)
	if settings.NATSURL != "" {
		nc, err := nats.Connect(settings.NATSURL, nats.Name("shardexec"), nats.Compression(true))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", settings.NATSURL, err)
		}
		s.nc = nc
		bus.Subscribe(event.NewNATSSink(nc, settings.NATSPrefix, logger))
		logger.Debug("publishing events", "url", settings.NATSURL)
	}
	s.Sink = bus

	s.Pool = executor.NewPool(settings.Parallel, logger)
	s.Engine = executor.NewEngine(s.Pool, logger)

	if err := shards.Connect(ctx, names); err != nil {
		if requireAll {
			s.Close()
			return nil, err
		}
		logger.Warn("continuing with connected shards", "connected", shards.Count(), "error", err)
	}

	return s, nil
}

// Context installs the execution context every statement of the session
// runs with.
func (s *Session) Context(ctx context.Context) context.Context {
	return execctx.WithExceptionSuppressed(ctx, s.Settings.Suppress)
}

// StatementOptions routes executor events and timings into the session
func (s *Session) StatementOptions() []statement.Option {
	return []statement.Option{
		statement.WithSink(s.Sink),
		statement.WithTimer(s.Timers),
		statement.WithLogger(s.Logger),
	}
}

// Formatter returns the output formatter chosen by --output and --no-color
func (s *Session) Formatter() output.Formatter {
	return output.NewFormatter(s.Settings.Format, output.WithNoColor(s.Settings.NoColor))
}

// Close shuts the pool down and releases every shard connection
func (s *Session) Close() error {
	var errs util.MultiError

	if s.Pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), poolShutdownTimeout)
		errs.Add(s.Pool.Shutdown(ctx))
		cancel()
	}
	if s.Shards != nil {
		errs.Add(s.Shards.Close())
	}
	if s.nc != nil {
		errs.Add(s.nc.Drain())
	}

	for _, st := range s.Timers.Snapshot() {
		s.Logger.Debug("timer", "name", st.Name, "count", st.Count, "mean", st.Mean(), "max", st.Max)
	}

	return errs.ErrorOrNil()
}
