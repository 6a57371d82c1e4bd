package statement

import (
	"log/slog"

	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/metrics"
)

// Option configures an executor.
type Option func(*options)

type options struct {
	sink   event.Sink
	timer  metrics.Timer
	logger *slog.Logger
}

// WithSink sets where lifecycle events are posted. Defaults to event.Discard.
func WithSink(s event.Sink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// WithTimer sets the operation timer. Defaults to metrics.Nop.
func WithTimer(t metrics.Timer) Option {
	return func(o *options) {
		if t != nil {
			o.timer = t
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		sink:   event.Discard,
		timer:  metrics.Nop,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
