package event

import (
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/aryankumar/shardexec/pkg/uuidx"
)

// Bus is an in-process event bus. Subscribers are invoked synchronously, in no
// particular order, on the goroutine that posts the event.
type Bus struct {
	subscribers *haxmap.Map[string, Sink]
	logger      *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: haxmap.New[string, Sink](),
		logger:      logger,
	}
}

// Subscribe registers a sink and returns its subscription id.
func (b *Bus) Subscribe(s Sink) string {
	id := uuidx.NewString()
	b.subscribers.Set(id, s)
	b.logger.Debug("event subscriber added", "subscription", id, "subscribers", b.subscribers.Len())
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.subscribers.Del(id)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	return int(b.subscribers.Len())
}

// Post delivers e to every subscriber. A panicking subscriber is logged and
// does not prevent delivery to the others.
func (b *Bus) Post(e Event) {
	b.subscribers.ForEach(func(id string, s Sink) bool {
		b.deliver(id, s, e)
		return true
	})
}

func (b *Bus) deliver(id string, s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"subscription", id,
				"event_id", e.ID.String(),
				"panic", r)
		}
	}()
	s.Post(e)
}
