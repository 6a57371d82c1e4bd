package event

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix used when none is configured.
const DefaultSubjectPrefix = "shardexec.events"

// wireEvent is the JSON shape published on NATS.
type wireEvent struct {
	ID        uuid.UUID `json:"id"`
	Backend   string    `json:"backend"`
	SQL       string    `json:"sql"`
	Kind      string    `json:"kind"`
	Phase     string    `json:"phase"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON encodes an event in its wire form.
func ToJSON(e Event) ([]byte, error) {
	w := wireEvent{
		ID:        e.ID,
		Backend:   e.Backend,
		SQL:       e.SQL,
		Kind:      e.Kind.String(),
		Phase:     e.Phase.String(),
		Timestamp: e.Timestamp,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return json.Marshal(w)
}

// FromJSON decodes an event from its wire form. The error, if any, comes back
// as an opaque error carrying the original message.
func FromJSON(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}

	e := Event{
		ID:        w.ID,
		Backend:   w.Backend,
		SQL:       w.SQL,
		Timestamp: w.Timestamp,
	}
	switch w.Kind {
	case "query":
		e.Kind = KindQuery
	case "update":
		e.Kind = KindUpdate
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", w.Kind)
	}
	switch w.Phase {
	case "start":
		e.Phase = PhaseStart
	case "success":
		e.Phase = PhaseSuccess
	case "failure":
		e.Phase = PhaseFailure
	default:
		return Event{}, fmt.Errorf("unknown event phase %q", w.Phase)
	}
	if w.Error != "" {
		e.Err = remoteError(w.Error)
	}
	return e, nil
}

type remoteError string

func (e remoteError) Error() string { return string(e) }

// NATSSink publishes events to NATS on <prefix>.<backend>.<phase>.
// Publishing is fire-and-forget: failures are logged, never returned, so a
// broken event transport cannot fail a statement.
type NATSSink struct {
	client *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSSink creates a sink over an established connection.
func NewNATSSink(client *nats.Conn, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Subject returns the subject an event is published on.
func (s *NATSSink) Subject(e Event) string {
	return s.prefix + "." + subjectToken(e.Backend) + "." + e.Phase.String()
}

// Post implements Sink.
func (s *NATSSink) Post(e Event) {
	data, err := ToJSON(e)
	if err != nil {
		s.logger.Error("failed to encode event", "event_id", e.ID.String(), "error", err)
		return
	}
	if err := s.client.Publish(s.Subject(e), data); err != nil {
		s.logger.Error("failed to publish event",
			"subject", s.Subject(e),
			"event_id", e.ID.String(),
			"error", err)
	}
}

// subjectToken makes a backend name safe to use as a single subject token.
func subjectToken(name string) string {
	if name == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(name)
}
