package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/aegis-ops/console/internal/model"
)

const (
	// StreamName is the name of the agent event stream.
	StreamName = "AEGIS_EVENTS"

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix = "aegis"

	replayBatch = 256
)

// ErrNoRecord is returned when an event carries no wire record to journal.
var ErrNoRecord = errors.New("event has no wire record")

// JournalConfig configures the event stream.
type JournalConfig struct {
	MaxAge   time.Duration
	MaxBytes int64
	Replicas int
}

// Journal stores accepted agent events per session on JetStream.
type Journal struct {
	client *Client
	cfg    JournalConfig
}

// NewJournal creates a journal on client.
func NewJournal(client *Client, cfg JournalConfig) *Journal {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1024 * 1024 * 1024
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	return &Journal{client: client, cfg: cfg}
}

// EnsureStream ensures the event stream exists with the journal's configuration.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      j.cfg.MaxAge,
		MaxBytes:    j.cfg.MaxBytes,
		Storage:     jetstream.FileStorage,
		Replicas:    j.cfg.Replicas,
		Compression: jetstream.S2Compression,
		Description: "Agent stream events by conversation session",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	j.client.logger.Info("created event stream", zap.String("stream", StreamName))
	return nil
}

// EventSubject returns the subject for one event of a session.
func EventSubject(kind model.Kind, sessionID string, tag model.EventKind) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, kind, token(sessionID), token(string(tag)))
}

// SessionFilter returns the filter subject for every event of a session.
func SessionFilter(kind model.Kind, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.event.>", SubjectPrefix, kind, token(sessionID))
}

// Append publishes the event's wire record asynchronously. Failures that
// happen after the publish is queued are counted and logged by the client.
func (j *Journal) Append(kind model.Kind, sessionID string, ev model.Event) error {
	raw := ev.Meta().Raw
	if len(raw) == 0 {
		return ErrNoRecord
	}
	if _, err := j.client.JetStream().PublishAsync(EventSubject(kind, sessionID, ev.Kind()), raw); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Replay reads back every journaled event of a session in publish order.
// Records that no longer decode are skipped.
func (j *Journal) Replay(ctx context.Context, kind model.Kind, sessionID string) ([]model.Event, error) {
	js := j.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject:     SessionFilter(kind, sessionID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	info, err := consumer.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read consumer info: %w", err)
	}
	pending := int(info.NumPending)

	events := make([]model.Event, 0, pending)
	for read := 0; read < pending; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := consumer.Fetch(min(replayBatch, pending-read), jetstream.FetchMaxWait(2*time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}

		n := 0
		for msg := range batch.Messages() {
			n++
			ev, err := model.DecodeEvent(msg.Data())
			if err != nil {
				j.client.logger.Warn("skipping undecodable journal record",
					zap.String("subject", msg.Subject()), zap.Error(err))
				continue
			}
			events = append(events, ev)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if n == 0 {
			break
		}
		read += n
	}

	return events, nil
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// kindOfSubject extracts the conversation kind from an event subject.
func kindOfSubject(subject string) string {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) < 2 || parts[0] != SubjectPrefix {
		return "unknown"
	}
	return parts[1]
}
