package conversation

import (
	"context"
	"encoding/json"

	"github.com/aegis-ops/console/internal/agentstream"
	"github.com/aegis-ops/console/internal/model"
)

// Stream is an in-flight agent stream.
type Stream interface {
	// Cancel stops delivery. No event is delivered after it returns.
	Cancel()
	// Wait blocks until the stream stops and returns its outcome.
	Wait() error
}

// Streamer opens agent calls for a view. Open must return before the first
// event is delivered to onEvent.
type Streamer interface {
	Open(ctx context.Context, req agentstream.Request, onEvent agentstream.EventFunc) Stream
	Fetch(ctx context.Context, req agentstream.Request) (json.RawMessage, error)
}

// Journal records accepted events so a session can be rebuilt later.
type Journal interface {
	Append(kind model.Kind, sessionID string, ev model.Event) error
	Replay(ctx context.Context, kind model.Kind, sessionID string) ([]model.Event, error)
}

type clientStreamer struct {
	client *agentstream.Client
}

// FromClient adapts an agent stream client to a Streamer.
func FromClient(c *agentstream.Client) Streamer {
	return clientStreamer{client: c}
}

func (s clientStreamer) Open(ctx context.Context, req agentstream.Request, onEvent agentstream.EventFunc) Stream {
	return s.client.Start(ctx, req, onEvent)
}

func (s clientStreamer) Fetch(ctx context.Context, req agentstream.Request) (json.RawMessage, error) {
	return s.client.Fetch(ctx, req)
}
