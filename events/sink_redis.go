package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes events to a Redis pub/sub channel keyed by session ID,
// enabling distributed deployments where a session's execution context and
// its event consumers (e.g., a UI gateway) live on different nodes. Each
// event is JSON-encoded and published under "parley:session:<SessionID>".
type RedisSink struct {
	client       *redis.Client
	channelPrefix string
}

// RedisSinkOptions configures a RedisSink.
type RedisSinkOptions struct {
	// Client is the Redis client used to publish events. Required.
	Client *redis.Client
	// ChannelPrefix overrides the default "parley:session:" channel prefix.
	ChannelPrefix string
}

// NewRedisSink constructs a Sink that publishes events to Redis pub/sub.
func NewRedisSink(opts RedisSinkOptions) (*RedisSink, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("events: redis client is required")
	}
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = "parley:session:"
	}
	return &RedisSink{client: opts.Client, channelPrefix: prefix}, nil
}

// wireEvent is the JSON envelope published to Redis and read back by
// subscribers; it mirrors Event but keeps field names stable across
// releases independent of the in-process struct.
type wireEvent struct {
	SessionID       string `json:"session_id"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Seq             int    `json:"seq"`
	Kind            Kind   `json:"kind"`
	Payload         any    `json:"payload"`
	Timestamp       int64  `json:"timestamp"`
}

// HandleEvent publishes event to the session's Redis channel.
func (s *RedisSink) HandleEvent(ctx context.Context, event Event) error {
	body, err := json.Marshal(wireEvent{
		SessionID:       event.SessionID,
		ParentSessionID: event.ParentSessionID,
		Seq:             event.Seq,
		Kind:            event.Kind,
		Payload:         event.Payload,
		Timestamp:       event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}
	return s.client.Publish(ctx, s.channelPrefix+event.SessionID, body).Err()
}

// Subscribe returns a Redis pub/sub subscription for sessionID's channel.
// Callers should read from the returned channel until it closes or the
// supplied context is cancelled, then call Close on the *redis.PubSub.
func (s *RedisSink) Subscribe(ctx context.Context, sessionID string) *redis.PubSub {
	return s.client.Subscribe(ctx, s.channelPrefix+sessionID)
}

// DecodeMessage parses a Redis pub/sub message payload back into an Event.
func DecodeMessage(payload string) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return Event{}, fmt.Errorf("events: decode event: %w", err)
	}
	return Event{
		SessionID:       w.SessionID,
		ParentSessionID: w.ParentSessionID,
		Seq:             w.Seq,
		Kind:            w.Kind,
		Payload:         w.Payload,
		Timestamp:       w.Timestamp,
	}, nil
}
