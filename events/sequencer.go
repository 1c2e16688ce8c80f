package events

import (
	"context"
	"sync"
	"time"
)

// Sequencer assigns strictly increasing sequence numbers to events published
// for a given session and forwards them to an underlying Bus. One Sequencer
// should be owned by exactly one session's execution context, matching the
// specification's one-logical-execution-context-per-session concurrency
// model; concurrent Publish calls from a single session are not expected,
// but the Sequencer is still internally synchronized as a defensive measure
// against accidental concurrent use.
type Sequencer struct {
	bus Bus

	mu   sync.Mutex
	next map[string]int // sessionID -> next seq
}

// NewSequencer wraps bus with per-session sequence number assignment.
func NewSequencer(bus Bus) *Sequencer {
	return &Sequencer{bus: bus, next: make(map[string]int)}
}

// Publish stamps event with the next sequence number and timestamp for its
// SessionID and forwards it to the underlying bus. Callers supply Kind,
// SessionID, ParentSessionID, and Payload; Seq and Timestamp are overwritten.
func (s *Sequencer) Publish(ctx context.Context, event Event) error {
	s.mu.Lock()
	seq := s.next[event.SessionID]
	s.next[event.SessionID] = seq + 1
	s.mu.Unlock()

	event.Seq = seq
	event.Timestamp = time.Now().UnixNano()
	return s.bus.Publish(ctx, event)
}
