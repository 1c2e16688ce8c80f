package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait        = 10 * time.Second
	wsSendBufferFrames = 256
)

// WebSocketSink delivers events to a single WebSocket connection, typically
// a UI client subscribed to one session. Frames are written from a dedicated
// goroutine so HandleEvent never blocks on network I/O; if the outbound
// buffer fills (a stalled client), the sink drops the connection rather
// than apply backpressure to the publishing session.
type WebSocketSink struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewWebSocketSink wraps conn as a Sink. The caller retains ownership of
// conn's lifecycle up to the point NewWebSocketSink is called; afterwards
// the sink owns writes to conn and Close should be used to release it.
func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	s := &WebSocketSink{
		conn:   conn,
		send:   make(chan []byte, wsSendBufferFrames),
		closed: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

type wsEventFrame struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Kind      Kind   `json:"kind"`
	Payload   any    `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// HandleEvent encodes event as JSON and enqueues it for the write loop. It
// returns an error if the sink has been closed or its send buffer is full;
// a full buffer also closes the sink and its connection.
func (s *WebSocketSink) HandleEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(wsEventFrame{
		SessionID: event.SessionID,
		Seq:       event.Seq,
		Kind:      event.Kind,
		Payload:   event.Payload,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("events: encode frame: %w", err)
	}

	select {
	case <-s.closed:
		return fmt.Errorf("events: websocket sink closed")
	default:
	}

	select {
	case s.send <- data:
		return nil
	case <-s.closed:
		return fmt.Errorf("events: websocket sink closed")
	default:
		// A stalled client: drop the connection rather than block the
		// publishing session.
		_ = s.Close()
		return fmt.Errorf("events: websocket sink buffer full")
	}
}

// Close stops the write loop and closes the underlying connection. It is
// idempotent.
func (s *WebSocketSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *WebSocketSink) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case data := <-s.send:
			s.mu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := s.conn.WriteMessage(websocket.TextMessage, data)
			s.mu.Unlock()
			if err != nil {
				_ = s.Close()
				return
			}
		}
	}
}
