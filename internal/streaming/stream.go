// Package streaming delivers build progress to clients as a sequence of
// typed events, written to HTTP responses as server-sent events.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is the SSE event name.
type EventType string

const (
	// EventError delivers one lowered compiler diagnostic.
	EventError EventType = "error"
	// EventMessage delivers one line of plain build output.
	EventMessage EventType = "message"
	// EventClose carries the build summary and ends the stream.
	EventClose EventType = "close"
	// EventHeartbeat keeps idle connections open. It is written as an SSE comment.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents a single streaming event.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// HeartbeatData keeps the connection alive.
type HeartbeatData struct {
	Sequence int `json:"seq"`
}

// Stream is one client's view of a build. The producer sends events and
// closes it; the consumer may close it early when the client goes away,
// after which sends fail fast instead of blocking the producer.
type Stream struct {
	ID        string
	StartedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	events chan Event

	maxBuffer       int
	heartbeatPeriod time.Duration

	// sendMu is held shared by senders and exclusively by Close, so the
	// channel is never closed under an in-flight send.
	sendMu       sync.RWMutex
	mu           sync.Mutex
	sent         int
	closed       bool
	heartbeatSeq int
}

// StreamConfig configures stream behavior.
type StreamConfig struct {
	MaxBuffer       int           // Max buffered events (default: 256)
	HeartbeatPeriod time.Duration // Heartbeat interval (default: 15s)
}

// DefaultConfig returns default streaming configuration.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		MaxBuffer:       256,
		HeartbeatPeriod: 15 * time.Second,
	}
}

// NewStream creates a new streaming session.
func NewStream(ctx context.Context, config StreamConfig) *Stream {
	if config.MaxBuffer <= 0 {
		config.MaxBuffer = 256
	}
	if config.HeartbeatPeriod <= 0 {
		config.HeartbeatPeriod = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)

	s := &Stream{
		ID:              uuid.New().String(),
		StartedAt:       time.Now(),
		ctx:             ctx,
		cancel:          cancel,
		events:          make(chan Event, config.MaxBuffer),
		maxBuffer:       config.MaxBuffer,
		heartbeatPeriod: config.HeartbeatPeriod,
	}

	go s.heartbeatLoop()

	return s
}

// Events returns the event channel for consumers. It is closed by Close.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Context is cancelled when the stream closes.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// SendError sends a diagnostic.
func (s *Stream) SendError(diagnostic any) error {
	return s.send(Event{Type: EventError, Data: diagnostic})
}

// SendMessage sends a plain output line.
func (s *Stream) SendMessage(line string) error {
	return s.send(Event{Type: EventMessage, Data: line})
}

// SendClose sends the summary and closes the stream.
func (s *Stream) SendClose(summary any) error {
	err := s.send(Event{Type: EventClose, Data: summary})
	s.Close()
	return err
}

// Sent returns the number of events delivered to the channel, heartbeats excluded.
func (s *Stream) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close closes the stream. It is safe to call more than once and from
// either side.
func (s *Stream) Close() {
	s.cancel()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// IsClosed returns true if the stream is closed.
func (s *Stream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) send(event Event) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.IsClosed() {
		return fmt.Errorf("stream closed")
	}

	// Check context first (important for buffered channels)
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.events <- event:
		if event.Type != EventHeartbeat {
			s.mu.Lock()
			s.sent++
			s.mu.Unlock()
		}
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.heartbeatSeq++
			seq := s.heartbeatSeq
			full := len(s.events) >= s.maxBuffer
			s.mu.Unlock()

			// Skip when the buffer is full rather than block the producer.
			if !full {
				_ = s.send(Event{Type: EventHeartbeat, Data: HeartbeatData{Sequence: seq}})
			}
		}
	}
}

// MarshalJSON provides custom JSON marshaling for Event.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
		Data any       `json:"data"`
	}{
		Type: e.Type,
		Data: e.Data,
	})
}
