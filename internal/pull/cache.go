// Package pull implements the single-flight result cache that hands build
// results to clients: a key is created when a build starts, published once
// when its results are ready, and polled by clients in between.
package pull

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"srcweb/internal/errors"
	"srcweb/internal/metrics"
)

// Status of a key.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusUnknown Status = "unknown"
)

// Result of a poll. Payload is set only when Status is StatusReady.
type Result struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type entry struct {
	payload json.RawMessage
	ready   chan struct{}
}

// Cache maps keys to pending or published payloads. Entries are never
// evicted.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
}

func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{entries: make(map[string]*entry), logger: logger}
}

// Create allocates a new pending key.
func (c *Cache) Create() string {
	key := uuid.New().String()
	c.mu.Lock()
	c.entries[key] = &entry{ready: make(chan struct{})}
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetPullEntries(n)
	return key
}

// Publish stores payload under key. Publishing twice or to an unknown key
// is an error and leaves the entry unchanged.
func (c *Cache) Publish(key string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return errors.Newf(errors.NotFound, "unknown pull key %s", key)
	}
	if e.payload != nil {
		c.logger.Error("Pull key published twice", "key", key)
		return errors.Newf(errors.InvariantViolation, "pull key %s already published", key)
	}
	if payload == nil {
		payload = json.RawMessage("null")
	}
	e.payload = payload
	close(e.ready)
	return nil
}

// Poll reports the state of key without blocking.
func (c *Cache) Poll(key string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		return Result{Status: StatusUnknown}
	case e.payload == nil:
		return Result{Status: StatusPending}
	default:
		return Result{Status: StatusReady, Payload: e.payload}
	}
}

// Wait blocks until key is published or ctx is done, then polls.
func (c *Cache) Wait(ctx context.Context, key string) Result {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return Result{Status: StatusUnknown}
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
	}
	return c.Poll(key)
}

// Len returns the number of keys held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
