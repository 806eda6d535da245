package model

import (
	"sync"
	"time"

	"github.com/signadot/docsync/system/syncd/api"
)

// DefaultBroadcastTimeout is the default time a stream may keep its buffer
// full before it is failed.
const DefaultBroadcastTimeout = 5 * time.Second

// Hub fans model updates out to the streams of one model.
// It is thread-safe.
type Hub struct {
	mu               sync.RWMutex
	streams          map[*Stream]struct{}
	broadcastTimeout time.Duration
}

// NewHub creates a Hub. A non-positive timeout selects
// DefaultBroadcastTimeout.
func NewHub(timeout time.Duration) *Hub {
	if timeout <= 0 {
		timeout = DefaultBroadcastTimeout
	}
	return &Hub{
		streams:          make(map[*Stream]struct{}),
		broadcastTimeout: timeout,
	}
}

// Add registers a stream.
func (h *Hub) Add(s *Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[s] = struct{}{}
}

// Remove unregisters a stream. No more messages are sent to it.
func (h *Hub) Remove(s *Stream) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, s)
}

// Broadcast sends msg to every registered stream.
//
// A stream whose buffer stays full for longer than the broadcast timeout is
// failed (its Failed channel is closed) and removed, so a slow consumer
// learns it missed updates instead of silently skipping them.
func (h *Hub) Broadcast(msg *api.Message) {
	h.mu.RLock()
	targets := make([]*Stream, 0, len(h.streams))
	for s := range h.streams {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	var failed []*Stream
	for _, s := range targets {
		if !s.deliver(msg, h.broadcastTimeout) {
			failed = append(failed, s)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, s := range failed {
			delete(h.streams, s)
		}
		h.mu.Unlock()
	}
}

// FailAll fails and removes every stream.
func (h *Hub) FailAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.streams {
		s.fail(ErrClosed)
		delete(h.streams, s)
	}
}

// Len returns the number of registered streams.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
