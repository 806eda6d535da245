package server

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// connSet tracks the live connections of one listener.
type connSet struct {
	mu     sync.Mutex
	conns  map[string]*Connection
	closed bool
	wg     sync.WaitGroup
}

func newConnSet() *connSet {
	return &connSet{conns: make(map[string]*Connection)}
}

func newConnID() string {
	return ulid.Make().String()
}

// acquire reserves a slot for a new connection. It reports false once
// closeAll has been called. Each successful acquire must be paired with
// release.
func (cs *connSet) acquire() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return false
	}
	cs.wg.Add(1)
	return true
}

func (cs *connSet) release() {
	cs.wg.Done()
}

// run tracks c while it runs.
func (cs *connSet) run(c *Connection) error {
	cs.mu.Lock()
	cs.conns[c.ID] = c
	closed := cs.closed
	cs.mu.Unlock()
	if closed {
		c.Close()
	}

	defer func() {
		cs.mu.Lock()
		delete(cs.conns, c.ID)
		cs.mu.Unlock()
	}()
	return c.Run()
}

// closeAll closes every connection, refuses new ones and waits for the
// running ones to end.
func (cs *connSet) closeAll() {
	cs.mu.Lock()
	cs.closed = true
	for _, c := range cs.conns {
		c.Close()
	}
	cs.mu.Unlock()
	cs.wg.Wait()
}

func (cs *connSet) len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.conns)
}
