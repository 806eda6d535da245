package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/docsync/system/syncd/kv"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer creates a server for spec listening on a random TCP port.
func startServer(t *testing.T, spec *Spec) *Server {
	t.Helper()
	if spec.Log == nil {
		spec.Log = quietLog()
	}
	s, err := New(spec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.StartTCP("127.0.0.1:0"); err != nil {
		t.Fatalf("failed to start TCP: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	dec  *json.Decoder
}

func dial(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, dec: json.NewDecoder(conn)}
}

func (c *testClient) send(v string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(v + "\n")); err != nil {
		c.t.Fatalf("failed to write: %v", err)
	}
}

func (c *testClient) recv() json.RawMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var v json.RawMessage
	if err := c.dec.Decode(&v); err != nil {
		c.t.Fatalf("failed to read: %v", err)
	}
	return v
}

// expect reads one value and compares it structurally to want.
func (c *testClient) expect(want string) {
	c.t.Helper()
	jsonEqual(c.t, want, c.recv())
}

// expectSilence checks that nothing arrives for a short while.
func (c *testClient) expectSilence() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	var v json.RawMessage
	err := c.dec.Decode(&v)
	if err == nil {
		c.t.Fatalf("unexpected value %s", v)
	}
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		c.t.Fatalf("expected timeout, got %v", err)
	}
	// a timed out decoder is unusable
	c.dec = json.NewDecoder(c.conn)
}

// expectClosed checks that the server closes the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var v json.RawMessage
	err := c.dec.Decode(&v)
	if err == nil {
		c.t.Fatalf("unexpected value %s", v)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		c.t.Fatal("connection was not closed")
	}
}

func jsonEqual(t *testing.T, want string, got []byte) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expectation %s: %v", want, err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("bad JSON %s: %v", got, err)
	}
	if diff := cmp.Diff(w, g); diff != "" {
		t.Errorf("JSON mismatch (-want +got):\n%s", diff)
	}
}

// countingStores is a store factory handing out one memory store per name
// and counting calls.
type countingStores struct {
	mu     sync.Mutex
	calls  map[string]int
	stores map[string]*kv.Memory
	delay  time.Duration
	fail   map[string]error
}

func newCountingStores() *countingStores {
	return &countingStores{
		calls:  make(map[string]int),
		stores: make(map[string]*kv.Memory),
		fail:   make(map[string]error),
	}
}

func (cs *countingStores) factory(ctx context.Context, name string) (kv.Store, error) {
	cs.mu.Lock()
	cs.calls[name]++
	err := cs.fail[name]
	delay := cs.delay
	cs.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	st, ok := cs.stores[name]
	if !ok {
		st = kv.NewMemory()
		cs.stores[name] = st
	}
	return st, nil
}

func (cs *countingStores) count(name string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.calls[name]
}

func (cs *countingStores) store(name string) *kv.Memory {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.stores[name]
}

func (cs *countingStores) setFail(name string, err error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if err == nil {
		delete(cs.fail, name)
		return
	}
	cs.fail[name] = err
}
