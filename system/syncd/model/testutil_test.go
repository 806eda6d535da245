package model

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/kv"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReadyModel(t *testing.T, cfg *Config) *Model {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = kv.NewMemory()
	}
	if cfg.Log == nil {
		cfg.Log = quietLog()
	}
	m := New(cfg)
	select {
	case <-m.Ready():
	case <-time.After(time.Second):
		t.Fatal("model never became ready")
	}
	if err := m.Err(); err != nil {
		t.Fatalf("model load error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func recv(t *testing.T, s *Stream) *api.Message {
	t.Helper()
	select {
	case msg := <-s.Out():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream value")
		return nil
	}
}

func expectNone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case msg := <-s.Out():
		d, _ := json.Marshal(msg)
		t.Fatalf("unexpected stream value %s", d)
	case <-time.After(50 * time.Millisecond):
	}
}

// jsonEqual compares JSON texts structurally.
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

func wire(t *testing.T, msg *api.Message) []byte {
	t.Helper()
	d, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return d
}
