package server

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/docsync/system/syncd/auth"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
tcp: 0.0.0.0:7000
websocket: 0.0.0.0:7001
closeOnError: true
store:
  kind: bolt
  path: /tmp/docs.db
auth:
  kind: expr
  expr: 'auth.user != ""'
stream:
  buffer: 10
  broadcastTimeout: 250ms
model:
  historyLimit: 16
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	track := true
	want := &Config{
		TCP:            "0.0.0.0:7000",
		WebSocket:      "0.0.0.0:7001",
		CloseOnError:   true,
		TrackConsumers: &track,
		Store:          &StoreConfig{Kind: StoreBolt, Path: "/tmp/docs.db"},
		Auth:           &AuthConfig{Kind: AuthExpr, Expr: `auth.user != ""`},
		Stream:         &StreamConfig{Buffer: 10, BroadcastTimeout: "250ms"},
		Model:          &ModelConfig{HistoryLimit: 16},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if d, _ := cfg.Stream.Timeout(); d != 250*time.Millisecond {
		t.Errorf("Timeout() = %v", d)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("tcp: \":9000\"\nstream:\n  buffer: 5\n"))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.Store.Kind != StoreMemory || cfg.Auth.Kind != AuthNone {
		t.Errorf("unexpected defaults store=%q auth=%q", cfg.Store.Kind, cfg.Auth.Kind)
	}
	if cfg.Stream.BroadcastTimeout != def.Stream.BroadcastTimeout {
		t.Errorf("BroadcastTimeout = %q, want %q", cfg.Stream.BroadcastTimeout, def.Stream.BroadcastTimeout)
	}
	if !cfg.Tracking() {
		t.Error("consumer tracking should default to on")
	}
	if cfg.Model.HistoryLimit != def.Model.HistoryLimit {
		t.Errorf("HistoryLimit = %d", cfg.Model.HistoryLimit)
	}
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown field", "tcpp: :1\n", "failed to parse"},
		{"bolt without path", "store: {kind: bolt}\n", "requires a path"},
		{"unknown store", "store: {kind: etcd}\n", "unknown store kind"},
		{"jwt without secret", "auth: {kind: jwt}\n", "requires a secret"},
		{"unknown auth", "auth: {kind: oauth}\n", "unknown kind"},
		{"bad timeout", "stream: {broadcastTimeout: soon}\n", "invalid broadcastTimeout"},
		{"negative timeout", "stream: {broadcastTimeout: -1s}\n", "must be positive"},
		{"negative buffer", "stream: {buffer: -1}\n", "must not be negative"},
		{"bad session store", "sessionStore: {kind: nope}\n", "sessionStore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseConfig() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncd.yaml")
	if err := os.WriteFile(path, []byte("tcp: 127.0.0.1:1234\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.TCP != "127.0.0.1:1234" {
		t.Errorf("TCP = %q", cfg.TCP)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAuthConfig_Authenticator(t *testing.T) {
	a, err := (&AuthConfig{Kind: AuthNone}).Authenticator()
	if err != nil || a != nil {
		t.Errorf("none: got %v, %v", a, err)
	}
	a, err = (&AuthConfig{Kind: AuthExpr, Expr: `auth.ok == true`}).Authenticator()
	if err != nil {
		t.Fatalf("expr: %v", err)
	}
	if _, ok := a.(*auth.ExprAuthenticator); !ok {
		t.Errorf("expr: got %T", a)
	}
	a, err = (&AuthConfig{Kind: AuthJWT, Secret: "s3cret"}).Authenticator()
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	if _, ok := a.(*auth.JWTAuthenticator); !ok {
		t.Errorf("jwt: got %T", a)
	}
}

func TestStoreConfig_OpenBolt(t *testing.T) {
	sc := &StoreConfig{Kind: StoreBolt, Path: filepath.Join(t.TempDir(), "docs.db")}
	factory, closer, err := sc.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if closer == nil {
		t.Fatal("bolt store must be closable")
	}
	defer closer.Close()

	ctx := context.Background()
	st, err := factory(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := st.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
}

func TestServer_BoltBackedDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	cfg := DefaultConfig()
	cfg.Store = &StoreConfig{Kind: StoreBolt, Path: path}

	s, err := New(&Spec{Config: cfg, Log: quietLog()})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StartTCP("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	c := dial(t, s.TCPAddr())
	c.send(`{"name": "persisted"}`)
	c.expect(`[[], 0]`)
	c.send(`[{"op": "add", "path": "/n", "value": 3}]`)
	c.expect(`[[{"op": "add", "path": "/n", "value": 3}], 1]`)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	cfg2 := DefaultConfig()
	cfg2.Store = &StoreConfig{Kind: StoreBolt, Path: path}
	s2 := startServer(t, &Spec{Config: cfg2})
	c2 := dial(t, s2.TCPAddr())
	c2.send(`{"name": "persisted", "start": 1}`)
	c2.expect(`[[], 1]`)
}
