package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/auth"
	"github.com/signadot/docsync/system/syncd/kv"
	"github.com/signadot/docsync/system/syncd/model"
	"github.com/signadot/docsync/system/syncd/registry"
	"github.com/signadot/docsync/system/syncd/session"
)

// Server represents the sync server.
type Server struct {
	Spec Spec

	// Registry holds one model per document name
	Registry *registry.Registry
	// Sessions mints and resolves session ids
	Sessions *session.Manager

	gate             *auth.Gate
	broadcastTimeout time.Duration
	closers          []io.Closer

	mu          sync.Mutex
	tcpListener *TCPListener
	wsHandler   *WebSocketHandler
	wsServer    *http.Server
	wsListener  net.Listener
	closed      bool
}

// New creates a new Server instance. Configuration errors, including an
// authenticator that cannot be used, are returned here.
func New(spec *Spec) (*Server, error) {
	if spec.Log == nil {
		spec.Log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(),
		}))
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}
	cfg := spec.Config
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	timeout, _ := cfg.Stream.Timeout()

	s := &Server{broadcastTimeout: timeout}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends()
		}
	}()

	if spec.MakeStore == nil {
		factory, closer, err := cfg.Store.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		s.addCloser(closer)
		spec.MakeStore = factory
	}
	if spec.SessionStore == nil {
		store, err := s.openSessionStore(spec)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		spec.SessionStore = store
	}
	if spec.Authenticator == nil {
		a, err := cfg.Auth.Authenticator()
		if err != nil {
			return nil, err
		}
		spec.Authenticator = a
	}
	gate, err := auth.NewGate(spec.Authenticator)
	if err != nil {
		return nil, err
	}

	s.Spec = *spec
	s.gate = gate
	s.Registry = registry.New(spec.Log)
	s.Sessions = session.NewManager(&session.Config{
		Store: spec.SessionStore,
		Log:   spec.Log,
	})
	ok = true
	return s, nil
}

func slogLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (s *Server) openSessionStore(spec *Spec) (kv.Store, error) {
	ctx := context.Background()
	if spec.Config.SessionStore == nil {
		return spec.MakeStore(ctx, kv.SessionStoreName)
	}
	factory, closer, err := spec.Config.SessionStore.Open()
	if err != nil {
		return nil, err
	}
	s.addCloser(closer)
	return factory(ctx, kv.SessionStoreName)
}

func (s *Server) addCloser(c io.Closer) {
	if c != nil {
		s.closers = append(s.closers, c)
	}
}

func (s *Server) closeBackends() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// buildModel is the registry builder: it creates the document's store and
// a model over it.
func (s *Server) buildModel(ctx context.Context, name string) (*model.Model, error) {
	store, err := s.Spec.MakeStore(ctx, name)
	if err != nil {
		return nil, api.NewError(api.ErrMsgCreateStore, err)
	}
	cfg := s.Spec.Config
	return model.New(&model.Config{
		Name:             name,
		Store:            store,
		Log:              s.Spec.Log,
		StreamBuffer:     cfg.Stream.Buffer,
		BroadcastTimeout: s.broadcastTimeout,
		HistoryLimit:     cfg.Model.HistoryLimit,
	}), nil
}

// StartTCP starts the TCP listener on the given address.
// The listener runs in a separate goroutine.
func (s *Server) StartTCP(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcpListener != nil {
		return fmt.Errorf("TCP listener already running")
	}

	listener, err := NewTCPListener(addr, s)
	if err != nil {
		return err
	}
	s.tcpListener = listener

	go func() {
		if err := listener.Serve(); err != nil {
			s.Spec.Log.Error("TCP listener error", "error", err)
		}
	}()
	return nil
}

// StopTCP stops the TCP listener and its connections.
func (s *Server) StopTCP() error {
	s.mu.Lock()
	listener := s.tcpListener
	s.tcpListener = nil
	s.mu.Unlock()
	if listener == nil {
		return nil
	}
	return listener.Close()
}

// TCPAddr returns the TCP listener's address, or "" if not running.
func (s *Server) TCPAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcpListener == nil {
		return ""
	}
	return s.tcpListener.Addr().String()
}

// StartWebSocket serves the WebSocket binding on addr.
func (s *Server) StartWebSocket(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsServer != nil {
		return fmt.Errorf("WebSocket listener already running")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	handler := s.WebSocketHandler()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.wsHandler = handler
	s.wsServer = srv
	s.wsListener = ln

	s.Spec.Log.Info("WebSocket listener started", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Spec.Log.Error("WebSocket listener error", "error", err)
		}
	}()
	return nil
}

// StopWebSocket stops the WebSocket listener and its connections.
func (s *Server) StopWebSocket() error {
	s.mu.Lock()
	srv, handler := s.wsServer, s.wsHandler
	s.wsServer, s.wsHandler, s.wsListener = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Close()
	handler.Close()
	s.Spec.Log.Info("WebSocket listener stopped")
	return err
}

// WebSocketAddr returns the WebSocket listener's address, or "" if not
// running.
func (s *Server) WebSocketAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsListener == nil {
		return ""
	}
	return s.wsListener.Addr().String()
}

// Close stops the listeners, closes every model (flushing snapshots),
// waits for session writes and releases the stores.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.StopTCP(), s.StopWebSocket()}
	errs = append(errs, s.Registry.Close())
	s.Sessions.Flush()
	errs = append(errs, s.closeBackends())
	return errors.Join(errs...)
}
