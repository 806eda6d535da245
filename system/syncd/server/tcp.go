package server

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/signadot/docsync/system/syncd/wire"
)

// TCPListener accepts connections speaking newline-delimited JSON.
type TCPListener struct {
	listener net.Listener
	server   *Server
	conns    *connSet
	closed   atomic.Bool
}

// NewTCPListener creates a new TCP listener.
func NewTCPListener(addr string, server *Server) (*TCPListener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return &TCPListener{
		listener: listener,
		server:   server,
		conns:    newConnSet(),
	}, nil
}

// Addr returns the listener's network address.
func (l *TCPListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until Close is called.
func (l *TCPListener) Serve() error {
	log := l.server.Spec.Log
	log.Info("TCP listener started", "addr", l.listener.Addr().String())

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() {
				return nil
			}
			log.Error("accept error", "error", err)
			continue
		}

		if !l.conns.acquire() {
			conn.Close()
			continue
		}
		go l.handleConnection(conn)
	}
}

func (l *TCPListener) handleConnection(conn net.Conn) {
	defer l.conns.release()

	id := newConnID()
	log := l.server.Spec.Log
	log.Debug("new TCP connection", "conn", id, "remote", conn.RemoteAddr().String())

	c := l.server.NewConnection(id, wire.NewStreamConn(conn))
	if err := l.conns.run(c); err != nil {
		log.Error("connection error", "conn", id, "error", err)
	}
	log.Debug("connection ended", "conn", id)
}

// Close shuts down the listener and all connections.
func (l *TCPListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := l.listener.Close(); err != nil {
		l.server.Spec.Log.Error("error closing listener", "error", err)
	}
	l.conns.closeAll()

	l.server.Spec.Log.Info("TCP listener stopped")
	return nil
}

// ConnectionCount returns the number of live connections.
func (l *TCPListener) ConnectionCount() int {
	return l.conns.len()
}
