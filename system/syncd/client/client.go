// Package client connects to a sync server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/wire"
)

// Config contains configuration for dialing a server.
type Config struct {
	// Addr is host:port for the TCP binding, or a ws:// or wss:// URL for
	// the WebSocket binding.
	Addr string
	Log  *slog.Logger
	// DialTimeout bounds each connection attempt (default 5s).
	DialTimeout time.Duration
	// MaxBackoff caps the delay between attempts (default 5s).
	MaxBackoff time.Duration
}

// Client is one connection bound to a document.
type Client struct {
	conn wire.Conn
	log  *slog.Logger

	writeMu sync.Mutex
}

// Dial connects to the server, retrying with exponential backoff until ctx
// is done, and sends hs. The server's replies, starting with the catch-up
// update or a handshake error, are read with Recv.
func Dial(ctx context.Context, cfg *Config, hs *api.Handshake) (*Client, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}
	data, err := json.Marshal(hs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handshake: %w", err)
	}

	backoff := 100 * time.Millisecond
	for {
		conn, err := dial(ctx, cfg.Addr, dialTimeout)
		if err == nil {
			c := &Client{conn: conn, log: log}
			if err := c.conn.WriteValue(data); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to send handshake: %w", err)
			}
			return c, nil
		}
		log.Debug("failed to connect, retrying", "addr", cfg.Addr, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Addr, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func dial(ctx context.Context, addr string, timeout time.Duration) (wire.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return wire.NewWebSocketConn(ws), nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return wire.NewStreamConn(conn), nil
}

// Send submits a patch.
func (c *Client) Send(patch json.RawMessage) error {
	if !json.Valid(patch) {
		return fmt.Errorf("patch is not valid JSON")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteValue(patch)
}

// Recv returns the next value from the server.
func (c *Client) Recv() (*api.Message, error) {
	raw, err := c.conn.ReadValue()
	if err != nil {
		return nil, err
	}
	msg := &api.Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("unexpected value from server: %w", err)
	}
	return msg, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
