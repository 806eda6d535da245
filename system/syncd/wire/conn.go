// Package wire frames JSON values over byte streams and websockets.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signadot/docsync/debug"
)

// Conn carries JSON values in both directions. ReadValue is called from one
// goroutine and WriteValue from another.
type Conn interface {
	ReadValue() (json.RawMessage, error)
	WriteValue(data []byte) error
	Close() error
	RemoteAddr() string
}

// DefaultWriteTimeout bounds how long one outbound value may take to write.
const DefaultWriteTimeout = 10 * time.Second

// StreamConn frames JSON values on a byte stream. Outbound values are
// newline terminated; inbound values may be separated by any whitespace.
type StreamConn struct {
	conn         net.Conn
	dec          *json.Decoder
	w            *bufio.Writer
	writeTimeout time.Duration
}

// NewStreamConn wraps a byte stream connection.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn:         conn,
		dec:          json.NewDecoder(conn),
		w:            bufio.NewWriter(conn),
		writeTimeout: DefaultWriteTimeout,
	}
}

func (c *StreamConn) ReadValue() (json.RawMessage, error) {
	var v json.RawMessage
	if err := c.dec.Decode(&v); err != nil {
		return nil, err
	}
	if debug.Wire() {
		debug.Logf("<- %s %s\n", c.RemoteAddr(), v)
	}
	return v, nil
}

func (c *StreamConn) WriteValue(data []byte) error {
	if debug.Wire() {
		debug.Logf("-> %s %s\n", c.RemoteAddr(), data)
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WebSocketConn carries one JSON value per text message.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewWebSocketConn wraps an established websocket.
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws, writeTimeout: DefaultWriteTimeout}
}

var (
	errBinaryMessage = errors.New("binary websocket messages are not supported")
	errInvalidJSON   = errors.New("websocket message is not a JSON value")
)

func (c *WebSocketConn) ReadValue() (json.RawMessage, error) {
	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		switch messageType {
		case websocket.TextMessage:
		case websocket.BinaryMessage:
			return nil, errBinaryMessage
		default:
			continue
		}
		if !json.Valid(message) {
			return nil, errInvalidJSON
		}
		if debug.Wire() {
			debug.Logf("<- %s %s\n", c.RemoteAddr(), message)
		}
		return message, nil
	}
}

func (c *WebSocketConn) WriteValue(data []byte) error {
	if debug.Wire() {
		debug.Logf("-> %s %s\n", c.RemoteAddr(), data)
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame, best effort, and closes the socket.
func (c *WebSocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *WebSocketConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
