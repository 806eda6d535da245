package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/model"
	"github.com/signadot/docsync/system/syncd/wire"
)

// outbound is one value queued for the writer.
type outbound struct {
	msg *api.Message
	// last closes the connection once msg is written
	last bool
}

// inbound is one value, or the read error ending the transport.
type inbound struct {
	value json.RawMessage
	err   error
}

// Connection is one client connection. It bootstraps from the first
// inbound value and then exchanges patches with a model stream.
type Connection struct {
	ID     string
	conn   wire.Conn
	server *Server
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	// set by a successful bootstrap
	stream     *model.Stream
	consumerID string

	inbound   chan inbound
	outgoing  chan outbound
	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a connection served by s.
func (s *Server) NewConnection(id string, conn wire.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	bufSize := s.Spec.Config.Stream.Buffer
	if bufSize <= 0 {
		bufSize = 100
	}
	return &Connection{
		ID:       id,
		conn:     conn,
		server:   s,
		log:      s.Spec.Log.With("conn", id),
		ctx:      ctx,
		cancel:   cancel,
		inbound:  make(chan inbound),
		outgoing: make(chan outbound, bufSize),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// State returns the bootstrap state reached so far.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Run serves the connection and blocks until it ends. The reader runs in
// the calling goroutine; values are read from the transport by a pump and
// written by a separate writer.
func (c *Connection) Run() error {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writer()
	}()
	var pumping sync.WaitGroup
	pumping.Go(c.pump)

	var fwd sync.WaitGroup
	err := c.reader(&fwd)

	c.cancel()
	if c.stream != nil {
		c.stream.Close()
	}
	close(c.stop)
	fwd.Wait()

	// let the writer flush what was queued
	close(c.outgoing)
	<-writerDone
	c.Close()
	pumping.Wait()
	return err
}

// Close shuts the connection down.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	return c.conn.Close()
}

func (c *Connection) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// pump reads the transport for the reader. A read error, including EOF,
// cancels the connection context first, so a bootstrap step still in
// flight is abandoned.
func (c *Connection) pump() {
	for {
		v, err := c.conn.ReadValue()
		if err != nil {
			c.cancel()
		}
		select {
		case c.inbound <- inbound{value: v, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// next returns the next inbound value.
func (c *Connection) next() (json.RawMessage, error) {
	select {
	case in := <-c.inbound:
		return in.value, in.err
	case <-c.done:
		return nil, net.ErrClosed
	}
}

func (c *Connection) reader(fwd *sync.WaitGroup) error {
	raw, err := c.next()
	if err != nil {
		return c.readError(err)
	}

	b, err := c.bootstrap(raw)
	if err != nil {
		if errors.Is(err, api.ErrMalformedHandshake) {
			return err
		}
		if c.ctx.Err() != nil {
			// the client went away during bootstrap
			c.log.Debug("handshake abandoned", "doc", b.name(), "state", b.failedAt.String())
			return nil
		}
		var apiErr *api.Error
		if !errors.As(err, &apiErr) {
			if c.closing() {
				return nil
			}
			return fmt.Errorf("bootstrap failed: %w", err)
		}
		c.log.Info("handshake failed", "doc", b.name(), "state", b.failedAt.String(), "error", apiErr.Code, "cause", apiErr.Cause)
		c.send(outbound{msg: apiErr.Message(), last: c.server.Spec.Config.CloseOnError})
		return c.idle()
	}

	if b.sid != "" {
		c.send(outbound{msg: api.NewSessionMessage(b.sid)})
	}
	c.stream = b.stream
	c.consumerID = b.hs.ConsumerID
	fwd.Go(c.forward)
	return c.exchange()
}

// idle discards inbound values until the client goes away.
func (c *Connection) idle() error {
	for {
		if _, err := c.next(); err != nil {
			return c.readError(err)
		}
	}
}

func (c *Connection) readError(err error) error {
	if errors.Is(err, io.EOF) || c.closing() {
		return nil
	}
	return fmt.Errorf("read error: %w", err)
}

func (c *Connection) writer() {
	for o := range c.outgoing {
		data, err := json.Marshal(o.msg)
		if err != nil {
			c.log.Error("failed to encode message", "error", err)
			continue
		}
		if err := c.conn.WriteValue(data); err != nil {
			if !c.closing() {
				c.log.Error("failed to write message", "error", err)
			}
			c.Close()
			return
		}
		if o.last {
			c.Close()
			return
		}
	}
}

func (c *Connection) send(o outbound) {
	select {
	case c.outgoing <- o:
	case <-c.done:
	}
}
