package server

import (
	"errors"

	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/model"
)

// ConsumerKeyPrefix prefixes the document store key holding the last
// update written to a consumer.
const ConsumerKeyPrefix = "c-"

// exchange applies inbound patches until the client goes away. Failed
// patches are reported on this connection's stream and do not end it.
func (c *Connection) exchange() error {
	for {
		patch, err := c.next()
		if err != nil {
			return c.readError(err)
		}
		version, err := c.stream.Send(c.ctx, patch)
		switch {
		case err == nil:
			c.log.Debug("patch applied", "doc", c.stream.Model().Name(), "version", version)
		case errors.Is(err, model.ErrClosed):
			return nil
		default:
			c.log.Debug("patch rejected", "doc", c.stream.Model().Name(), "error", err)
		}
	}
}

// forward relays stream values to the writer. When the stream fails, the
// client is told why and the connection is closed.
func (c *Connection) forward() {
	out := c.stream.Out()
	for {
		select {
		case msg := <-out:
			c.relay(msg)
		case <-c.stream.Failed():
			c.drain()
			cause := c.stream.Err()
			c.log.Info("stream failed", "doc", c.stream.Model().Name(), "cause", cause)
			c.send(outbound{
				msg:  api.NewErrorMessage(api.ErrMsgStreamFailed, cause.Error()),
				last: true,
			})
			return
		case <-c.stop:
			return
		}
	}
}

// drain relays the values queued before the stream failed.
func (c *Connection) drain() {
	for {
		select {
		case msg := <-c.stream.Out():
			c.relay(msg)
		default:
			return
		}
	}
}

func (c *Connection) relay(msg *api.Message) {
	c.track(msg)
	c.send(outbound{msg: msg})
}

// track records msg as the last update seen by the connection's consumer.
func (c *Connection) track(msg *api.Message) {
	if c.consumerID == "" || msg.Update == nil || !c.server.Spec.Config.Tracking() {
		return
	}
	data, err := msg.Update.MarshalJSON()
	if err != nil {
		c.log.Error("failed to encode consumer record", "consumer", c.consumerID, "error", err)
		return
	}
	m := c.stream.Model()
	if err := m.Store().Set(c.ctx, ConsumerKeyPrefix+c.consumerID, data); err != nil {
		c.log.Error("failed to store consumer record", "doc", m.Name(), "consumer", c.consumerID, "error", err)
	}
}
