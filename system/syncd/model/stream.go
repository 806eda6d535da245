package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/signadot/docsync/system/syncd/api"
)

// Stream is one consumer's view of a model: Out yields the catch-up update
// followed by every update applied to the model, and Send applies patches.
type Stream struct {
	model *Model
	out   chan *api.Message

	failed   chan struct{}
	failOnce sync.Once
	failErr  error

	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(m *Model, bufSize int) *Stream {
	return &Stream{
		model:  m,
		out:    make(chan *api.Message, bufSize),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Out returns the outbound values of the stream.
func (s *Stream) Out() <-chan *api.Message {
	return s.out
}

// Failed is closed when the stream fell too far behind, or its model was
// closed, and will receive no further updates.
func (s *Stream) Failed() <-chan struct{} {
	return s.failed
}

// Err returns why the stream failed: ErrSlowConsumer or ErrClosed. It is
// nil until Failed is closed.
func (s *Stream) Err() error {
	select {
	case <-s.failed:
		return s.failErr
	default:
		return nil
	}
}

// Model returns the model the stream is attached to.
func (s *Stream) Model() *Model {
	return s.model
}

// Send applies patch to the model and returns the version it produced.
//
// A patch that cannot be applied leaves the model untouched; a patch
// failure value is queued on this stream only and a *PatchError is
// returned.
func (s *Stream) Send(ctx context.Context, patch json.RawMessage) (int64, error) {
	version, err := s.model.Apply(patch)
	if err == nil {
		return version, nil
	}
	var perr *PatchError
	if errors.As(err, &perr) {
		s.deliverCtx(ctx, api.NewPatchFailureMessage(patch))
	}
	return 0, err
}

// Close detaches the stream from its model.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.model.hub.Remove(s)
	})
}

// deliver queues msg, giving up after timeout. It reports false when the
// stream was failed by this call.
func (s *Stream) deliver(msg *api.Message, timeout time.Duration) bool {
	select {
	case <-s.failed:
		return true
	case <-s.closed:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.out <- msg:
		return true
	case <-s.failed:
		return true
	case <-s.closed:
		return true
	case <-timer.C:
		s.fail(ErrSlowConsumer)
		return false
	}
}

func (s *Stream) deliverCtx(ctx context.Context, msg *api.Message) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	case <-s.failed:
	case <-s.closed:
	}
}

func (s *Stream) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
	})
}
