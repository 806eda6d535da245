package server

import (
	"encoding/json"
	"errors"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/auth"
	"github.com/signadot/docsync/system/syncd/model"
	"github.com/signadot/docsync/system/syncd/session"
)

// State is a step of connection bootstrap.
type State int32

const (
	AwaitingHandshake State = iota
	ResolvingSession
	Authorizing
	CreatingSession
	BuildingStore
	BuildingModel
	Streaming
	Failed
)

var stateNames = [...]string{
	AwaitingHandshake: "awaiting-handshake",
	ResolvingSession:  "resolving-session",
	Authorizing:       "authorizing",
	CreatingSession:   "creating-session",
	BuildingStore:     "building-store",
	BuildingModel:     "building-model",
	Streaming:         "streaming",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// bootstrap is the state threaded through the bootstrap steps.
type bootstrap struct {
	raw json.RawMessage
	hs  *api.Handshake
	// auth is the effective auth: the handshake's, or the resumed
	// session's
	auth json.RawMessage
	// sid is set when a session was minted
	sid    string
	model  *model.Model
	stream *model.Stream

	failedAt State
}

func (b *bootstrap) name() string {
	if b.hs == nil {
		return ""
	}
	return b.hs.Name
}

// A step does the work of one state and returns the next.
type step func(c *Connection, b *bootstrap) (State, error)

var steps = [...]step{
	AwaitingHandshake: (*Connection).awaitHandshake,
	ResolvingSession:  (*Connection).resolveSession,
	Authorizing:       (*Connection).authorize,
	CreatingSession:   (*Connection).createSession,
	BuildingStore:     (*Connection).buildStore,
	BuildingModel:     (*Connection).buildModel,
	Streaming:         (*Connection).startStream,
}

// bootstrap runs the steps from AwaitingHandshake through Streaming. Inline
// failures are returned as *api.Error; a malformed handshake as
// api.ErrMalformedHandshake. The result is never nil.
func (c *Connection) bootstrap(raw json.RawMessage) (*bootstrap, error) {
	b := &bootstrap{raw: raw}
	state := AwaitingHandshake
	for {
		c.state.Store(int32(state))
		next, err := steps[state](c, b)
		if err != nil {
			b.failedAt = state
			c.state.Store(int32(Failed))
			if debug.Handshake() {
				debug.Logf("%s: %s failed: %v\n", c.ID, state, err)
			}
			return b, err
		}
		if debug.Handshake() {
			debug.Logf("%s: %s -> %s\n", c.ID, state, next)
		}
		if state == Streaming {
			return b, nil
		}
		state = next
	}
}

func (c *Connection) awaitHandshake(b *bootstrap) (State, error) {
	hs, err := api.ParseHandshake(b.raw)
	if err != nil {
		return Failed, err
	}
	b.hs = hs
	b.auth = hs.Auth
	if hs.SID != "" {
		return ResolvingSession, nil
	}
	return Authorizing, nil
}

// resolveSession replaces the auth with the session's. A resumed session
// is not authenticated again.
func (c *Connection) resolveSession(b *bootstrap) (State, error) {
	payload, err := c.server.Sessions.Resolve(c.ctx, b.hs.SID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Failed, api.NewError(api.ErrMsgFindSession, err)
		}
		return Failed, api.NewError(api.ErrMsgFetchSession, err)
	}
	b.auth = payload
	return BuildingStore, nil
}

func (c *Connection) authorize(b *bootstrap) (State, error) {
	if err := c.server.gate.Authorize(c.ctx, b.hs.Name, b.auth); err != nil {
		var rej *auth.Rejection
		if errors.As(err, &rej) {
			return Failed, api.NewError(api.ErrMsgInvalidAuth, rej.Err)
		}
		return Failed, api.NewError(api.ErrMsgInvalidAuth, err)
	}
	return CreatingSession, nil
}

// createSession mints a session for a structured auth payload. A string is
// taken to be a token already, not credentials.
func (c *Connection) createSession(b *bootstrap) (State, error) {
	if api.Truthy(b.auth) && !api.IsString(b.auth) {
		b.sid = c.server.Sessions.Create(c.ctx, b.auth)
		c.log.Debug("minted session", "doc", b.hs.Name, "sid", b.sid)
	}
	return BuildingStore, nil
}

// buildStore takes the cached model when there is one. Otherwise the store
// is built together with the model, inside the registry's single flight
// for the name.
func (c *Connection) buildStore(b *bootstrap) (State, error) {
	if m, ok := c.server.Registry.Lookup(b.hs.Name); ok {
		b.model = m
		return Streaming, nil
	}
	return BuildingModel, nil
}

func (c *Connection) buildModel(b *bootstrap) (State, error) {
	m, err := c.server.Registry.GetOrCreate(c.ctx, b.hs.Name, c.server.buildModel)
	if err != nil {
		if c.ctx.Err() != nil {
			return Failed, c.ctx.Err()
		}
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return Failed, apiErr
		}
		return Failed, api.NewError(api.ErrMsgCreateModel, err)
	}
	b.model = m
	return Streaming, nil
}

func (c *Connection) startStream(b *bootstrap) (State, error) {
	s, err := b.model.CreateStream(b.hs.Start)
	if err != nil {
		return Failed, api.NewError(api.ErrMsgCreateStream, err)
	}
	b.stream = s
	return Streaming, nil
}
