package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Error strings carried in the "error" field of outbound error values.
const (
	ErrMsgFetchSession = "unable to fetch session"
	ErrMsgFindSession  = "unable to find session"
	ErrMsgInvalidAuth  = "invalid auth"
	ErrMsgCreateStore  = "unable to create store"
	ErrMsgCreateModel  = "unable to create model"
	ErrMsgCreateStream = "error creating stream"
	ErrMsgPatchFailed  = "patch failed"
	ErrMsgStreamFailed = "stream failed"
)

// EmptyPatch is the patch list with no operations.
var EmptyPatch = json.RawMessage("[]")

// Update pairs a patch with the version it produces.
// On the wire it is the two element array [patch, version].
type Update struct {
	Patch   json.RawMessage
	Version int64
}

// MarshalJSON implements json.Marshaler.
func (u Update) MarshalJSON() ([]byte, error) {
	patch := u.Patch
	if len(patch) == 0 {
		patch = EmptyPatch
	}
	return json.Marshal([2]any{patch, u.Version})
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Update) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("update must be a [patch, version] pair, got %d elements", len(pair))
	}
	var version int64
	if err := json.Unmarshal(pair[1], &version); err != nil {
		return fmt.Errorf("invalid update version: %w", err)
	}
	u.Patch = pair[0]
	u.Version = version
	return nil
}

// SessionAnnouncement tells the client the id of a freshly minted session.
type SessionAnnouncement struct {
	SID string `json:"sid"`
}

// ErrorValue reports a failed handshake or a failed stream.
type ErrorValue struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

// PatchFailure reports a patch that could not be applied. The patch is
// echoed back as received.
type PatchFailure struct {
	Error string          `json:"error"`
	Patch json.RawMessage `json:"patch"`
}

// Message is one outbound value. Exactly one field is set.
type Message struct {
	Update       *Update
	Session      *SessionAnnouncement
	Error        *ErrorValue
	PatchFailure *PatchFailure
}

// NewUpdateMessage creates a message carrying [patch, version].
func NewUpdateMessage(patch json.RawMessage, version int64) *Message {
	return &Message{Update: &Update{Patch: patch, Version: version}}
}

// NewSessionMessage creates a session announcement message.
func NewSessionMessage(sid string) *Message {
	return &Message{Session: &SessionAnnouncement{SID: sid}}
}

// NewErrorMessage creates an error message.
func NewErrorMessage(msg, cause string) *Message {
	return &Message{Error: &ErrorValue{Error: msg, Cause: cause}}
}

// NewPatchFailureMessage creates a patch failure message echoing patch.
func NewPatchFailureMessage(patch json.RawMessage) *Message {
	if len(patch) == 0 {
		patch = json.RawMessage("null")
	}
	return &Message{PatchFailure: &PatchFailure{Error: ErrMsgPatchFailed, Patch: patch}}
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch {
	case m.Update != nil:
		return m.Update.MarshalJSON()
	case m.Session != nil:
		return json.Marshal(m.Session)
	case m.Error != nil:
		return json.Marshal(m.Error)
	case m.PatchFailure != nil:
		return json.Marshal(m.PatchFailure)
	}
	return nil, fmt.Errorf("empty message")
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty message")
	}
	*m = Message{}
	switch data[0] {
	case '[':
		m.Update = &Update{}
		return m.Update.UnmarshalJSON(data)
	case '{':
	default:
		return fmt.Errorf("unexpected message %.32q", data)
	}
	var probe struct {
		SID   *string         `json:"sid"`
		Error *string         `json:"error"`
		Cause string          `json:"cause"`
		Patch json.RawMessage `json:"patch"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch {
	case probe.Error != nil && *probe.Error == ErrMsgPatchFailed && probe.Patch != nil:
		m.PatchFailure = &PatchFailure{Error: *probe.Error, Patch: probe.Patch}
	case probe.Error != nil:
		m.Error = &ErrorValue{Error: *probe.Error, Cause: probe.Cause}
	case probe.SID != nil:
		m.Session = &SessionAnnouncement{SID: *probe.SID}
	default:
		return fmt.Errorf("unrecognized message %.64q", data)
	}
	return nil
}
