package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMessage_Marshal(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{"empty update", NewUpdateMessage(nil, 0), `[[],0]`},
		{"update", NewUpdateMessage(json.RawMessage(`[{"op": "add", "path": "/a", "value": 1}]`), 1), `[[{"op":"add","path":"/a","value":1}],1]`},
		{"session", NewSessionMessage("s1"), `{"sid":"s1"}`},
		{"error", NewErrorMessage(ErrMsgInvalidAuth, "denied"), `{"error":"invalid auth","cause":"denied"}`},
		{"error without cause", NewErrorMessage(ErrMsgCreateStream, ""), `{"error":"error creating stream"}`},
		{"patch failure", NewPatchFailureMessage(json.RawMessage(`[{"op":"test","path":"/a","value":2}]`)), `{"error":"patch failed","patch":[{"op":"test","path":"/a","value":2}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMessage_MarshalEmpty(t *testing.T) {
	if _, err := json.Marshal(&Message{}); err == nil {
		t.Error("expected error marshaling empty message")
	}
}

func TestMessage_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Message
	}{
		{`[[],4]`, Message{Update: &Update{Patch: json.RawMessage(`[]`), Version: 4}}},
		{`{"sid":"s1"}`, Message{Session: &SessionAnnouncement{SID: "s1"}}},
		{`{"error":"invalid auth","cause":"x"}`, Message{Error: &ErrorValue{Error: "invalid auth", Cause: "x"}}},
		{`{"error":"patch failed","patch":{"op":"bad"}}`, Message{PatchFailure: &PatchFailure{Error: "patch failed", Patch: json.RawMessage(`{"op":"bad"}`)}}},
	}
	for _, tt := range tests {
		var got Message
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Unmarshal(%s) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestMessage_UnmarshalRejects(t *testing.T) {
	for _, in := range []string{`1`, `{"x":1}`, `[[]]`, `[[],"v"]`} {
		var m Message
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Errorf("Unmarshal(%s) expected error", in)
		}
	}
}

func TestError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrMsgCreateStore, cause)
	if !errors.Is(err, &Error{Code: ErrMsgCreateStore}) {
		t.Error("expected match by code")
	}
	if errors.Is(err, &Error{Code: ErrMsgCreateModel}) {
		t.Error("unexpected match on different code")
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to match")
	}
	if got := err.Error(); got != "unable to create store: boom" {
		t.Errorf("Error() = %q", got)
	}
	m := err.Message()
	if m.Error == nil || m.Error.Error != ErrMsgCreateStore || m.Error.Cause != "boom" {
		t.Errorf("Message() = %+v", m.Error)
	}
}
