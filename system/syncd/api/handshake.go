package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PersonalPrefix marks documents that can only be opened with auth.
const PersonalPrefix = "p-"

// ReservedPrefix marks store names used by the server itself, such as the
// session store. Handshakes may not name them.
const ReservedPrefix = "-"

// Handshake is the first value a client sends on a connection.
type Handshake struct {
	// Name identifies the shared document.
	Name string `json:"name"`
	// Start is the version the client wants to catch up from.
	// Zero is the empty document.
	Start int64 `json:"start,omitempty"`
	// SID resumes a previously minted session.
	SID string `json:"sid,omitempty"`
	// Auth is either a session token (a JSON string) or an
	// authentication payload.
	Auth json.RawMessage `json:"auth,omitempty"`
	// ConsumerID optionally identifies the client across connections.
	ConsumerID string `json:"consumerId,omitempty"`
}

type wireHandshake struct {
	Name       *string         `json:"name"`
	Start      *int64          `json:"start"`
	SID        *string         `json:"sid"`
	Auth       json.RawMessage `json:"auth"`
	ConsumerID json.RawMessage `json:"consumerId"`
}

// ParseHandshake decodes a handshake value. Anything that is not an object
// with a non-empty string name outside ReservedPrefix is reported as
// ErrMalformedHandshake.
func ParseHandshake(data []byte) (*Handshake, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformedHandshake)
	}
	var w wireHandshake
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHandshake, err)
	}
	if w.Name == nil || *w.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrMalformedHandshake)
	}
	if strings.HasPrefix(*w.Name, ReservedPrefix) {
		return nil, fmt.Errorf("%w: name %q is reserved", ErrMalformedHandshake, *w.Name)
	}
	hs := &Handshake{Name: *w.Name}
	if w.Start != nil && *w.Start > 0 {
		hs.Start = *w.Start
	}
	if w.SID != nil {
		hs.SID = *w.SID
	}
	if !IsNull(w.Auth) {
		hs.Auth = w.Auth
	}
	id, err := consumerID(w.ConsumerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHandshake, err)
	}
	hs.ConsumerID = id
	return hs, nil
}

// consumerID accepts a string or a number.
func consumerID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if IsNull(raw) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("consumerId must be a string or a number")
	}
	return n.String(), nil
}

// IsPersonal reports whether the named document requires auth.
func (h *Handshake) IsPersonal() bool {
	return IsPersonal(h.Name)
}

// IsPersonal reports whether a document name carries the personal prefix.
func IsPersonal(name string) bool {
	return strings.HasPrefix(name, PersonalPrefix)
}

// IsNull reports whether raw is absent or the JSON null literal.
func IsNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// IsString reports whether raw is a JSON string.
func IsString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}

// Truthy reports whether raw is present and not one of null, false, 0 or "".
func Truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if IsNull(raw) {
		return false
	}
	switch raw[0] {
	case 'f':
		return false
	case '"':
		return len(raw) > 2
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(raw), 64)
		return err != nil || f != 0
	}
	return true
}
