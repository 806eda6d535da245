// Package auth decides whether a handshake may open a document.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signadot/docsync/system/syncd/api"
)

var (
	// ErrAuthRequired rejects personal documents opened without auth.
	ErrAuthRequired = errors.New("auth not given for personal store")
	// ErrDenied is returned by authenticators refusing a payload.
	ErrDenied = errors.New("auth denied")
	// ErrInvalidAuthenticator reports an authenticator that cannot be
	// called.
	ErrInvalidAuthenticator = errors.New("invalid authenticator")
)

// Authenticator verifies an auth payload. A nil error accepts it.
type Authenticator interface {
	Authenticate(ctx context.Context, auth json.RawMessage) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, auth json.RawMessage) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, auth json.RawMessage) error {
	return f(ctx, auth)
}

// Rejection is returned by Authorize when a handshake may not proceed.
type Rejection struct {
	Name string
	Err  error
}

func (r *Rejection) Error() string {
	return r.Err.Error()
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Gate applies the personal-document rule and delegates to an optional
// Authenticator. It holds no state.
type Gate struct {
	authenticator Authenticator
}

// NewGate creates a Gate. A nil authenticator disables delegation; an
// authenticator that is present but not callable is an error.
func NewGate(a Authenticator) (*Gate, error) {
	if f, ok := a.(AuthenticatorFunc); ok && f == nil {
		return nil, ErrInvalidAuthenticator
	}
	return &Gate{authenticator: a}, nil
}

// Authorize decides whether auth may open the named document.
func (g *Gate) Authorize(ctx context.Context, name string, auth json.RawMessage) error {
	present := api.Truthy(auth)
	if api.IsPersonal(name) && !present {
		return &Rejection{Name: name, Err: ErrAuthRequired}
	}
	if !present || g.authenticator == nil {
		return nil
	}
	if err := g.authenticator.Authenticate(ctx, auth); err != nil {
		return &Rejection{Name: name, Err: err}
	}
	return nil
}

// HasAuthenticator reports whether g delegates to an authenticator.
func (g *Gate) HasAuthenticator() bool {
	return g.authenticator != nil
}

func deny(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDenied, fmt.Sprintf(format, args...))
}
