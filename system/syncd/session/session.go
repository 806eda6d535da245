// Package session issues and resolves session ids standing in for a
// previously presented auth payload.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/signadot/docsync/system/syncd/kv"
)

// ErrNotFound is returned by Resolve for an unknown session id.
var ErrNotFound = errors.New("session not found")

// FetchError reports a backing store failure during Resolve.
type FetchError struct {
	SID string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch session %s: %v", e.SID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Manager persists sid -> auth payload records in a kv.Store.
type Manager struct {
	store kv.Store
	log   *slog.Logger
	newID   func() string
	validID func(string) bool

	pending sync.WaitGroup
}

// Config contains configuration for creating a Manager.
type Config struct {
	Store kv.Store
	Log   *slog.Logger
	// NewID generates session ids. Defaults to random UUIDs.
	NewID func() string
	// ValidID reports whether a presented sid could have been minted by
	// NewID. Defaults to a UUID check when NewID is not set.
	ValidID func(sid string) bool
}

// NewManager creates a session manager.
func NewManager(cfg *Config) *Manager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	newID, validID := cfg.NewID, cfg.ValidID
	if newID == nil {
		newID = uuid.NewString
		if validID == nil {
			validID = isUUID
		}
	}
	if validID == nil {
		validID = func(sid string) bool { return sid != "" }
	}
	return &Manager{
		store:   cfg.Store,
		log:     log.With("component", "session"),
		newID:   newID,
		validID: validID,
	}
}

func isUUID(sid string) bool {
	_, err := uuid.Parse(sid)
	return err == nil
}

// Resolve returns the auth payload stored for sid. A sid that could not
// have been minted is not looked up.
func (m *Manager) Resolve(ctx context.Context, sid string) (json.RawMessage, error) {
	if !m.validID(sid) {
		return nil, ErrNotFound
	}
	v, ok, err := m.store.Get(ctx, sid)
	if err != nil {
		return nil, &FetchError{SID: sid, Err: err}
	}
	if !ok {
		return nil, ErrNotFound
	}
	return json.RawMessage(v), nil
}

// Create mints a session for auth and returns its id. The record is
// written in the background; a failed write is logged and otherwise
// ignored, so the id may briefly (or, on failure, permanently) be
// unresolvable.
func (m *Manager) Create(ctx context.Context, auth json.RawMessage) string {
	sid := m.newID()
	payload := append(json.RawMessage(nil), auth...)
	wctx := context.WithoutCancel(ctx)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		if err := m.store.Set(wctx, sid, payload); err != nil {
			m.log.Error("unable to store session", "sid", sid, "error", err)
			return
		}
		m.log.Debug("stored session", "sid", sid)
	}()
	return sid
}

// Flush waits for background session writes to finish.
func (m *Manager) Flush() {
	m.pending.Wait()
}
