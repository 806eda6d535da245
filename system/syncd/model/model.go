package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/kv"
)

// SnapshotKey is the store key holding the latest persisted document.
const SnapshotKey = "snapshot"

// DefaultHistoryLimit is the default number of patches retained for
// catch-up.
const DefaultHistoryLimit = 1024

// ErrClosed is returned when operating on a closed model.
var ErrClosed = errors.New("model closed")

// ErrSlowConsumer fails a stream that did not keep up with updates.
var ErrSlowConsumer = errors.New("slow consumer")

// PatchError reports a patch that could not be applied.
type PatchError struct {
	Patch json.RawMessage
	Err   error
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch failed: %v", e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// Config contains configuration for creating a Model.
type Config struct {
	Name    string
	Store   kv.Store
	Patcher Patcher
	Differ  Differ
	Log     *slog.Logger

	// Start is the document at version 0. Defaults to {}.
	Start json.RawMessage
	// StreamBuffer is the outbound buffer of each stream (default 100).
	StreamBuffer int
	// BroadcastTimeout bounds how long a full stream may stall an update
	// (default DefaultBroadcastTimeout).
	BroadcastTimeout time.Duration
	// HistoryLimit bounds the retained patches (default DefaultHistoryLimit).
	HistoryLimit int
}

type snapshot struct {
	Version int64           `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// Model is the authoritative state of one document.
type Model struct {
	name    string
	store   kv.Store
	patcher Patcher
	differ  Differ
	log     *slog.Logger
	hub     *Hub

	streamBuffer int
	historyLimit int

	mu      sync.Mutex
	doc     json.RawMessage
	version int64
	// base is the oldest version catch-up can be computed from;
	// history[i] takes version base+i to base+i+1.
	base    int64
	baseDoc json.RawMessage
	history []json.RawMessage
	closed  bool

	ready   chan struct{}
	loadErr error

	dirty      chan struct{}
	done       chan struct{}
	writerDone chan struct{}
	persisted  int64
	closeOnce  sync.Once
}

// New creates a model and starts loading its snapshot from the store.
// The model may be used once Ready is closed and Err returns nil.
func New(cfg *Config) *Model {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	patcher := cfg.Patcher
	if patcher == nil {
		patcher = JSONPatcher{}
	}
	differ := cfg.Differ
	if differ == nil {
		differ = StructuralDiffer{}
	}
	start := cfg.Start
	if len(start) == 0 {
		start = json.RawMessage("{}")
	}
	bufSize := cfg.StreamBuffer
	if bufSize <= 0 {
		bufSize = 100
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	m := &Model{
		name:         cfg.Name,
		store:        cfg.Store,
		patcher:      patcher,
		differ:       differ,
		log:          log.With("doc", cfg.Name),
		hub:          NewHub(cfg.BroadcastTimeout),
		streamBuffer: bufSize,
		historyLimit: historyLimit,
		doc:          start,
		baseDoc:      start,
		ready:        make(chan struct{}),
		dirty:        make(chan struct{}, 1),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	go m.load()
	return m
}

// load reads the persisted snapshot, if any, then signals readiness.
func (m *Model) load() {
	defer close(m.ready)

	if m.store == nil {
		close(m.writerDone)
		return
	}
	data, ok, err := m.store.Get(context.Background(), SnapshotKey)
	if err != nil {
		m.loadErr = fmt.Errorf("failed to load snapshot: %w", err)
		close(m.writerDone)
		return
	}
	if ok {
		var snap snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			m.loadErr = fmt.Errorf("invalid snapshot: %w", err)
			close(m.writerDone)
			return
		}
		if api.IsNull(snap.Doc) {
			m.loadErr = fmt.Errorf("invalid snapshot: no document")
			close(m.writerDone)
			return
		}
		m.mu.Lock()
		m.doc = snap.Doc
		m.version = snap.Version
		m.base = snap.Version
		m.baseDoc = snap.Doc
		m.persisted = snap.Version
		m.mu.Unlock()
		m.log.Debug("loaded snapshot", "version", snap.Version)
	}
	go m.persist()
}

// Ready is closed once the model has finished loading.
func (m *Model) Ready() <-chan struct{} {
	return m.ready
}

// Err returns the load error. It is only meaningful after Ready is closed.
func (m *Model) Err() error {
	return m.loadErr
}

// WaitReady blocks until the model is ready or ctx is done.
func (m *Model) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return m.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the document name.
func (m *Model) Name() string {
	return m.name
}

// Store returns the document's store.
func (m *Model) Store() kv.Store {
	return m.store
}

// Version returns the current version.
func (m *Model) Version() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Document returns a copy of the current document.
func (m *Model) Document() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(json.RawMessage(nil), m.doc...)
}

// StreamCount returns the number of attached streams.
func (m *Model) StreamCount() int {
	return m.hub.Len()
}

// CreateStream attaches a new stream whose first value is the patch taking
// the document at version from to the current version.
func (m *Model) CreateStream(from int64) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	patch, err := m.catchUp(from)
	if err != nil {
		return nil, fmt.Errorf("failed to compute catch-up from version %d: %w", from, err)
	}
	s := newStream(m, m.streamBuffer)
	s.out <- api.NewUpdateMessage(patch, m.version)
	// registered under mu, so no update can slip between catch-up and
	// the first live update
	m.hub.Add(s)
	return s, nil
}

// catchUp must be called with mu held.
func (m *Model) catchUp(from int64) (json.RawMessage, error) {
	if from == m.version {
		return api.EmptyPatch, nil
	}
	before := json.RawMessage("{}")
	if from >= m.base && from < m.version {
		before = m.baseDoc
		for _, p := range m.history[:from-m.base] {
			next, err := m.patcher.Patch(before, p)
			if err != nil {
				return nil, fmt.Errorf("failed to replay history: %w", err)
			}
			before = next
		}
	}
	return m.differ.Diff(before, m.doc)
}

// Apply applies patch and broadcasts it to every stream. Patches are
// applied in call order and each one advances the version by one.
func (m *Model) Apply(patch json.RawMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	next, err := m.patcher.Patch(m.doc, patch)
	if err != nil {
		m.log.Debug("patch failed", "version", m.version, "error", err)
		return 0, &PatchError{Patch: patch, Err: err}
	}
	compact := patch
	var buf bytes.Buffer
	if err := json.Compact(&buf, patch); err == nil {
		compact = buf.Bytes()
	}

	m.doc = next
	m.version++
	m.history = append(m.history, compact)
	m.trimHistory()

	m.hub.Broadcast(api.NewUpdateMessage(compact, m.version))

	select {
	case m.dirty <- struct{}{}:
	default:
	}
	return m.version, nil
}

// trimHistory must be called with mu held.
func (m *Model) trimHistory() {
	for len(m.history) > m.historyLimit {
		next, err := m.patcher.Patch(m.baseDoc, m.history[0])
		if err != nil {
			// keep the longer history rather than a wrong base
			m.log.Error("failed to fold history", "base", m.base, "error", err)
			return
		}
		m.baseDoc = next
		m.base++
		m.history = m.history[1:]
	}
}

// persist writes snapshots behind applied patches until Close.
func (m *Model) persist() {
	defer close(m.writerDone)
	for {
		select {
		case <-m.dirty:
			m.writeSnapshot()
		case <-m.done:
			m.writeSnapshot()
			return
		}
	}
}

func (m *Model) writeSnapshot() {
	m.mu.Lock()
	snap := snapshot{Version: m.version, Doc: m.doc}
	m.mu.Unlock()

	if snap.Version == m.persisted {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		m.log.Error("failed to encode snapshot", "version", snap.Version, "error", err)
		return
	}
	if err := m.store.Set(context.Background(), SnapshotKey, data); err != nil {
		m.log.Error("failed to store snapshot", "version", snap.Version, "error", err)
		return
	}
	m.persisted = snap.Version
}

// Close fails every stream, flushes the latest snapshot and stops the
// model. Apply and CreateStream return ErrClosed afterwards.
func (m *Model) Close() error {
	m.closeOnce.Do(func() {
		<-m.ready
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.hub.FailAll()
		close(m.done)
		<-m.writerDone
	})
	return nil
}
