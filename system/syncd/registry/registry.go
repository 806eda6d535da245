// Package registry maps document names to their live models.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/signadot/docsync/system/syncd/model"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by GetOrCreate after Close.
var ErrClosed = errors.New("registry closed")

// Builder constructs the model for a name. The returned model need not be
// ready; the registry waits for readiness before caching it.
type Builder func(ctx context.Context, name string) (*model.Model, error)

// Registry holds at most one model per document name. Models are created
// on first use and kept until Close.
type Registry struct {
	log *slog.Logger

	mu     sync.RWMutex
	models map[string]*model.Model
	closed bool

	flight singleflight.Group
}

// New creates an empty registry.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:    log.With("component", "registry"),
		models: make(map[string]*model.Model),
	}
}

// Lookup returns the cached model for name.
func (r *Registry) Lookup(name string) (*model.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Len returns the number of cached models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// GetOrCreate returns the model for name, calling build on a miss.
//
// Concurrent misses for the same name share one call to build. The build
// runs detached from ctx so a caller giving up does not fail the others;
// such a caller gets ctx.Err(). A failed build is not cached.
func (r *Registry) GetOrCreate(ctx context.Context, name string, build Builder) (*model.Model, error) {
	if m, ok := r.Lookup(name); ok {
		return m, nil
	}
	buildCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(name, func() (any, error) {
		return r.create(buildCtx, name, build)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Model), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) create(ctx context.Context, name string, build Builder) (*model.Model, error) {
	// a flight for name may have finished between Lookup and DoChan
	r.mu.RLock()
	m, ok := r.models[name]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return m, nil
	}

	m, err := build(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := m.WaitReady(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("model %q failed to load: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		m.Close()
		return nil, ErrClosed
	}
	r.models[name] = m
	r.log.Debug("model created", "doc", name, "version", m.Version())
	return m, nil
}

// Close closes every cached model and rejects further creation.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	models := r.models
	r.models = make(map[string]*model.Model)
	r.mu.Unlock()

	var errs []error
	for name, m := range models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close model %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
