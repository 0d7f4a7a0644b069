package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tensord/internal/catalog"
	"tensord/internal/engine"
	"tensord/internal/hooks"
	"tensord/pkg/types"
)

type Manager struct {
	mu      sync.RWMutex
	models  map[string]*loadedModel
	pre     map[string]hooks.Preprocess
	numeric map[string]hooks.PostprocessNumeric
	text    map[string]hooks.PostprocessText
	closed  bool
	lastErr string

	catalog         catalog.Store
	runtime         engine.Runtime
	modelRoot       string
	verifyChecksums bool
	layerPolicy     LayerPolicy
	log             zerolog.Logger
	publisher       EventPublisher

	defaultHooks func(ctx context.Context, r hooks.Registrar) error
	hooksOnce    sync.Once

	loads singleflight.Group

	startTime       time.Time
	loadsTotal      atomic.Uint64
	inferencesTotal atomic.Uint64
}

// New builds a Manager over a catalog and runtime with default settings.
func New(store catalog.Store, rt engine.Runtime) *Manager {
	// Delegate to NewWithConfig to centralize defaults
	return NewWithConfig(ManagerConfig{Catalog: store, Runtime: rt})
}

// SetEventPublisher replaces the event publisher. Passing nil restores the no-op.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	p.Publish(e)
}

func (m *Manager) recordErr(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

// cached returns the cache entry for path, or nil.
func (m *Manager) cached(path string) *loadedModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.models[path]
}

// IsLoaded reports whether path is in the cache.
func (m *Manager) IsLoaded(path string) bool { return m.cached(path) != nil }

// Ready reports whether the manager accepts work.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// GPUAvailable reports whether the runtime can place models on a GPU.
func (m *Manager) GPUAvailable() bool { return m.runtime.GPUAvailable() }

// ListModels returns the catalog models annotated with their cache state.
// Entries whose path cannot be resolved are listed with the raw catalog path.
func (m *Manager) ListModels(ctx context.Context) ([]types.Model, error) {
	recs, err := m.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Model, 0, len(recs))
	for _, rec := range recs {
		mdl := types.Model{
			Name:        rec.Name,
			Path:        rec.Path,
			BaseModel:   rec.BaseModel,
			Preprocess:  rec.Preprocess,
			Postprocess: rec.Postprocess,
			Description: rec.Description,
		}
		if p, err := m.resolveRecord(ctx, rec); err == nil {
			mdl.Path = p
			if lm := m.cached(p); lm != nil {
				mdl.Loaded = true
				mdl.Device = lm.currentDevice().String()
			}
		}
		out = append(out, mdl)
	}
	return out, nil
}

// Close releases every loaded module. The Manager rejects loads afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	models := m.models
	m.models = make(map[string]*loadedModel)
	m.mu.Unlock()

	var errs []error
	for _, lm := range models {
		lm.mu.Lock()
		if err := lm.module.Close(); err != nil {
			errs = append(errs, err)
		}
		lm.mu.Unlock()
	}
	return errors.Join(errs...)
}
