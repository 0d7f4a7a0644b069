package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store and Writer, handy for tests and
// one-shot CLI runs.
type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]ModelRecord
	bases  map[string]string
	layers map[string][]LayerParameter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]ModelRecord),
		bases:  make(map[string]string),
		layers: make(map[string][]LayerParameter),
	}
}

func (m *MemoryStore) ModelPath(_ context.Context, modelName string) (ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.models[modelName]
	if !ok {
		return ModelRecord{}, wrapError("model_path", fmt.Errorf("model %q: %w", modelName, ErrNotFound))
	}
	return rec, nil
}

func (m *MemoryStore) BaseModelPath(_ context.Context, baseName string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.bases[baseName]
	if !ok {
		return "", wrapError("base_model_path", fmt.Errorf("base model %q: %w", baseName, ErrNotFound))
	}
	return p, nil
}

func (m *MemoryStore) LayerParameters(_ context.Context, modelName string) ([]LayerParameter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.layers[modelName]
	if !ok || len(ls) == 0 {
		return nil, wrapError("layer_parameters", fmt.Errorf("layers of %q: %w", modelName, ErrNotFound))
	}
	return append([]LayerParameter(nil), ls...), nil
}

func (m *MemoryStore) ListModels(_ context.Context) ([]ModelRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ModelRecord, 0, len(m.models))
	for _, r := range m.models {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) PutModel(_ context.Context, rec ModelRecord) error {
	if rec.Name == "" || rec.Path == "" {
		return wrapError("put_model", fmt.Errorf("model name and path are required"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[rec.Name] = rec
	return nil
}

func (m *MemoryStore) PutBaseModel(_ context.Context, name, path string) error {
	if name == "" || path == "" {
		return wrapError("put_base_model", fmt.Errorf("base model name and path are required"))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases[name] = path
	return nil
}

func (m *MemoryStore) PutLayerParameters(_ context.Context, modelName string, params []LayerParameter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[modelName] = append([]LayerParameter(nil), params...)
	return nil
}

func (m *MemoryStore) DeleteModel(_ context.Context, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.models[modelName]; !ok {
		return wrapError("delete_model", fmt.Errorf("model %q: %w", modelName, ErrNotFound))
	}
	delete(m.models, modelName)
	delete(m.layers, modelName)
	return nil
}
