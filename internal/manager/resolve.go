package manager

import (
	"context"
	"fmt"

	"tensord/internal/catalog"
	"tensord/internal/common/fsutil"
)

// ResolvePath maps a model name to its artifact path. A model derived from
// a base model uses the base model's artifact; the base model name is
// returned alongside.
func (m *Manager) ResolvePath(ctx context.Context, modelName string) (path, baseModel string, err error) {
	rec, err := m.catalog.ModelPath(ctx, modelName)
	if catalog.IsNotFound(err) {
		return "", "", ErrModelNotFound(fmt.Sprintf("model %q not exists", modelName))
	}
	if err != nil {
		return "", "", err
	}
	path, err = m.resolveRecord(ctx, rec)
	if err != nil {
		return "", "", err
	}
	return path, rec.BaseModel, nil
}

func (m *Manager) resolveRecord(ctx context.Context, rec catalog.ModelRecord) (string, error) {
	path := rec.Path
	if rec.BaseModel != "" {
		p, err := m.catalog.BaseModelPath(ctx, rec.BaseModel)
		if catalog.IsNotFound(err) {
			return "", ErrModelNotFound(fmt.Sprintf("base model %q not exists", rec.BaseModel))
		}
		if err != nil {
			return "", err
		}
		path = p
	}
	return fsutil.ExpandModelPath(path, m.modelRoot)
}

// LoadModel resolves modelName and loads its artifact, injecting the
// model's layer parameters on first load. It returns the cache key.
func (m *Manager) LoadModel(ctx context.Context, modelName string) (string, error) {
	path, base, err := m.ResolvePath(ctx, modelName)
	if err != nil {
		return "", err
	}
	return path, m.Load(ctx, path, modelName, base)
}
