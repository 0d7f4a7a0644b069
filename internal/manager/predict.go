package manager

import (
	"context"
	"fmt"

	"tensord/internal/engine"
)

// Predict runs a single-input forward pass on the model cached at path.
// An uncached path reports false without an error.
func (m *Manager) Predict(ctx context.Context, path string, input *engine.Tensor) (*engine.Tensor, bool, error) {
	return m.forward(ctx, path, []*engine.Tensor{input}, "predict error, error message:%s")
}

// PredictMulti runs a forward pass over several inputs.
func (m *Manager) PredictMulti(ctx context.Context, path string, inputs []*engine.Tensor) (*engine.Tensor, bool, error) {
	return m.forward(ctx, path, inputs, "muti predict error, error message:%s")
}

func (m *Manager) forward(_ context.Context, path string, inputs []*engine.Tensor, errFormat string) (*engine.Tensor, bool, error) {
	lm := m.cached(path)
	if lm == nil {
		return nil, false, nil
	}
	lm.mu.RLock()
	out, err := safeForward(lm.module, inputs)
	lm.mu.RUnlock()
	if err != nil {
		return nil, false, runtimeError{msg: fmt.Sprintf(errFormat, err), cause: err}
	}
	lm.inferences.Add(1)
	m.inferencesTotal.Add(1)
	return out, true, nil
}

// safeForward converts runtime panics into errors.
func safeForward(mod engine.Module, inputs []*engine.Tensor) (out *engine.Tensor, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return mod.Forward(inputs)
}
