package manager

import (
	"context"
	"fmt"
	"time"

	"tensord/internal/engine"
	"tensord/internal/hooks"
)

// defaultHooksTimeout bounds the one-time default registration.
const defaultHooksTimeout = 10 * time.Second

// RegisterPreprocess binds fn to the artifact modelName resolves to.
func (m *Manager) RegisterPreprocess(ctx context.Context, modelName string, fn hooks.Preprocess) error {
	path, _, err := m.ResolvePath(ctx, modelName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pre[path] = fn
	m.mu.Unlock()
	return nil
}

// RegisterPostprocessNumeric binds a numeric output hook.
func (m *Manager) RegisterPostprocessNumeric(ctx context.Context, modelName string, fn hooks.PostprocessNumeric) error {
	path, _, err := m.ResolvePath(ctx, modelName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.numeric[path] = fn
	m.mu.Unlock()
	return nil
}

// RegisterPostprocessText binds a text output hook.
func (m *Manager) RegisterPostprocessText(ctx context.Context, modelName string, fn hooks.PostprocessText) error {
	path, _, err := m.ResolvePath(ctx, modelName)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.text[path] = fn
	m.mu.Unlock()
	return nil
}

// ensureDefaultHooks runs the default registration exactly once. Failures
// are logged; hooks registered before the failure stay.
func (m *Manager) ensureDefaultHooks() {
	m.hooksOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultHooksTimeout)
		defer cancel()
		if err := m.defaultHooks(ctx, m); err != nil {
			m.log.Warn().Str("event", "default_hooks_error").Err(err).Msg("manager")
		}
	})
}

func (m *Manager) preprocessHook(path string) (hooks.Preprocess, bool) {
	m.ensureDefaultHooks()
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.pre[path]
	return fn, ok
}

// Preprocess runs the hook registered for path and moves its outputs to the
// model's device. It reports false when no hook is registered or the hook
// rejects the inputs.
func (m *Manager) Preprocess(path string, inputs []*engine.Tensor, args hooks.Args) ([]*engine.Tensor, bool, error) {
	fn, ok := m.preprocessHook(path)
	if !ok {
		return nil, false, nil
	}
	out, err := callHook(func() ([]*engine.Tensor, error) { return fn(inputs, args) })
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	lm := m.cached(path)
	if lm == nil {
		return nil, false, runtimeError{msg: fmt.Sprintf("model:%s handle not exist!", path)}
	}
	return toDevice(out, lm.currentDevice()), true, nil
}

// PostprocessNumeric reduces out with the numeric hook registered for path.
func (m *Manager) PostprocessNumeric(path string, out *engine.Tensor, args hooks.Args) (float64, bool, error) {
	m.ensureDefaultHooks()
	m.mu.RLock()
	fn, ok := m.numeric[path]
	m.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	v, err := callHook(func() (float64, error) { return fn(out, args) })
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// PostprocessText reduces out with the text hook registered for path.
func (m *Manager) PostprocessText(path string, out *engine.Tensor, args hooks.Args) (string, bool, error) {
	m.ensureDefaultHooks()
	m.mu.RLock()
	fn, ok := m.text[path]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	s, err := callHook(func() (string, error) { return fn(out, args) })
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// callHook converts a panicking hook into an error.
func callHook[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, fmt.Errorf("hook panic: %v", r)
		}
	}()
	return fn()
}

func toDevice(ts []*engine.Tensor, d engine.Device) []*engine.Tensor {
	out := make([]*engine.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.To(d)
	}
	return out
}
