package manager

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"tensord/internal/bridge"
	"tensord/internal/catalog"
	"tensord/internal/engine"
	"tensord/pkg/tensorvec"
)

// Load makes path resident. A cached path is a no-op; concurrent first
// loads of one path share a single native load.
//
// When modelName is set, the model's layer parameters are copied into the
// freshly loaded module. Parameter failures are reported but the module
// stays cached with whatever values it had. A failed catalog read caches
// nothing, so the next Load retries. baseModelName is informational.
//
// The shared load is detached from ctx: a caller whose ctx ends returns
// ctx.Err() while the load completes for everyone else.
func (m *Manager) Load(ctx context.Context, path, modelName, baseModelName string) error {
	if m.cached(path) != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	flight := context.WithoutCancel(ctx)
	ch := m.loads.DoChan(path, func() (any, error) {
		// re-check: another flight may have finished between the fast path and Do
		if m.cached(path) != nil {
			return nil, nil
		}
		return nil, m.loadUncached(flight, path, modelName, baseModelName)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loadUncached(ctx context.Context, path, modelName, baseModelName string) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	start := time.Now()
	opID := uuid.NewString()
	label := modelName
	if label == "" {
		label = path
	}
	m.log.Info().Str("event", "load_start").Str("model", label).Str("path", path).
		Str("base_model", baseModelName).Str("op_id", opID).Msg("manager")
	m.publish(Event{Name: EventLoadStart, Model: label, Fields: map[string]any{"path": path, "op_id": opID}})

	fail := func(err error) error {
		m.recordErr(err)
		m.log.Error().Str("event", "load_error").Str("model", label).Str("op_id", opID).Err(err).Msg("manager")
		m.publish(Event{Name: EventLoadError, Model: label, Fields: map[string]any{"error": err.Error(), "op_id": opID}})
		return err
	}

	if m.verifyChecksums && modelName != "" {
		if err := m.verifyChecksum(ctx, path, modelName); err != nil {
			return fail(err)
		}
	}

	mod, err := m.nativeLoad(path)
	if err != nil {
		return fail(runtimeError{msg: fmt.Sprintf("load model failed, error message: %s", err), cause: err})
	}
	if err := mod.To(engine.CPU); err != nil {
		_ = mod.Close()
		return fail(runtimeError{msg: fmt.Sprintf("load model failed, error message: %s", err), cause: err})
	}
	mod.Eval()

	// Read layers before caching: a transient catalog failure must not leave
	// a module with base weights behind.
	var layers []catalog.LayerParameter
	var layersErr error
	if modelName != "" {
		layers, layersErr = m.catalog.LayerParameters(ctx, modelName)
		if layersErr != nil && !catalog.IsNotFound(layersErr) {
			_ = mod.Close()
			return fail(layersErr)
		}
	}

	lm := &loadedModel{
		path:     path,
		name:     modelName,
		module:   mod,
		device:   engine.CPU,
		loadedAt: time.Now(),
		opID:     opID,
	}
	// Hold the entry's write lock across injection so no forward pass sees
	// half-copied parameters.
	lm.mu.Lock()
	defer lm.mu.Unlock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = mod.Close()
		return ErrClosed
	}
	m.models[path] = lm
	m.mu.Unlock()
	m.loadsTotal.Add(1)

	if modelName != "" {
		err := layersErr
		if err != nil {
			err = ErrModelNotFound(fmt.Sprintf("model %q does not exist in model_layer_info", modelName))
		} else {
			err = m.injectParameters(lm, modelName, layers)
		}
		if err != nil {
			m.recordErr(err)
			m.log.Error().Str("event", "inject_error").Str("model", label).Str("op_id", opID).Err(err).Msg("manager")
			m.publish(Event{Name: EventInjectError, Model: label, Fields: map[string]any{"error": err.Error(), "op_id": opID}})
			return err
		}
	}
	dur := time.Since(start)
	m.log.Info().Str("event", "load_done").Str("model", label).Str("op_id", opID).
		Int64("dur_ms", dur.Milliseconds()).Msg("manager")
	m.publish(Event{Name: EventLoadDone, Model: label, Fields: map[string]any{"dur_ms": int(dur.Milliseconds()), "op_id": opID}})
	return nil
}

// nativeLoad converts runtime panics into errors.
func (m *Manager) nativeLoad(path string) (mod engine.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			mod, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return m.runtime.Load(path)
}

// injectParameters copies catalog layer values into lm's parameters in
// place. Caller holds lm.mu for writing.
func (m *Manager) injectParameters(lm *loadedModel, modelName string, layers []catalog.LayerParameter) error {
	params := lm.module.NamedParameters()
	if len(layers) != len(params) {
		return integrityError{msg: fmt.Sprintf("model %q layer num not equal to base model", modelName)}
	}
	for _, layer := range layers {
		matched := false
		for _, p := range params {
			if p.Name != layer.Name {
				continue
			}
			src, err := bridge.ToNative(layer.Value)
			if err != nil {
				return fmt.Errorf("layer %q: %w", layer.Name, err)
			}
			if err := p.Tensor.CopyFrom(src); err != nil {
				return tensorvec.ShapeMismatchError{Msg: fmt.Sprintf("layer %q: %v", layer.Name, err)}
			}
			matched = true
			break
		}
		if matched {
			continue
		}
		if m.layerPolicy == LayerPolicyError {
			return integrityError{msg: fmt.Sprintf("model %q layer %q not found in model parameters", modelName, layer.Name)}
		}
		m.log.Warn().Str("event", "layer_unmatched").Str("model", modelName).Str("layer", layer.Name).Msg("manager")
	}
	return nil
}

func (m *Manager) verifyChecksum(ctx context.Context, path, modelName string) error {
	rec, err := m.catalog.ModelPath(ctx, modelName)
	if catalog.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.MD5 == "" {
		return nil
	}
	sum, err := fileMD5(path)
	if err != nil {
		return runtimeError{msg: fmt.Sprintf("load model failed, error message: %s", err), cause: err}
	}
	if !strings.EqualFold(sum, rec.MD5) {
		return integrityError{msg: fmt.Sprintf("model %q checksum mismatch: catalog %s, file %s", modelName, rec.MD5, sum)}
	}
	return nil
}

// fileMD5 returns the hex md5 of a file.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
