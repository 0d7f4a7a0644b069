package manager

import (
	"context"
	"fmt"
	"time"

	"tensord/internal/bridge"
	"tensord/internal/engine"
	"tensord/internal/hooks"
	"tensord/pkg/tensorvec"
)

// Infer centralizes inference behavior: it loads modelName if needed,
// bridges the vectors to tensors, preprocesses them, runs the forward
// pass and reduces the output with the model's numeric or text hook. With
// neither hook the raw output is returned as a vector.
func (m *Manager) Infer(ctx context.Context, modelName string, vectors []tensorvec.Vector, args hooks.Args) (Result, error) {
	if len(vectors) == 0 {
		return Result{}, tensorvec.ShapeMismatchError{Msg: "predict needs at least one input"}
	}
	path, err := m.LoadModel(ctx, modelName)
	if err != nil {
		return Result{}, err
	}
	res, err := m.infer(ctx, path, vectors, args)
	if err != nil {
		m.log.Debug().Str("event", "infer_error").Str("model", modelName).Err(err).Msg("manager")
		m.publish(Event{Name: EventInferError, Model: modelName, Fields: map[string]any{"error": err.Error()}})
	}
	return res, err
}

func (m *Manager) infer(ctx context.Context, path string, vectors []tensorvec.Vector, args hooks.Args) (Result, error) {
	inputs, err := bridge.ToNativeBatch(vectors)
	if err != nil {
		return Result{}, err
	}
	if _, has := m.preprocessHook(path); has {
		out, ok, err := m.Preprocess(path, inputs, args)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, runtimeError{msg: fmt.Sprintf("preprocess rejected input for model %s", path)}
		}
		inputs = out
	} else {
		dev, ok := m.Device(path)
		if !ok {
			return Result{}, runtimeError{msg: fmt.Sprintf("model:%s handle not exist!", path)}
		}
		inputs = toDevice(inputs, dev)
	}

	start := time.Now()
	var (
		out *engine.Tensor
		ok  bool
	)
	if len(inputs) == 1 {
		out, ok, err = m.Predict(ctx, path, inputs[0])
	} else {
		out, ok, err = m.PredictMulti(ctx, path, inputs)
	}
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, runtimeError{msg: fmt.Sprintf("model:%s handle not exist!", path)}
	}
	label := path
	if lm := m.cached(path); lm != nil {
		label = lm.label()
	}
	m.publish(Event{Name: EventInferDone, Model: label, Fields: map[string]any{
		"dur_ms": int(time.Since(start).Milliseconds()),
		"dur_s":  time.Since(start).Seconds(),
	}})

	if v, ok, err := m.PostprocessNumeric(path, out, args); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Kind: ResultNumeric, Numeric: v}, nil
	}
	if s, ok, err := m.PostprocessText(path, out, args); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Kind: ResultText, Text: s}, nil
	}
	vec, err := bridge.FromNative(out.To(engine.CPU))
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultVector, Vector: vec}, nil
}
