// Package hooks holds the pre- and post-processing callbacks that the
// manager runs around a forward pass, plus the built-in set that catalog
// entries can name in their preprocess/postprocess columns.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"tensord/internal/catalog"
	"tensord/internal/engine"
)

// Args are the free-form string arguments passed through from the caller.
type Args []string

// Preprocess transforms or validates inputs before Forward.
type Preprocess func(inputs []*engine.Tensor, args Args) ([]*engine.Tensor, error)

// PostprocessNumeric reduces a model output to one number.
type PostprocessNumeric func(out *engine.Tensor, args Args) (float64, error)

// PostprocessText reduces a model output to a string.
type PostprocessText func(out *engine.Tensor, args Args) (string, error)

// Identity passes inputs through unchanged.
func Identity(inputs []*engine.Tensor, _ Args) ([]*engine.Tensor, error) {
	return inputs, nil
}

// Flatten reshapes every input to rank 1.
func Flatten(inputs []*engine.Tensor, _ Args) ([]*engine.Tensor, error) {
	out := make([]*engine.Tensor, len(inputs))
	for i, in := range inputs {
		t, err := in.Reshape([]int64{int64(in.NumElements())})
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// Batch prepends a batch dimension of 1.
func Batch(inputs []*engine.Tensor, _ Args) ([]*engine.Tensor, error) {
	out := make([]*engine.Tensor, len(inputs))
	for i, in := range inputs {
		t, err := in.Reshape(append([]int64{1}, in.Shape()...))
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// Scale multiplies every element by args[0]. Inputs are copied.
func Scale(inputs []*engine.Tensor, args Args) ([]*engine.Tensor, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("scale: missing factor argument")
	}
	f, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		return nil, fmt.Errorf("scale: invalid factor %q", args[0])
	}
	out := make([]*engine.Tensor, len(inputs))
	for i, in := range inputs {
		vals, err := in.Float32Values()
		if err != nil {
			return nil, fmt.Errorf("scale: input %d: %w", i, err)
		}
		for j := range vals {
			vals[j] *= float32(f)
		}
		t, err := engine.NewFloat32(vals, in.Shape())
		if err != nil {
			return nil, err
		}
		out[i] = t.To(in.Device())
	}
	return out, nil
}

func values(out *engine.Tensor) ([]float32, error) {
	vals, err := out.Float32Values()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty output")
	}
	return vals, nil
}

// Argmax returns the index of the largest output element.
func Argmax(out *engine.Tensor, _ Args) (float64, error) {
	i, err := out.Argmax()
	return float64(i), err
}

// Max returns the largest output element.
func Max(out *engine.Tensor, _ Args) (float64, error) {
	vals, err := values(out)
	if err != nil {
		return 0, err
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return float64(m), nil
}

// Sum adds every output element.
func Sum(out *engine.Tensor, _ Args) (float64, error) {
	vals, err := values(out)
	if err != nil {
		return 0, err
	}
	var s float64
	for _, v := range vals {
		s += float64(v)
	}
	return s, nil
}

// Mean averages the output elements.
func Mean(out *engine.Tensor, args Args) (float64, error) {
	s, err := Sum(out, args)
	if err != nil {
		return 0, err
	}
	return s / float64(out.NumElements()), nil
}

// First returns the first output element.
func First(out *engine.Tensor, _ Args) (float64, error) {
	vals, err := values(out)
	if err != nil {
		return 0, err
	}
	return float64(vals[0]), nil
}

// Label maps the argmax index onto args, which lists class labels.
func Label(out *engine.Tensor, args Args) (string, error) {
	i, err := out.Argmax()
	if err != nil {
		return "", err
	}
	if i >= len(args) {
		return "", fmt.Errorf("label: class %d has no label (%d given)", i, len(args))
	}
	return args[i], nil
}

// JSON renders the output values as a JSON array. Non-finite values become null.
func JSON(out *engine.Tensor, _ Args) (string, error) {
	vals, err := out.Float32Values()
	if err != nil {
		return "", err
	}
	arr := make([]*float64, len(vals))
	for i, v := range vals {
		if f := float64(v); !math.IsInf(f, 0) && !math.IsNaN(f) {
			arr[i] = &f
		}
	}
	b, err := json.Marshal(arr)
	return string(b), err
}

var (
	preprocessors = map[string]Preprocess{
		"identity": Identity,
		"flatten":  Flatten,
		"batch":    Batch,
		"scale":    Scale,
	}
	numeric = map[string]PostprocessNumeric{
		"argmax": Argmax,
		"max":    Max,
		"sum":    Sum,
		"mean":   Mean,
		"first":  First,
	}
	text = map[string]PostprocessText{
		"label": Label,
		"json":  JSON,
	}
)

// LookupPreprocess returns a built-in preprocess hook by name.
func LookupPreprocess(name string) (Preprocess, bool) {
	fn, ok := preprocessors[name]
	return fn, ok
}

// LookupNumeric returns a built-in numeric output hook by name.
func LookupNumeric(name string) (PostprocessNumeric, bool) {
	fn, ok := numeric[name]
	return fn, ok
}

// LookupText returns a built-in text output hook by name.
func LookupText(name string) (PostprocessText, bool) {
	fn, ok := text[name]
	return fn, ok
}

// Names lists the built-in hooks per kind, sorted.
func Names() (pre, num, txt []string) {
	for k := range preprocessors {
		pre = append(pre, k)
	}
	for k := range numeric {
		num = append(num, k)
	}
	for k := range text {
		txt = append(txt, k)
	}
	sort.Strings(pre)
	sort.Strings(num)
	sort.Strings(txt)
	return pre, num, txt
}

// Registrar is the registration surface the manager exposes.
type Registrar interface {
	RegisterPreprocess(ctx context.Context, modelName string, fn Preprocess) error
	RegisterPostprocessNumeric(ctx context.Context, modelName string, fn PostprocessNumeric) error
	RegisterPostprocessText(ctx context.Context, modelName string, fn PostprocessText) error
}

// DefaultRegistration returns a routine that registers, for every catalog
// model, the built-in hooks named in its preprocess and postprocess
// columns. Unknown hook names and per-model failures are collected and
// returned together; registration continues past them.
func DefaultRegistration(store catalog.Store) func(ctx context.Context, r Registrar) error {
	return func(ctx context.Context, r Registrar) error {
		models, err := store.ListModels(ctx)
		if err != nil {
			return err
		}
		var errs []error
		for _, m := range models {
			if m.Preprocess != "" {
				if fn, ok := LookupPreprocess(m.Preprocess); ok {
					if err := r.RegisterPreprocess(ctx, m.Name, fn); err != nil {
						errs = append(errs, err)
					}
				} else {
					errs = append(errs, fmt.Errorf("model %q: unknown preprocess hook %q", m.Name, m.Preprocess))
				}
			}
			if m.Postprocess == "" {
				continue
			}
			if fn, ok := LookupNumeric(m.Postprocess); ok {
				if err := r.RegisterPostprocessNumeric(ctx, m.Name, fn); err != nil {
					errs = append(errs, err)
				}
			} else if fn, ok := LookupText(m.Postprocess); ok {
				if err := r.RegisterPostprocessText(ctx, m.Name, fn); err != nil {
					errs = append(errs, err)
				}
			} else {
				errs = append(errs, fmt.Errorf("model %q: unknown postprocess hook %q", m.Name, m.Postprocess))
			}
		}
		return errors.Join(errs...)
	}
}
