// Package bridge converts between tensorvec.Vector values and native
// engine tensors.
package bridge

import (
	"fmt"

	"tensord/internal/engine"
	"tensord/pkg/tensorvec"
)

// UnsupportedDTypeError is returned by FromNative for element types that
// cannot be narrowed to float32 without ambiguity.
type UnsupportedDTypeError struct {
	DType engine.DataType
}

func (e UnsupportedDTypeError) Error() string {
	return fmt.Sprintf("unsupported tensor type %s", e.DType)
}

// ToNative copies v into a float32 tensor. A scalar-marked vector becomes a
// rank-0 tensor.
func ToNative(v tensorvec.Vector) (*engine.Tensor, error) {
	data, err := tensorvec.ToFloat32Array(v)
	if err != nil {
		return nil, err
	}
	if v.IsScalar() {
		return engine.Scalar(data[0]), nil
	}
	shape := v.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return engine.NewFloat32(data, dims)
}

// ToNativeBatch converts each vector with ToNative.
func ToNativeBatch(vs []tensorvec.Vector) ([]*engine.Tensor, error) {
	out := make([]*engine.Tensor, 0, len(vs))
	for i, v := range vs {
		t, err := ToNative(v)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// FromNative flattens t row-major into a vector carrying t's shape. Rank-0
// tensors yield the scalar marker shape {0}. Only float32 and int64 tensors
// are accepted.
func FromNative(t *engine.Tensor) (tensorvec.Vector, error) {
	var data []float32
	switch t.DType() {
	case engine.Float32, engine.Int64:
		vals, err := t.Float32Values()
		if err != nil {
			return tensorvec.Vector{}, err
		}
		data = vals
	default:
		return tensorvec.Vector{}, UnsupportedDTypeError{DType: t.DType()}
	}
	if t.Rank() == 0 {
		return tensorvec.NewScalar(data[0]), nil
	}
	dims := t.Shape()
	shape := make([]int32, len(dims))
	for i, d := range dims {
		shape[i] = int32(d)
	}
	return tensorvec.New(data, shape)
}
