package engine

import (
	"fmt"
	"strings"
)

// DataType is the element type of a Tensor.
type DataType int

const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Device is where a tensor or module lives.
type Device int

const (
	CPU Device = iota
	GPU
)

func (d Device) String() string {
	switch d {
	case CPU:
		return "cpu"
	case GPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// ParseDevice accepts "cpu", "gpu" and "cuda" (any case).
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return CPU, nil
	case "gpu", "cuda":
		return GPU, nil
	default:
		return CPU, fmt.Errorf("unknown device %q", s)
	}
}

// Tensor is a dense row-major tensor. A rank-0 tensor (empty shape) holds
// exactly one element.
type Tensor struct {
	shape  []int64
	dtype  DataType
	device Device
	data   any
}

func numElements(shape []int64) (int64, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	return n, nil
}

func newTensor[T any](dt DataType, data []T, shape []int64) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != n {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{shape: append([]int64{}, shape...), dtype: dt, data: data}, nil
}

// NewFloat32 wraps data (without copying) as a float32 tensor.
func NewFloat32(data []float32, shape []int64) (*Tensor, error) {
	return newTensor(Float32, data, shape)
}

// NewFloat64 wraps data as a float64 tensor.
func NewFloat64(data []float64, shape []int64) (*Tensor, error) {
	return newTensor(Float64, data, shape)
}

// NewInt32 wraps data as an int32 tensor.
func NewInt32(data []int32, shape []int64) (*Tensor, error) {
	return newTensor(Int32, data, shape)
}

// NewInt64 wraps data as an int64 tensor.
func NewInt64(data []int64, shape []int64) (*Tensor, error) {
	return newTensor(Int64, data, shape)
}

// NewUint8 wraps data as a uint8 tensor.
func NewUint8(data []uint8, shape []int64) (*Tensor, error) {
	return newTensor(Uint8, data, shape)
}

// NewBool wraps data as a bool tensor.
func NewBool(data []bool, shape []int64) (*Tensor, error) {
	return newTensor(Bool, data, shape)
}

// Scalar returns a rank-0 float32 tensor.
func Scalar(f float32) *Tensor {
	return &Tensor{shape: []int64{}, dtype: Float32, data: []float32{f}}
}

// ScalarInt64 returns a rank-0 int64 tensor.
func ScalarInt64(n int64) *Tensor {
	return &Tensor{shape: []int64{}, dtype: Int64, data: []int64{n}}
}

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int64 { return append([]int64{}, t.shape...) }

// Rank is the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// NumElements is the product of the dimensions (1 for rank 0).
func (t *Tensor) NumElements() int {
	n, _ := numElements(t.shape)
	return int(n)
}

func (t *Tensor) DType() DataType { return t.dtype }

func (t *Tensor) Device() Device { return t.device }

// AsFloat32 exposes the backing storage. Panics if the dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.dtype))
	}
	return t.data.([]float32)
}

// AsFloat64 exposes the backing storage. Panics if the dtype is not Float64.
func (t *Tensor) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", t.dtype))
	}
	return t.data.([]float64)
}

// AsInt32 exposes the backing storage. Panics if the dtype is not Int32.
func (t *Tensor) AsInt32() []int32 {
	if t.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", t.dtype))
	}
	return t.data.([]int32)
}

// AsInt64 exposes the backing storage. Panics if the dtype is not Int64.
func (t *Tensor) AsInt64() []int64 {
	if t.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", t.dtype))
	}
	return t.data.([]int64)
}

// AsUint8 exposes the backing storage. Panics if the dtype is not Uint8.
func (t *Tensor) AsUint8() []uint8 {
	if t.dtype != Uint8 {
		panic(fmt.Sprintf("tensor dtype is %s, not uint8", t.dtype))
	}
	return t.data.([]uint8)
}

// AsBool exposes the backing storage. Panics if the dtype is not Bool.
func (t *Tensor) AsBool() []bool {
	if t.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", t.dtype))
	}
	return t.data.([]bool)
}

// Float32Values returns a float32 copy of numeric data. Bool tensors are
// rejected.
func (t *Tensor) Float32Values() ([]float32, error) {
	switch d := t.data.(type) {
	case []float32:
		return append([]float32(nil), d...), nil
	case []float64:
		return convert(d), nil
	case []int32:
		return convert(d), nil
	case []int64:
		return convert(d), nil
	case []uint8:
		return convert(d), nil
	default:
		return nil, fmt.Errorf("tensor dtype %s has no float32 view", t.dtype)
	}
}

func convert[T float64 | int32 | int64 | uint8](in []T) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// Clone deep-copies the tensor.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{shape: t.Shape(), dtype: t.dtype, device: t.device}
	switch d := t.data.(type) {
	case []float32:
		out.data = append([]float32(nil), d...)
	case []float64:
		out.data = append([]float64(nil), d...)
	case []int32:
		out.data = append([]int32(nil), d...)
	case []int64:
		out.data = append([]int64(nil), d...)
	case []uint8:
		out.data = append([]uint8(nil), d...)
	case []bool:
		out.data = append([]bool(nil), d...)
	}
	return out
}

// To returns t when already on d, otherwise a copy placed on d.
func (t *Tensor) To(d Device) *Tensor {
	if t.device == d {
		return t
	}
	out := t.Clone()
	out.device = d
	return out
}

// Reshape returns a tensor sharing t's storage with a new shape.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	n, err := numElements(shape)
	if err != nil {
		return nil, err
	}
	if int(n) != t.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.shape, t.NumElements(), shape)
	}
	return &Tensor{shape: append([]int64{}, shape...), dtype: t.dtype, device: t.device, data: t.data}, nil
}

// CopyFrom overwrites t's storage in place with src's values. Both tensors
// must hold the same number of elements; t must be float32 and src numeric.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if t.dtype != Float32 {
		return fmt.Errorf("copy into %s tensor is not supported", t.dtype)
	}
	if src.NumElements() != t.NumElements() {
		return fmt.Errorf("element count mismatch: destination %v has %d, source %v has %d",
			t.shape, t.NumElements(), src.shape, src.NumElements())
	}
	vals, err := src.Float32Values()
	if err != nil {
		return err
	}
	copy(t.AsFloat32(), vals)
	return nil
}

// Argmax returns the flat index of the largest element.
func (t *Tensor) Argmax() (int, error) {
	vals, err := t.Float32Values()
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("argmax of empty tensor")
	}
	best := 0
	for i, v := range vals {
		if v > vals[best] {
			best = i
		}
	}
	return best, nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, shape=%v, device=%s)", t.dtype, t.shape, t.device)
}
