// Package tensorvec implements a variable-shape float32 vector value with
// explicit shape metadata.
//
// A Vector is immutable: accessors return copies and arithmetic returns new
// values. The text form is
//
//	[1,2,3,4]{2,2}
//
// where the optional brace clause declares the shape. Without it the shape is
// the single entry {dim}.
package tensorvec

import (
	"fmt"
	"math"
)

const (
	// MaxDim is the largest number of elements a vector may hold.
	MaxDim = 16000
	// MaxShapeSize is the largest number of shape entries (rank).
	MaxShapeSize = 10
)

// Kind distinguishes inline vectors from row references.
type Kind uint8

const (
	KindInline Kind = iota
	// KindRowRef is an opaque handle to a payload stored elsewhere. It has no
	// dim, shape or data and every operation in this package rejects it.
	KindRowRef
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindRowRef:
		return "rowref"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Vector is a dense float32 vector with a declared shape.
// The zero value is not a valid vector; build one with New, Parse,
// FromArray or DecodeBinary.
type Vector struct {
	kind  Kind
	rowID uint64
	data  []float32
	shape []int32
}

// New validates data against shape and returns a vector holding copies of
// both. A nil shape means the implicit rank-1 shape {len(data)}.
func New(data []float32, shape []int32) (Vector, error) {
	if len(data) < 1 {
		return Vector{}, ShapeMismatchError{Msg: "vector must have at least 1 dimension"}
	}
	if len(data) > MaxDim {
		return Vector{}, limitDim()
	}
	if shape == nil {
		shape = []int32{int32(len(data))}
	}
	if len(shape) < 1 {
		return Vector{}, ShapeMismatchError{Msg: "vector shape must have at least 1 dimension"}
	}
	if len(shape) > MaxShapeSize {
		return Vector{}, limitShape()
	}
	if err := checkShape(len(data), shape); err != nil {
		return Vector{}, err
	}
	return newUnchecked(append([]float32(nil), data...), append([]int32(nil), shape...)), nil
}

// NewScalar returns a single-element vector carrying the scalar marker shape {0}.
func NewScalar(f float32) Vector {
	return newUnchecked([]float32{f}, []int32{0})
}

// NewRowRef returns a row reference vector.
func NewRowRef(id uint64) Vector {
	return Vector{kind: KindRowRef, rowID: id}
}

// newUnchecked takes ownership of data and shape.
func newUnchecked(data []float32, shape []int32) Vector {
	return Vector{kind: KindInline, data: data, shape: shape}
}

// checkShape verifies dim == product(shape). The scalar marker {0} is
// accepted for exactly one element.
func checkShape(dim int, shape []int32) error {
	if dim == 1 && isScalarShape(shape) {
		return nil
	}
	prod, zero := int64(1), false
	for _, s := range shape {
		switch {
		case s < 0:
			return ShapeMismatchError{Msg: fmt.Sprintf("negative shape value %d", s)}
		case s == 0:
			zero = true
		case prod > math.MaxInt64/int64(s):
			prod = math.MaxInt64 // saturate
		default:
			prod *= int64(s)
		}
	}
	if zero {
		prod = 0
	}
	if prod != int64(dim) {
		return ShapeMismatchError{Msg: fmt.Sprintf("the multiplication of shape values not equals, dim:%d, shape_dim:%d", dim, prod)}
	}
	return nil
}

func isScalarShape(shape []int32) bool {
	return len(shape) == 1 && shape[0] == 0
}

// Kind reports whether v is inline or a row reference.
func (v Vector) Kind() Kind { return v.kind }

// IsRowRef reports whether v is a row reference.
func (v Vector) IsRowRef() bool { return v.kind == KindRowRef }

// RowID returns the row identifier of a row reference.
func (v Vector) RowID() (uint64, error) {
	if v.kind != KindRowRef {
		return 0, fmt.Errorf("tensorvec: vector is %s, not a row reference", v.kind)
	}
	return v.rowID, nil
}

// Dim is the number of elements; 0 for row references.
func (v Vector) Dim() int { return len(v.data) }

// ShapeSize is the rank of the declared shape; 0 for row references.
func (v Vector) ShapeSize() int { return len(v.shape) }

// IsScalar reports whether v carries the scalar marker shape {0}.
func (v Vector) IsScalar() bool { return v.kind == KindInline && isScalarShape(v.shape) }

// Data returns a copy of the elements.
func (v Vector) Data() []float32 { return append([]float32(nil), v.data...) }

// Shape returns a copy of the declared shape.
func (v Vector) Shape() []int32 { return append([]int32(nil), v.shape...) }

// At returns element i.
func (v Vector) At(i int) float32 { return v.data[i] }

func (v Vector) inline() error {
	if v.kind == KindRowRef {
		return ErrRowReference
	}
	if len(v.data) == 0 {
		return ErrEmptyVector
	}
	return nil
}

func (v Vector) String() string {
	if v.kind == KindRowRef {
		return fmt.Sprintf("rowref(%d)", v.rowID)
	}
	if len(v.data) == 0 {
		return "[]"
	}
	s, _ := Format(v)
	return s
}
