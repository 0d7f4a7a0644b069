package tensorvec

import "fmt"

// FromArray builds a rank-1 vector from a []float32, []float64 (narrowed)
// or []int32 (widened).
func FromArray(arr any) (Vector, error) {
	var data []float32
	switch a := arr.(type) {
	case []float32:
		data = append([]float32(nil), a...)
	case []float64:
		data = make([]float32, len(a))
		for i, f := range a {
			data[i] = float32(f)
		}
	case []int32:
		data = make([]float32, len(a))
		for i, n := range a {
			data[i] = float32(n)
		}
	default:
		return Vector{}, UnsupportedTypeError{Type: fmt.Sprintf("%T", arr)}
	}
	if len(data) < 1 {
		return Vector{}, ShapeMismatchError{Msg: "vector must have at least 1 dimension"}
	}
	if len(data) > MaxDim {
		return Vector{}, LimitExceededError{Msg: fmt.Sprintf("mvec cannot have more than %d dimensions", MaxDim), Limit: MaxDim}
	}
	return newUnchecked(data, []int32{int32(len(data))}), nil
}

// ToFloat32Array materializes the elements as a flat array.
func ToFloat32Array(v Vector) ([]float32, error) {
	if err := v.inline(); err != nil {
		return nil, err
	}
	return v.Data(), nil
}

// ShapeOf returns the declared shape, rejecting row references.
func ShapeOf(v Vector) ([]int32, error) {
	if err := v.inline(); err != nil {
		return nil, err
	}
	return v.Shape(), nil
}
