package tensorvec

import "math"

// equalTolerance is the absolute per-element tolerance used by Equal.
const equalTolerance = 1e-6

// Add returns the elementwise sum. The result takes the shape of a.
func Add(a, b Vector) (Vector, error) {
	return combine(a, b, '+', func(x, y float32) float32 { return x + y })
}

// Sub returns the elementwise difference a-b. The result takes the shape of a.
func Sub(a, b Vector) (Vector, error) {
	return combine(a, b, '-', func(x, y float32) float32 { return x - y })
}

func combine(a, b Vector, op byte, fn func(x, y float32) float32) (Vector, error) {
	if err := a.inline(); err != nil {
		return Vector{}, err
	}
	if err := b.inline(); err != nil {
		return Vector{}, err
	}
	if len(a.data) != len(b.data) {
		return Vector{}, ShapeMismatchError{Msg: "the two mvecs have different dimensions!"}
	}
	if !shapeEqual(a.shape, b.shape) {
		return Vector{}, ShapeMismatchError{Msg: "the two mvecs have different shape!"}
	}
	out := make([]float32, len(a.data))
	for i := range a.data {
		r := fn(a.data[i], b.data[i])
		if isInf(r) && !isInf(a.data[i]) && !isInf(b.data[i]) {
			return Vector{}, OverflowError{Op: op, Left: a.data[i], Right: b.data[i]}
		}
		out[i] = r
	}
	return newUnchecked(out, append([]int32(nil), a.shape...)), nil
}

// Equal reports whether a and b hold the same elements within an absolute
// tolerance of 1e-6. NaN equals only NaN. Shapes are not compared.
func Equal(a, b Vector) bool {
	if a.inline() != nil || b.inline() != nil {
		return false
	}
	if len(a.data) != len(b.data) {
		return false
	}
	for i := range a.data {
		x, y := a.data[i], b.data[i]
		xn, yn := x != x, y != y
		if xn || yn {
			if xn != yn {
				return false
			}
			continue
		}
		if x == y {
			continue
		}
		if math.Abs(float64(x)-float64(y)) > equalTolerance {
			return false
		}
	}
	return true
}

func shapeEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isInf(f float32) bool { return math.IsInf(float64(f), 0) }
