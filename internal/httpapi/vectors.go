package httpapi

import (
	"math"

	"tensord/pkg/tensorvec"
	"tensord/pkg/types"
)

// VectorView is the JSON form of v. The literal is untruncated so it parses
// back to v.
func VectorView(v tensorvec.Vector) (types.Vector, error) {
	lit, err := tensorvec.FormatFull(v)
	if err != nil {
		return types.Vector{}, err
	}
	data := v.Data()
	out := types.Vector{
		Literal: lit,
		Dim:     v.Dim(),
		Shape:   v.Shape(),
		Data:    make([]*float32, len(data)),
	}
	for i := range data {
		if f := float64(data[i]); !math.IsInf(f, 0) && !math.IsNaN(f) {
			out.Data[i] = &data[i]
		}
	}
	return out, nil
}

// parseLiterals parses every input, stopping at the first failure.
func parseLiterals(lits []string) ([]tensorvec.Vector, error) {
	out := make([]tensorvec.Vector, len(lits))
	for i, lit := range lits {
		v, err := tensorvec.Parse(lit)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
