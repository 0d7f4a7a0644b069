package tensorvec

import (
	"math"
	"strconv"
	"strings"
)

// truncateAbove is the element count beyond which Format elides the middle.
const truncateAbove = 10

// Format renders v in display form. Vectors with more than ten elements show
// the first three and last three values around a `....` marker. The shape
// clause is always complete.
func Format(v Vector) (string, error) {
	return format(v, true)
}

// FormatFull renders every element. Parse(FormatFull(v)) reproduces v.
func FormatFull(v Vector) (string, error) {
	return format(v, false)
}

func format(v Vector, truncate bool) (string, error) {
	if err := v.inline(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(v.data)*8 + len(v.shape)*4 + 4)
	b.WriteByte('[')
	if truncate && len(v.data) > truncateAbove {
		for i := 0; i < 3; i++ {
			b.WriteString(formatFloat(v.data[i]))
			b.WriteByte(',')
		}
		b.WriteString("....,")
		n := len(v.data)
		for i := n - 3; i < n; i++ {
			b.WriteString(formatFloat(v.data[i]))
			if i != n-1 {
				b.WriteByte(',')
			}
		}
	} else {
		for i, f := range v.data {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(formatFloat(f))
		}
	}
	b.WriteString("]{")
	for i, s := range v.shape {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(s), 10))
	}
	b.WriteByte('}')
	return b.String(), nil
}

// formatFloat uses the shortest representation that reads back to the same
// float32.
func formatFloat(f float32) string {
	switch {
	case math.IsInf(float64(f), 1):
		return "Infinity"
	case math.IsInf(float64(f), -1):
		return "-Infinity"
	case f != f:
		return "NaN"
	}
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
