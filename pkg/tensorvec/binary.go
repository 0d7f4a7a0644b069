package tensorvec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MarshalBinary encodes v as a big-endian int32 element count followed by
// that many big-endian IEEE-754 float32 values. The shape is not encoded.
func (v Vector) MarshalBinary() ([]byte, error) {
	if err := v.inline(); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 4+4*len(v.data)))
	if err := binary.Write(buf, binary.BigEndian, int32(len(v.data))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, v.data); err != nil {
		return nil, fmt.Errorf("encode vector values: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the MarshalBinary form into v. The result always
// has the implicit shape {count}.
func (v *Vector) UnmarshalBinary(b []byte) error {
	out, err := DecodeBinary(b)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// DecodeBinary decodes the MarshalBinary form.
func DecodeBinary(b []byte) (Vector, error) {
	if len(b) < 4 {
		return Vector{}, fmt.Errorf("decode vector: payload too short (%d bytes)", len(b))
	}
	r := bytes.NewReader(b)
	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return Vector{}, fmt.Errorf("decode vector length: %w", err)
	}
	if count < 1 {
		return Vector{}, ShapeMismatchError{Msg: "vector must have at least 1 dimension"}
	}
	if count > MaxDim {
		return Vector{}, limitDim()
	}
	if want := 4 * int(count); r.Len() != want {
		return Vector{}, fmt.Errorf("decode vector: expected %d payload bytes, got %d", want, r.Len())
	}
	data := make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, data); err != nil {
		return Vector{}, fmt.Errorf("decode vector values: %w", err)
	}
	return newUnchecked(data, []int32{count}), nil
}
