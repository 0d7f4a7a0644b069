package engine

import "testing"

func TestNewFloat32ValidatesShape(t *testing.T) {
	if _, err := NewFloat32([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatalf("expected element count error")
	}
	if _, err := NewFloat32([]float32{1}, []int64{-1}); err == nil {
		t.Fatalf("expected negative dimension error")
	}
	x, err := NewFloat32([]float32{1, 2, 3, 4}, []int64{2, 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if x.Rank() != 2 || x.NumElements() != 4 || x.DType() != Float32 || x.Device() != CPU {
		t.Fatalf("unexpected tensor %v", x)
	}
}

func TestScalarIsRankZero(t *testing.T) {
	s := Scalar(3)
	if s.Rank() != 0 || s.NumElements() != 1 || s.AsFloat32()[0] != 3 {
		t.Fatalf("unexpected scalar %v", s)
	}
	if ScalarInt64(7).AsInt64()[0] != 7 {
		t.Fatalf("int64 scalar")
	}
}

func TestCopyFromInPlace(t *testing.T) {
	dst, _ := NewFloat32([]float32{0, 0, 0, 0}, []int64{2, 2})
	backing := dst.AsFloat32()
	src, _ := NewFloat32([]float32{1, 2, 3, 4}, []int64{4})
	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if backing[3] != 4 {
		t.Fatalf("storage not updated in place: %v", backing)
	}
	if sh := dst.Shape(); sh[0] != 2 || sh[1] != 2 {
		t.Fatalf("destination shape changed: %v", sh)
	}
	short, _ := NewFloat32([]float32{1}, []int64{1})
	if err := dst.CopyFrom(short); err == nil {
		t.Fatalf("expected element count mismatch")
	}
	ints, _ := NewInt64([]int64{5, 6, 7, 8}, []int64{4})
	if err := dst.CopyFrom(ints); err != nil || backing[0] != 5 {
		t.Fatalf("int64 source: %v %v", err, backing)
	}
	flags, _ := NewBool([]bool{true, false, true, true}, []int64{4})
	if err := dst.CopyFrom(flags); err == nil {
		t.Fatalf("bool source should be rejected")
	}
}

func TestCloneAndTo(t *testing.T) {
	x, _ := NewFloat32([]float32{1, 2}, []int64{2})
	if x.To(CPU) != x {
		t.Fatalf("To same device should return receiver")
	}
	g := x.To(GPU)
	if g.Device() != GPU || g == x {
		t.Fatalf("expected a copy on gpu")
	}
	g.AsFloat32()[0] = 9
	if x.AsFloat32()[0] != 1 {
		t.Fatalf("copy shares storage")
	}
}

func TestReshapeSharesStorage(t *testing.T) {
	x, _ := NewFloat32([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	y, err := x.Reshape([]int64{6})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	y.AsFloat32()[0] = 10
	if x.AsFloat32()[0] != 10 {
		t.Fatalf("reshape should share storage")
	}
	if _, err := x.Reshape([]int64{4}); err == nil {
		t.Fatalf("expected reshape error")
	}
}

func TestArgmaxAndFloat32Values(t *testing.T) {
	x, _ := NewInt32([]int32{3, 9, 2}, []int64{3})
	i, err := x.Argmax()
	if err != nil || i != 1 {
		t.Fatalf("argmax=%d err=%v", i, err)
	}
	vals, _ := x.Float32Values()
	if vals[1] != 9 {
		t.Fatalf("vals=%v", vals)
	}
}

func TestAsWrongTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Scalar(1).AsInt64()
}

func TestParseDevice(t *testing.T) {
	for in, want := range map[string]Device{"cpu": CPU, "GPU": GPU, "cuda": GPU} {
		got, err := ParseDevice(in)
		if err != nil || got != want {
			t.Fatalf("ParseDevice(%q)=%v,%v", in, got, err)
		}
	}
	if _, err := ParseDevice("tpu"); err == nil {
		t.Fatalf("expected error")
	}
}
