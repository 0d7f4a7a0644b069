package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tensord/internal/catalog"
	"tensord/internal/engine"
	"tensord/pkg/tensorvec"
)

// fakeRuntime is an in-memory runtime that counts loads.
type fakeRuntime struct {
	loads    atomic.Int32
	gpu      bool
	loadErr  error
	panicMsg string
	delay    time.Duration
	moveErr  error

	mu      sync.Mutex
	modules map[string]*fakeModule
}

func newFakeRuntime() *fakeRuntime { return &fakeRuntime{modules: map[string]*fakeModule{}} }

func (r *fakeRuntime) Name() string       { return "fake" }
func (r *fakeRuntime) GPUAvailable() bool { return r.gpu }

func (r *fakeRuntime) Load(path string) (engine.Module, error) {
	r.loads.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	w, _ := engine.NewFloat32([]float32{1, 1}, []int64{1, 2})
	b, _ := engine.NewFloat32([]float32{0}, []int64{1})
	mod := &fakeModule{
		params:  []engine.NamedParameter{{Name: "fc.weight", Tensor: w}, {Name: "fc.bias", Tensor: b}},
		moveErr: r.moveErr,
	}
	r.mu.Lock()
	r.modules[path] = mod
	r.mu.Unlock()
	return mod, nil
}

func (r *fakeRuntime) module(path string) *fakeModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[path]
}

// fakeModule computes out = sum(w * x) + b over the concatenated inputs.
type fakeModule struct {
	params   []engine.NamedParameter
	device   engine.Device
	evals    int
	closed   bool
	moveErr  error
	panicMsg string
	fwdErr   error
}

func (f *fakeModule) NamedParameters() []engine.NamedParameter { return f.params }

func (f *fakeModule) To(d engine.Device) error {
	if d == engine.GPU && f.moveErr != nil {
		return f.moveErr
	}
	f.device = d
	return nil
}

func (f *fakeModule) Eval() { f.evals++ }

func (f *fakeModule) Forward(inputs []*engine.Tensor) (*engine.Tensor, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.fwdErr != nil {
		return nil, f.fwdErr
	}
	var x []float32
	for _, in := range inputs {
		if in.Device() != f.device {
			return nil, errors.New("input on wrong device")
		}
		vals, err := in.Float32Values()
		if err != nil {
			return nil, err
		}
		x = append(x, vals...)
	}
	w := f.params[0].Tensor.AsFloat32()
	if len(x) != len(w) {
		return nil, errors.New("feature width mismatch")
	}
	acc := f.params[1].Tensor.AsFloat32()[0]
	for i, v := range x {
		acc += w[i] * v
	}
	return engine.NewFloat32([]float32{acc, -acc}, []int64{2})
}

func (f *fakeModule) Close() error { f.closed = true; return nil }

// seedCatalog registers model "m" at /models/m.bin with matching layers.
func seedCatalog(t *testing.T) *catalog.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := catalog.NewMemoryStore()
	if err := s.PutModel(ctx, catalog.ModelRecord{Name: "m", Path: "{model_path}/m.bin"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := s.PutLayerParameters(ctx, "m", []catalog.LayerParameter{
		{Name: "fc.weight", Value: tensorvec.MustParse("[2,3]{1,2}")},
		{Name: "fc.bias", Value: tensorvec.MustParse("[0.5]")},
	})
	if err != nil {
		t.Fatalf("put layers: %v", err)
	}
	return s
}

func newTestManager(t *testing.T, store catalog.Store, rt engine.Runtime) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{Catalog: store, Runtime: rt, ModelRoot: "/models", Publisher: pub})
	t.Cleanup(func() { _ = m.Close() })
	return m, pub
}

func vec(t *testing.T, lit string) *engine.Tensor {
	t.Helper()
	v, err := tensorvec.Parse(lit)
	if err != nil {
		t.Fatalf("parse %q: %v", lit, err)
	}
	data := v.Data()
	shape := v.Shape()
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	x, err := engine.NewFloat32(data, dims)
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	return x
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
