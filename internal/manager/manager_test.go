package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tensord/internal/catalog"
	"tensord/internal/engine"
	"tensord/internal/hooks"
	"tensord/pkg/tensorvec"
)

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(ManagerConfig{Runtime: newFakeRuntime()})
	if m.layerPolicy != LayerPolicySkip {
		t.Fatalf("expected default layer policy skip, got %q", m.layerPolicy)
	}
	if m.catalog == nil || m.publisher == nil || m.defaultHooks == nil {
		t.Fatalf("defaults not applied: %+v", m)
	}
	if !m.Ready() {
		t.Fatalf("new manager should be ready")
	}
}

func TestParseLayerPolicy(t *testing.T) {
	for in, want := range map[string]LayerPolicy{"": LayerPolicySkip, "skip": LayerPolicySkip, "error": LayerPolicyError} {
		got, ok := ParseLayerPolicy(in)
		if !ok || got != want {
			t.Fatalf("ParseLayerPolicy(%q)=%q,%v", in, got, ok)
		}
	}
	if _, ok := ParseLayerPolicy("ignore"); ok {
		t.Fatalf("unknown policy accepted")
	}
}

func TestResolvePath(t *testing.T) {
	ctx := context.Background()
	s := seedCatalog(t)
	_ = s.PutModel(ctx, catalog.ModelRecord{Name: "derived", Path: "/ignored", BaseModel: "base"})
	_ = s.PutBaseModel(ctx, "base", "{model_path}/base.bin")
	_ = s.PutModel(ctx, catalog.ModelRecord{Name: "orphan", Path: "/x", BaseModel: "gone"})
	m, _ := newTestManager(t, s, newFakeRuntime())

	p, base, err := m.ResolvePath(ctx, "m")
	if err != nil || p != "/models/m.bin" || base != "" {
		t.Fatalf("m: %q %q %v", p, base, err)
	}
	p, base, err = m.ResolvePath(ctx, "derived")
	if err != nil || p != "/models/base.bin" || base != "base" {
		t.Fatalf("derived: %q %q %v", p, base, err)
	}
	_, _, err = m.ResolvePath(ctx, "nope")
	if !IsModelNotFound(err) || err.Error() != `model "nope" not exists` {
		t.Fatalf("missing model: %v", err)
	}
	_, _, err = m.ResolvePath(ctx, "orphan")
	if !IsModelNotFound(err) || err.Error() != `base model "gone" not exists` {
		t.Fatalf("missing base: %v", err)
	}
}

func TestLoadOncePerPath(t *testing.T) {
	rt := newFakeRuntime()
	m, _ := newTestManager(t, seedCatalog(t), rt)
	ctx := testCtx(t)
	for i := 0; i < 3; i++ {
		if err := m.Load(ctx, "/models/a.bin", "", ""); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if n := rt.loads.Load(); n != 1 {
		t.Fatalf("expected 1 native load, got %d", n)
	}
}

func TestConcurrentLoadsShareOneNativeLoad(t *testing.T) {
	rt := newFakeRuntime()
	rt.delay = 20 * time.Millisecond
	m, _ := newTestManager(t, seedCatalog(t), rt)
	ctx := testCtx(t)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.LoadModel(ctx, "m"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("load: %v", err)
	}
	if n := rt.loads.Load(); n != 1 {
		t.Fatalf("expected 1 native load, got %d", n)
	}
}

func TestLoadInjectsParameters(t *testing.T) {
	rt := newFakeRuntime()
	m, _ := newTestManager(t, seedCatalog(t), rt)
	ctx := testCtx(t)
	path, err := m.LoadModel(ctx, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mod := rt.module(path)
	if w := mod.params[0].Tensor.AsFloat32(); w[0] != 2 || w[1] != 3 {
		t.Fatalf("weight not injected: %v", w)
	}
	if mod.evals != 1 || mod.device != engine.CPU {
		t.Fatalf("module should be in eval mode on cpu: evals=%d device=%s", mod.evals, mod.device)
	}
	out, ok, err := m.Predict(ctx, path, vec(t, "[1,1]"))
	if err != nil || !ok {
		t.Fatalf("predict: ok=%v err=%v", ok, err)
	}
	if got := out.AsFloat32()[0]; got != 5.5 {
		t.Fatalf("predict=%v", got)
	}
}

func TestLoadFailureIsNotCached(t *testing.T) {
	rt := newFakeRuntime()
	rt.loadErr = errors.New("boom")
	m, pub := newTestManager(t, seedCatalog(t), rt)
	ctx := testCtx(t)
	err := m.Load(ctx, "/models/x.bin", "", "")
	if !IsRuntime(err) || err.Error() != "load model failed, error message: boom" {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if m.IsLoaded("/models/x.bin") {
		t.Fatalf("failed load must not be cached")
	}
	_ = m.Load(ctx, "/models/x.bin", "", "")
	if n := rt.loads.Load(); n != 2 {
		t.Fatalf("failed load should be retried, loads=%d", n)
	}
	if st := m.Status(); st.LastError == "" {
		t.Fatalf("last error not recorded")
	}
	names := pub.Names()
	if len(names) == 0 || names[len(names)-1] != "load_error" {
		t.Fatalf("events=%v", names)
	}
}

func TestLoadPanicIsContained(t *testing.T) {
	rt := newFakeRuntime()
	rt.panicMsg = "bad artifact"
	m, _ := newTestManager(t, seedCatalog(t), rt)
	err := m.Load(testCtx(t), "/models/x.bin", "", "")
	if !IsRuntime(err) {
		t.Fatalf("expected runtime error, got %v", err)
	}
}

func TestLoadDependencyUnavailable(t *testing.T) {
	rt := newFakeRuntime()
	rt.loadErr = engine.ErrDependencyUnavailable("onnxruntime support not built")
	m, _ := newTestManager(t, seedCatalog(t), rt)
	err := m.Load(testCtx(t), "/models/x.onnx", "", "")
	if !IsRuntime(err) || !IsDependencyUnavailable(err) {
		t.Fatalf("expected runtime error wrapping dependency error, got %v", err)
	}
}

func TestLayerCountMismatchKeepsModelCached(t *testing.T) {
	ctx := testCtx(t)
	s := seedCatalog(t)
	_ = s.PutLayerParameters(ctx, "m", []catalog.LayerParameter{{Name: "fc.weight", Value: tensorvec.MustParse("[9,9]")}})
	rt := newFakeRuntime()
	m, _ := newTestManager(t, s, rt)
	path, err := m.LoadModel(ctx, "m")
	if !IsIntegrity(err) || err.Error() != `model "m" layer num not equal to base model` {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if !m.IsLoaded(path) {
		t.Fatalf("model should stay cached")
	}
	if w := rt.module(path).params[0].Tensor.AsFloat32(); w[0] != 1 || w[1] != 1 {
		t.Fatalf("parameters should keep their original values: %v", w)
	}
	// the cached entry is reused without another native load
	if _, err := m.LoadModel(ctx, "m"); err != nil || rt.loads.Load() != 1 {
		t.Fatalf("second load: err=%v loads=%d", err, rt.loads.Load())
	}
}

func TestLayersMissingFromCatalog(t *testing.T) {
	ctx := testCtx(t)
	s := catalog.NewMemoryStore()
	_ = s.PutModel(ctx, catalog.ModelRecord{Name: "bare", Path: "/models/bare.bin"})
	m, _ := newTestManager(t, s, newFakeRuntime())
	_, err := m.LoadModel(ctx, "bare")
	if !IsModelNotFound(err) || err.Error() != `model "bare" does not exist in model_layer_info` {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUnmatchedLayerPolicies(t *testing.T) {
	ctx := testCtx(t)
	layers := []catalog.LayerParameter{
		{Name: "fc.weight", Value: tensorvec.MustParse("[4,4]")},
		{Name: "other.bias", Value: tensorvec.MustParse("[7]")},
	}

	s := seedCatalog(t)
	_ = s.PutLayerParameters(ctx, "m", layers)
	rt := newFakeRuntime()
	m, _ := newTestManager(t, s, rt)
	path, err := m.LoadModel(ctx, "m")
	if err != nil {
		t.Fatalf("skip policy: %v", err)
	}
	mod := rt.module(path)
	if mod.params[0].Tensor.AsFloat32()[0] != 4 || mod.params[1].Tensor.AsFloat32()[0] != 0 {
		t.Fatalf("skip policy: matched layer should be copied, unmatched left alone")
	}

	strict := NewWithConfig(ManagerConfig{Catalog: s, Runtime: newFakeRuntime(), ModelRoot: "/models", UnmatchedLayers: LayerPolicyError})
	defer strict.Close()
	if _, err := strict.LoadModel(ctx, "m"); !IsIntegrity(err) {
		t.Fatalf("error policy: expected integrity error, got %v", err)
	}
}

func TestInjectElementCountMismatch(t *testing.T) {
	ctx := testCtx(t)
	s := seedCatalog(t)
	_ = s.PutLayerParameters(ctx, "m", []catalog.LayerParameter{
		{Name: "fc.weight", Value: tensorvec.MustParse("[1,2,3]")},
		{Name: "fc.bias", Value: tensorvec.MustParse("[0]")},
	})
	m, _ := newTestManager(t, s, newFakeRuntime())
	if _, err := m.LoadModel(ctx, "m"); !tensorvec.IsShapeMismatch(err) {
		t.Fatalf("expected shape mismatch, got %v", err)
	}
}

func TestSetDevice(t *testing.T) {
	ctx := testCtx(t)
	rt := newFakeRuntime()
	m, pub := newTestManager(t, seedCatalog(t), rt)

	if ok, err := m.SetDevice("/models/m.bin", engine.GPU); ok || err != nil {
		t.Fatalf("uncached: ok=%v err=%v", ok, err)
	}
	path, err := m.LoadModel(ctx, "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok, _ := m.SetDevice(path, engine.GPU); ok {
		t.Fatalf("gpu unavailable should report false")
	}
	if ok, _ := m.SetDevice(path, engine.CPU); ok {
		t.Fatalf("cpu request should report false")
	}
	rt.gpu = true
	if ok, err := m.SetDevice(path, engine.GPU); !ok || err != nil {
		t.Fatalf("move: ok=%v err=%v", ok, err)
	}
	if d, ok := m.Device(path); !ok || d != engine.GPU {
		t.Fatalf("device=%s ok=%v", d, ok)
	}
	if ok, _ := m.SetDevice(path, engine.GPU); !ok {
		t.Fatalf("already on gpu should report true")
	}
	if rt.module(path).evals != 2 {
		t.Fatalf("move should re-enter eval mode")
	}
	// inputs follow the model to the gpu
	res, err := m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1,1]")}, nil)
	if err != nil || res.Kind != ResultVector || res.Vector.At(0) != 5.5 {
		t.Fatalf("infer on gpu: %+v %v", res, err)
	}
	found := false
	for _, n := range pub.Names() {
		found = found || n == "device_switch"
	}
	if !found {
		t.Fatalf("device_switch event missing: %v", pub.Names())
	}
}

func TestSetDeviceMoveFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.gpu = true
	rt.moveErr = errors.New("cuda oom")
	m, _ := newTestManager(t, seedCatalog(t), rt)
	path, err := m.LoadModel(testCtx(t), "m")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ok, err := m.SetDevice(path, engine.GPU)
	if ok || !IsDeviceUnavailable(err) {
		t.Fatalf("expected device unavailable, got ok=%v err=%v", ok, err)
	}
	if d, _ := m.Device(path); d != engine.CPU {
		t.Fatalf("device should stay cpu")
	}
}

func TestPredictErrors(t *testing.T) {
	ctx := testCtx(t)
	rt := newFakeRuntime()
	m, _ := newTestManager(t, seedCatalog(t), rt)
	if out, ok, err := m.Predict(ctx, "/models/none.bin", vec(t, "[1]")); out != nil || ok || err != nil {
		t.Fatalf("uncached predict: %v %v %v", out, ok, err)
	}
	path, _ := m.LoadModel(ctx, "m")
	mod := rt.module(path)

	mod.fwdErr = errors.New("boom")
	_, ok, err := m.Predict(ctx, path, vec(t, "[1,1]"))
	if ok || !IsRuntime(err) || err.Error() != "predict error, error message:boom" {
		t.Fatalf("predict: ok=%v err=%v", ok, err)
	}
	_, ok, err = m.PredictMulti(ctx, path, []*engine.Tensor{vec(t, "[1]"), vec(t, "[1]")})
	if ok || !IsRuntime(err) || err.Error() != "muti predict error, error message:boom" {
		t.Fatalf("predict multi: ok=%v err=%v", ok, err)
	}

	mod.fwdErr = nil
	mod.panicMsg = "index out of range"
	if _, _, err := m.Predict(ctx, path, vec(t, "[1,1]")); !IsRuntime(err) {
		t.Fatalf("panic should become runtime error, got %v", err)
	}
	mod.panicMsg = ""
	out, ok, err := m.PredictMulti(ctx, path, []*engine.Tensor{vec(t, "[1]"), vec(t, "[2]")})
	if err != nil || !ok || out.AsFloat32()[0] != 8.5 {
		t.Fatalf("predict multi: %v %v %v", out, ok, err)
	}
}

func TestPreprocess(t *testing.T) {
	ctx := testCtx(t)
	rt := newFakeRuntime()
	m, _ := newTestManager(t, seedCatalog(t), rt)
	in := []*engine.Tensor{vec(t, "[1,2]")}

	if _, ok, err := m.Preprocess("/models/m.bin", in, nil); ok || err != nil {
		t.Fatalf("no hook: ok=%v err=%v", ok, err)
	}
	if err := m.RegisterPreprocess(ctx, "m", hooks.Flatten); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, ok, err := m.Preprocess("/models/m.bin", in, nil)
	if ok || !IsRuntime(err) || err.Error() != "model:/models/m.bin handle not exist!" {
		t.Fatalf("uncached model: ok=%v err=%v", ok, err)
	}

	path, _ := m.LoadModel(ctx, "m")
	rt.gpu = true
	_, _ = m.SetDevice(path, engine.GPU)
	out, ok, err := m.Preprocess(path, in, nil)
	if err != nil || !ok || out[0].Device() != engine.GPU {
		t.Fatalf("preprocess: ok=%v err=%v out=%v", ok, err, out)
	}

	_ = m.RegisterPreprocess(ctx, "m", func([]*engine.Tensor, hooks.Args) ([]*engine.Tensor, error) { return nil, nil })
	if _, ok, err := m.Preprocess(path, in, nil); ok || err != nil {
		t.Fatalf("rejecting hook: ok=%v err=%v", ok, err)
	}
	_ = m.RegisterPreprocess(ctx, "m", func([]*engine.Tensor, hooks.Args) ([]*engine.Tensor, error) {
		return nil, errors.New("bad input")
	})
	if _, ok, err := m.Preprocess(path, in, nil); ok || err == nil {
		t.Fatalf("failing hook: ok=%v err=%v", ok, err)
	}
	_ = m.RegisterPreprocess(ctx, "m", func([]*engine.Tensor, hooks.Args) ([]*engine.Tensor, error) { panic("x") })
	if _, ok, err := m.Preprocess(path, in, nil); ok || err == nil {
		t.Fatalf("panicking hook: ok=%v err=%v", ok, err)
	}
}

func TestRegisterUnknownModel(t *testing.T) {
	m, _ := newTestManager(t, seedCatalog(t), newFakeRuntime())
	ctx := testCtx(t)
	if err := m.RegisterPreprocess(ctx, "nope", hooks.Identity); !IsModelNotFound(err) {
		t.Fatalf("pre: %v", err)
	}
	if err := m.RegisterPostprocessNumeric(ctx, "nope", hooks.Sum); !IsModelNotFound(err) {
		t.Fatalf("numeric: %v", err)
	}
	if err := m.RegisterPostprocessText(ctx, "nope", hooks.JSON); !IsModelNotFound(err) {
		t.Fatalf("text: %v", err)
	}
}

func TestDefaultHooksRunOnce(t *testing.T) {
	calls := 0
	m := NewWithConfig(ManagerConfig{
		Catalog:   seedCatalog(t),
		Runtime:   newFakeRuntime(),
		ModelRoot: "/models",
		DefaultHooks: func(ctx context.Context, r hooks.Registrar) error {
			calls++
			return r.RegisterPostprocessNumeric(ctx, "m", hooks.First)
		},
	})
	defer m.Close()
	ctx := testCtx(t)
	for i := 0; i < 3; i++ {
		res, err := m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1,1]")}, nil)
		if err != nil || res.Kind != ResultNumeric || res.Numeric != 5.5 {
			t.Fatalf("infer: %+v %v", res, err)
		}
	}
	if calls != 1 {
		t.Fatalf("default registration ran %d times", calls)
	}
}

func TestDefaultHooksFromCatalog(t *testing.T) {
	ctx := testCtx(t)
	s := seedCatalog(t)
	rec, _ := s.ModelPath(ctx, "m")
	rec.Postprocess = "label"
	_ = s.PutModel(ctx, rec)
	m, _ := newTestManager(t, s, newFakeRuntime())
	res, err := m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1,1]")}, hooks.Args{"pos", "neg"})
	if err != nil || res.Kind != ResultText || res.Text != "pos" {
		t.Fatalf("infer: %+v %v", res, err)
	}
}

func TestInferVariants(t *testing.T) {
	ctx := testCtx(t)
	m, _ := newTestManager(t, seedCatalog(t), newFakeRuntime())

	res, err := m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1]"), tensorvec.MustParse("[1]")}, nil)
	if err != nil || res.Kind != ResultVector {
		t.Fatalf("multi: %+v %v", res, err)
	}
	if res.Vector.Dim() != 2 || res.Vector.At(1) != -5.5 {
		t.Fatalf("vector=%v", res.Vector)
	}
	if _, err := m.Infer(ctx, "m", nil, nil); !tensorvec.IsShapeMismatch(err) {
		t.Fatalf("no inputs: %v", err)
	}
	if _, err := m.Infer(ctx, "nope", []tensorvec.Vector{tensorvec.MustParse("[1]")}, nil); !IsModelNotFound(err) {
		t.Fatalf("unknown model: %v", err)
	}
	if _, err := m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.NewRowRef(3)}, nil); !errors.Is(err, tensorvec.ErrRowReference) {
		t.Fatalf("row reference: %v", err)
	}
	_ = m.RegisterPostprocessText(ctx, "m", hooks.JSON)
	res, err = m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1,1]")}, nil)
	if err != nil || res.Kind != ResultText || res.Text != "[5.5,-5.5]" {
		t.Fatalf("text: %+v %v", res, err)
	}
	_ = m.RegisterPostprocessNumeric(ctx, "m", hooks.Max)
	res, err = m.Infer(ctx, "m", []tensorvec.Vector{tensorvec.MustParse("[1,1]")}, nil)
	if err != nil || res.Kind != ResultNumeric || res.Numeric != 5.5 {
		t.Fatalf("numeric hook should win over text: %+v %v", res, err)
	}
}
