//go:build onnxruntime

package engine

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nlpodyssey/safetensors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initORT(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			ortErr = ort.InitializeEnvironment()
		}
	})
	if ortErr != nil {
		return ErrDependencyUnavailable("onnxruntime init failed: " + ortErr.Error())
	}
	return nil
}

type onnxRuntime struct {
	opts Options
}

// NewONNXRuntime returns the ONNX Runtime backend for this build.
func NewONNXRuntime(opts Options) Runtime { return &onnxRuntime{opts: opts} }

func (r *onnxRuntime) Name() string { return "onnxruntime" }

func (r *onnxRuntime) GPUAvailable() bool { return r.opts.EnableGPU && ProbeGPU() }

// ParamsPath is the sidecar file holding named parameters for an .onnx graph.
func ParamsPath(onnxPath string) string {
	return strings.TrimSuffix(onnxPath, ".onnx") + ".params.safetensors"
}

func (r *onnxRuntime) Load(path string) (Module, error) {
	if err := initORT(r.opts.ORTLibraryPath); err != nil {
		return nil, err
	}
	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%s: graph has no outputs", path)
	}
	params, err := loadSidecar(ParamsPath(path))
	if err != nil {
		return nil, err
	}
	m := &onnxModule{path: path, output: outs[0].Name}
	byName := make(map[string]bool, len(params))
	for _, p := range params {
		byName[p.Name] = true
	}
	for _, in := range ins {
		m.inputNames = append(m.inputNames, in.Name)
		if !byName[in.Name] {
			m.dataInputs = append(m.dataInputs, in.Name)
		}
	}
	for _, p := range params {
		for _, in := range ins {
			if in.Name == p.Name {
				m.params = append(m.params, p)
			}
		}
	}
	if err := m.open(CPU); err != nil {
		return nil, err
	}
	return m, nil
}

func loadSidecar(path string) ([]NamedParameter, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := safetensors.Deserialize(buf)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	var out []NamedParameter
	for _, name := range st.Names() {
		t, err := viewFloat32(st, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, NamedParameter{Name: name, Tensor: t})
	}
	return out, nil
}

type onnxModule struct {
	path       string
	inputNames []string
	dataInputs []string
	output     string
	params     []NamedParameter
	session    *ort.DynamicAdvancedSession
	device     Device
}

func (m *onnxModule) open(d Device) error {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return err
	}
	defer opts.Destroy()
	if d == GPU {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return ErrDependencyUnavailable("cuda provider: " + err.Error())
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
			return err
		}
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			return ErrDependencyUnavailable("cuda provider: " + err.Error())
		}
	}
	s, err := ort.NewDynamicAdvancedSession(m.path, m.inputNames, []string{m.output}, opts)
	if err != nil {
		return fmt.Errorf("open session %s: %w", m.path, err)
	}
	if m.session != nil {
		_ = m.session.Destroy()
	}
	m.session = s
	m.device = d
	return nil
}

func (m *onnxModule) NamedParameters() []NamedParameter {
	return append([]NamedParameter(nil), m.params...)
}

func (m *onnxModule) To(d Device) error {
	if d == m.device {
		return nil
	}
	return m.open(d)
}

// Eval is a no-op: ONNX graphs are exported in inference mode.
func (m *onnxModule) Eval() {}

func (m *onnxModule) Forward(inputs []*Tensor) (*Tensor, error) {
	if len(inputs) != len(m.dataInputs) {
		return nil, fmt.Errorf("graph expects %d inputs (%s), got %d", len(m.dataInputs), strings.Join(m.dataInputs, ","), len(inputs))
	}
	feed := make(map[string]*Tensor, len(m.inputNames))
	for i, name := range m.dataInputs {
		feed[name] = inputs[i]
	}
	for _, p := range m.params {
		feed[p.Name] = p.Tensor
	}
	values := make([]ort.Value, 0, len(m.inputNames))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	for _, name := range m.inputNames {
		v, err := toORT(feed[name])
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		values = append(values, v)
	}
	outputs := []ort.Value{nil}
	if err := m.session.Run(values, outputs); err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()
	return fromORT(outputs[0])
}

func (m *onnxModule) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

func toORT(t *Tensor) (ort.Value, error) {
	shape := t.Shape()
	if len(shape) == 0 {
		shape = []int64{1}
	}
	switch t.DType() {
	case Int64:
		return ort.NewTensor(ort.NewShape(shape...), append([]int64(nil), t.AsInt64()...))
	default:
		vals, err := t.Float32Values()
		if err != nil {
			return nil, err
		}
		return ort.NewTensor(ort.NewShape(shape...), vals)
	}
}

func fromORT(v ort.Value) (*Tensor, error) {
	switch o := v.(type) {
	case *ort.Tensor[float32]:
		return NewFloat32(append([]float32(nil), o.GetData()...), o.GetShape())
	case *ort.Tensor[float64]:
		return NewFloat64(append([]float64(nil), o.GetData()...), o.GetShape())
	case *ort.Tensor[int64]:
		return NewInt64(append([]int64(nil), o.GetData()...), o.GetShape())
	case *ort.Tensor[int32]:
		return NewInt32(append([]int32(nil), o.GetData()...), o.GetShape())
	default:
		return nil, fmt.Errorf("unsupported onnx output %T", v)
	}
}
