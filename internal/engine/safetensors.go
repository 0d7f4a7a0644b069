package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/nlpodyssey/safetensors"
)

// LayersKey is the safetensors metadata key holding the layer stack, e.g.
// "linear:fc1,relu,linear:fc2,softmax".
const LayersKey = "layers"

type safetensorsRuntime struct{}

// NewSafetensorsRuntime returns the pure-Go MLP runtime.
func NewSafetensorsRuntime() Runtime { return safetensorsRuntime{} }

func (safetensorsRuntime) Name() string { return "safetensors" }

func (safetensorsRuntime) GPUAvailable() bool { return false }

func (safetensorsRuntime) Load(path string) (Module, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	st, err := safetensors.Deserialize(buf)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	_, meta, err := safetensors.ReadMetadata(buf)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", path, err)
	}
	stack, ok := meta.Metadata()[LayersKey]
	if !ok || strings.TrimSpace(stack) == "" {
		return nil, fmt.Errorf("%s: missing %q metadata", path, LayersKey)
	}
	m := &mlp{path: path}
	for _, item := range strings.Split(stack, ",") {
		item = strings.TrimSpace(item)
		kind, name, _ := strings.Cut(item, ":")
		switch kind {
		case "linear":
			l, err := loadLinear(st, name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			m.layers = append(m.layers, l)
			m.params = append(m.params,
				NamedParameter{Name: name + ".weight", Tensor: l.weight},
				NamedParameter{Name: name + ".bias", Tensor: l.bias})
		case "relu", "sigmoid", "tanh", "softmax", "identity":
			m.layers = append(m.layers, activation(kind))
		default:
			return nil, fmt.Errorf("%s: unknown layer %q", path, item)
		}
	}
	return m, nil
}

func viewFloat32(st safetensors.SafeTensors, name string) (*Tensor, error) {
	view, ok := st.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}
	if view.DType() != safetensors.F32 {
		return nil, fmt.Errorf("tensor %q has dtype %s, want F32", name, view.DType())
	}
	raw := view.Data()
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	shape := make([]int64, len(view.Shape()))
	for i, d := range view.Shape() {
		shape[i] = int64(d)
	}
	return NewFloat32(data, shape)
}

func loadLinear(st safetensors.SafeTensors, name string) (*linear, error) {
	if name == "" {
		return nil, fmt.Errorf("linear layer without a name")
	}
	w, err := viewFloat32(st, name+".weight")
	if err != nil {
		return nil, err
	}
	b, err := viewFloat32(st, name+".bias")
	if err != nil {
		return nil, err
	}
	if w.Rank() != 2 || b.Rank() != 1 || b.shape[0] != w.shape[0] {
		return nil, fmt.Errorf("linear %q: weight %v and bias %v do not form [out,in]/[out]", name, w.shape, b.shape)
	}
	return &linear{name: name, weight: w, bias: b}, nil
}

// SaveMLP writes a safetensors MLP artifact. layers uses the LayersKey
// syntax; params must contain a weight and bias for every linear layer.
func SaveMLP(path, layers string, params []NamedParameter) error {
	views := make(map[string]safetensors.TensorView, len(params))
	for _, p := range params {
		vals, err := p.Tensor.Float32Values()
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		raw := make([]byte, 4*len(vals))
		for i, f := range vals {
			binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
		}
		shape := make([]uint64, len(p.Tensor.shape))
		for i, d := range p.Tensor.shape {
			shape[i] = uint64(d)
		}
		view, err := safetensors.NewTensorView(safetensors.F32, shape, raw)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		views[p.Name] = view
	}
	buf, err := safetensors.Serialize(views, map[string]string{LayersKey: layers})
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

type layer interface {
	apply(x []float32, batch, width int) ([]float32, int, error)
}

type linear struct {
	name   string
	weight *Tensor // [out, in]
	bias   *Tensor // [out]
}

func (l *linear) apply(x []float32, batch, width int) ([]float32, int, error) {
	out, in := int(l.weight.shape[0]), int(l.weight.shape[1])
	if width != in {
		return nil, 0, fmt.Errorf("layer %s expects %d features, got %d", l.name, in, width)
	}
	w, b := l.weight.AsFloat32(), l.bias.AsFloat32()
	y := make([]float32, batch*out)
	for r := 0; r < batch; r++ {
		row := x[r*in : (r+1)*in]
		for o := 0; o < out; o++ {
			acc := b[o]
			wr := w[o*in : (o+1)*in]
			for i, v := range row {
				acc += wr[i] * v
			}
			y[r*out+o] = acc
		}
	}
	return y, out, nil
}

type activation string

func (a activation) apply(x []float32, batch, width int) ([]float32, int, error) {
	y := make([]float32, len(x))
	switch a {
	case "relu":
		for i, v := range x {
			if v > 0 {
				y[i] = v
			}
		}
	case "sigmoid":
		for i, v := range x {
			y[i] = float32(1 / (1 + math.Exp(-float64(v))))
		}
	case "tanh":
		for i, v := range x {
			y[i] = float32(math.Tanh(float64(v)))
		}
	case "softmax":
		for r := 0; r < batch; r++ {
			row := x[r*width : (r+1)*width]
			peak := row[0]
			for _, v := range row {
				if v > peak {
					peak = v
				}
			}
			var sum float64
			for i, v := range row {
				e := math.Exp(float64(v - peak))
				y[r*width+i] = float32(e)
				sum += e
			}
			for i := range row {
				y[r*width+i] = float32(float64(y[r*width+i]) / sum)
			}
		}
	default:
		copy(y, x)
	}
	return y, width, nil
}

type mlp struct {
	path   string
	layers []layer
	params []NamedParameter
	eval   bool
}

func (m *mlp) NamedParameters() []NamedParameter {
	return append([]NamedParameter(nil), m.params...)
}

func (m *mlp) To(d Device) error {
	if d != CPU {
		return ErrDependencyUnavailable("safetensors runtime runs on cpu only")
	}
	return nil
}

func (m *mlp) Eval() { m.eval = true }

// Forward accepts rank-1 [features] or rank-2 [batch, features] inputs.
// Several inputs are concatenated along the feature axis.
func (m *mlp) Forward(inputs []*Tensor) (*Tensor, error) {
	x, batch, width, batched, err := concatFeatures(inputs)
	if err != nil {
		return nil, err
	}
	for _, l := range m.layers {
		if x, width, err = l.apply(x, batch, width); err != nil {
			return nil, err
		}
	}
	if batched {
		return NewFloat32(x, []int64{int64(batch), int64(width)})
	}
	return NewFloat32(x, []int64{int64(width)})
}

func (m *mlp) Close() error { return nil }

func concatFeatures(inputs []*Tensor) (x []float32, batch, width int, batched bool, err error) {
	if len(inputs) == 0 {
		return nil, 0, 0, false, fmt.Errorf("forward needs at least one input")
	}
	batch = -1
	rows := make([][]float32, len(inputs))
	widths := make([]int, len(inputs))
	for i, t := range inputs {
		vals, err := t.Float32Values()
		if err != nil {
			return nil, 0, 0, false, fmt.Errorf("input %d: %w", i, err)
		}
		var b int
		switch t.Rank() {
		case 0, 1:
			b, widths[i] = 1, len(vals)
		case 2:
			b, widths[i] = int(t.shape[0]), int(t.shape[1])
			batched = true
		default:
			return nil, 0, 0, false, fmt.Errorf("input %d: rank %d not supported, want 1 or 2", i, t.Rank())
		}
		if batch >= 0 && b != batch {
			return nil, 0, 0, false, fmt.Errorf("input %d: batch %d does not match %d", i, b, batch)
		}
		batch = b
		rows[i] = vals
		width += widths[i]
	}
	x = make([]float32, 0, batch*width)
	for r := 0; r < batch; r++ {
		for i, vals := range rows {
			x = append(x, vals[r*widths[i]:(r+1)*widths[i]]...)
		}
	}
	return x, batch, width, batched, nil
}
