//go:build !onnxruntime

package engine

// onnxRuntime is a stub compiled when the 'onnxruntime' build tag is NOT
// set. It keeps default builds CGO-free and fails loads explicitly.
type onnxRuntime struct{}

// NewONNXRuntime returns the ONNX Runtime backend for this build.
func NewONNXRuntime(opts Options) Runtime { return onnxRuntime{} }

func (onnxRuntime) Name() string { return "onnxruntime" }

func (onnxRuntime) GPUAvailable() bool { return false }

func (onnxRuntime) Load(path string) (Module, error) {
	return nil, ErrDependencyUnavailable("onnxruntime support not built (missing 'onnxruntime' build tag)")
}
