// Package engine is the native tensor runtime used by the model manager.
//
// A Runtime loads a model artifact into a Module. Modules expose their
// parameters by name so callers can overwrite them in place, can be moved
// between devices, and run a forward pass over a list of input tensors.
//
// Runtimes:
//
//   - safetensors (always built): sequential MLPs stored as .safetensors
//     files whose metadata key "layers" describes the stack. CPU only.
//   - onnxruntime (build tag `onnxruntime`): .onnx graphs executed through
//     ONNX Runtime, with the CUDA execution provider for GPU placement.
//     Without the tag a stub reports the dependency as unavailable.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// NamedParameter is a live, mutable parameter of a Module.
type NamedParameter struct {
	Name   string
	Tensor *Tensor
}

// Module is a loaded model.
type Module interface {
	// NamedParameters lists parameters in a stable order. The tensors are
	// the module's own storage.
	NamedParameters() []NamedParameter
	// To moves the module to a device.
	To(Device) error
	// Eval switches the module to inference mode.
	Eval()
	Forward(inputs []*Tensor) (*Tensor, error)
	Close() error
}

// Runtime loads model artifacts.
type Runtime interface {
	Name() string
	Load(path string) (Module, error)
	GPUAvailable() bool
}

// dependencyUnavailableError signals a runtime that was not built in or
// whose shared library could not be initialised.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var de dependencyUnavailableError
	return errors.As(err, &de)
}

// Mux routes Load calls to a runtime by file extension.
type Mux struct {
	mu    sync.RWMutex
	byExt map[string]Runtime
}

func NewMux() *Mux { return &Mux{byExt: make(map[string]Runtime)} }

// Register binds an extension such as ".onnx" to rt.
func (m *Mux) Register(ext string, rt Runtime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byExt[strings.ToLower(ext)] = rt
}

func (m *Mux) Name() string { return "mux" }

func (m *Mux) lookup(path string) (Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	return rt, ok
}

func (m *Mux) Load(path string) (Module, error) {
	rt, ok := m.lookup(path)
	if !ok {
		return nil, fmt.Errorf("no runtime registered for %q (known: %s)", filepath.Ext(path), strings.Join(m.Extensions(), ", "))
	}
	return rt.Load(path)
}

// GPUAvailable reports whether any registered runtime can place modules on a GPU.
func (m *Mux) GPUAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rt := range m.byExt {
		if rt.GPUAvailable() {
			return true
		}
	}
	return false
}

// Extensions lists the registered extensions, sorted.
func (m *Mux) Extensions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Options configures NewDefault.
type Options struct {
	// EnableGPU allows runtimes to report GPU availability.
	EnableGPU bool
	// ORTLibraryPath is the onnxruntime shared library location.
	ORTLibraryPath string
}

// NewDefault registers every runtime built into this binary.
func NewDefault(opts Options) *Mux {
	m := NewMux()
	m.Register(".safetensors", NewSafetensorsRuntime())
	m.Register(".onnx", NewONNXRuntime(opts))
	return m
}
