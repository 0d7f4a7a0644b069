// Package catalog holds model metadata: where each model's artifact lives,
// which base model it derives from, its per-layer parameters and the hooks
// it wants. The manager only reads it; the CLI and registry write to it.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"tensord/pkg/tensorvec"
)

// ErrNotFound reports a missing model, base model or layer set.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("catalog closed")

// StoreError wraps a failed catalog operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("catalog: %v", e.Err)
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ModelRecord is one row of model_info. Optional columns are empty when unset.
type ModelRecord struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	BaseModel   string `json:"base_model,omitempty"`
	MD5         string `json:"md5,omitempty"`
	Preprocess  string `json:"preprocess,omitempty"`
	Postprocess string `json:"postprocess,omitempty"`
	Description string `json:"description,omitempty"`
}

// LayerParameter is one entry of model_layer_info.
type LayerParameter struct {
	Name  string
	Value tensorvec.Vector
}

// Store is the read contract the manager depends on.
type Store interface {
	ModelPath(ctx context.Context, modelName string) (ModelRecord, error)
	BaseModelPath(ctx context.Context, baseName string) (string, error)
	// LayerParameters returns entries ordered by layer index.
	LayerParameters(ctx context.Context, modelName string) ([]LayerParameter, error)
	ListModels(ctx context.Context) ([]ModelRecord, error)
}

// Writer seeds a catalog.
type Writer interface {
	PutModel(ctx context.Context, rec ModelRecord) error
	PutBaseModel(ctx context.Context, name, path string) error
	PutLayerParameters(ctx context.Context, modelName string, params []LayerParameter) error
	DeleteModel(ctx context.Context, modelName string) error
}

// ReadWriter is a catalog that can be both read and seeded.
type ReadWriter interface {
	Store
	Writer
}
