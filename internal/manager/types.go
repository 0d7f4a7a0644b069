package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"tensord/internal/engine"
	"tensord/pkg/tensorvec"
)

// State represents lifecycle state of the manager.
type State string

const (
	StateReady  State = "ready"
	StateClosed State = "closed"
)

// loadedModel is one cache entry. mu guards module and device: forward
// passes hold it for reading, device moves and parameter injection for
// writing.
type loadedModel struct {
	mu       sync.RWMutex
	path     string
	name     string
	module   engine.Module
	device   engine.Device
	loadedAt time.Time
	opID     string

	inferences atomic.Uint64
}

func (lm *loadedModel) currentDevice() engine.Device {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.device
}

// ResultKind tells which field of a Result is set.
type ResultKind string

const (
	ResultNumeric ResultKind = "numeric"
	ResultText    ResultKind = "text"
	ResultVector  ResultKind = "vector"
)

// Result is the outcome of Infer.
type Result struct {
	Kind    ResultKind
	Numeric float64
	Text    string
	Vector  tensorvec.Vector
}

// label names the model in logs and events.
func (lm *loadedModel) label() string {
	if lm.name != "" {
		return lm.name
	}
	return lm.path
}
