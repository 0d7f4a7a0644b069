package manager

// Event names published by the manager.
const (
	EventLoadStart    = "load_start"
	EventLoadDone     = "load_done"
	EventLoadError    = "load_error"
	EventInjectError  = "inject_error"
	EventDeviceSwitch = "device_switch"
	EventInferDone    = "infer_done"
	EventInferError   = "infer_error"
)

// Event is one manager lifecycle step. Events of the same load share an
// "op_id" field.
type Event struct {
	Name string
	// Model is the catalog name when known, otherwise the artifact path.
	Model  string
	Fields map[string]any
}

// EventPublisher receives events synchronously from the manager, sometimes
// under a model lock. Publish must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
