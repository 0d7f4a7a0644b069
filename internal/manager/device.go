package manager

import (
	"fmt"

	"tensord/internal/engine"
)

// SetDevice moves a loaded model to d and reports whether it now runs
// there. Only CPU-to-GPU moves exist: an uncached path, a CPU request or a
// missing GPU all report false. A runtime failure during the move reports
// false with a device-unavailable error.
func (m *Manager) SetDevice(path string, d engine.Device) (bool, error) {
	lm := m.cached(path)
	if lm == nil || d != engine.GPU {
		return false, nil
	}
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.device == engine.GPU {
		return true, nil
	}
	if !m.runtime.GPUAvailable() {
		return false, nil
	}
	if err := lm.module.To(engine.GPU); err != nil {
		m.log.Warn().Str("event", "device_switch_error").Str("path", path).Err(err).Msg("manager")
		return false, deviceUnavailableError{msg: fmt.Sprintf("move model %s to gpu failed: %v", path, err), cause: err}
	}
	lm.module.Eval()
	lm.device = engine.GPU
	m.log.Info().Str("event", "device_switch").Str("path", path).Str("device", "gpu").Msg("manager")
	m.publish(Event{Name: EventDeviceSwitch, Model: lm.label(), Fields: map[string]any{"device": engine.GPU.String()}})
	return true, nil
}

// Device reports the device of a loaded model.
func (m *Manager) Device(path string) (engine.Device, bool) {
	lm := m.cached(path)
	if lm == nil {
		return engine.CPU, false
	}
	return lm.currentDevice(), true
}
