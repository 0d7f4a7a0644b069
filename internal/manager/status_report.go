package manager

import (
	"sort"
	"time"

	"tensord/pkg/types"
)

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:     string(StateReady),
		LastError: m.lastErr,
	}
	if m.closed {
		resp.State = string(StateClosed)
	}
	models := make([]*loadedModel, 0, len(m.models))
	for _, lm := range m.models {
		models = append(models, lm)
	}
	hookFlags := make(map[string][3]bool, len(models))
	for _, lm := range models {
		_, pre := m.pre[lm.path]
		_, num := m.numeric[lm.path]
		_, txt := m.text[lm.path]
		hookFlags[lm.path] = [3]bool{pre, num, txt}
	}
	m.mu.RUnlock()

	// entry locks are taken only after the manager lock is released
	resp.Models = make([]types.ModelStatus, 0, len(models))
	for _, lm := range models {
		flags := hookFlags[lm.path]
		resp.Models = append(resp.Models, types.ModelStatus{
			Path:           lm.path,
			Model:          lm.name,
			Device:         lm.currentDevice().String(),
			LoadedAt:       lm.loadedAt.Unix(),
			LoadOpID:       lm.opID,
			Inferences:     lm.inferences.Load(),
			HasPreprocess:  flags[0],
			HasNumericHook: flags[1],
			HasTextHook:    flags[2],
		})
	}
	sort.Slice(resp.Models, func(i, j int) bool { return resp.Models[i].Path < resp.Models[j].Path })
	resp.GPUAvailable = m.runtime.GPUAvailable()
	resp.LoadsTotal = m.loadsTotal.Load()
	resp.InferencesTotal = m.inferencesTotal.Load()
	resp.UptimeSeconds = int64(time.Since(m.startTime) / time.Second)
	resp.ServerTimeUnix = time.Now().Unix()
	return resp
}
