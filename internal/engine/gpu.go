package engine

import (
	"os/exec"
	"strings"
	"sync"
)

var (
	gpuOnce  sync.Once
	gpuFound bool
	// gpuProbe is swapped in tests.
	gpuProbe = detectNVIDIA
)

// ProbeGPU reports whether an NVIDIA GPU is visible. The result is cached
// for the life of the process.
func ProbeGPU() bool {
	gpuOnce.Do(func() { gpuFound = gpuProbe() })
	return gpuFound
}

// detectNVIDIA asks nvidia-smi for the list of devices.
func detectNVIDIA() bool {
	out, err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		// nvidia-smi missing or no driver
		return false
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	return false
}
