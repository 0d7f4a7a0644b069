package httpapi

import (
	"github.com/shirou/gopsutil/v4/mem"

	"tensord/pkg/types"
)

// virtualMemory is swapped out in tests.
var virtualMemory = mem.VirtualMemory

// fillHostMemory adds host memory figures to resp. Failures leave the
// fields empty.
func fillHostMemory(resp *types.StatusResponse) {
	vm, err := virtualMemory()
	if err != nil || vm == nil {
		return
	}
	resp.HostMemTotalMB = vm.Total / (1024 * 1024)
	resp.HostMemUsedPercent = vm.UsedPercent
}
