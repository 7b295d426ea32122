package profile

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// CollectSystemInfo probes the host hardware for the settings screen.
// Individual probe failures leave the matching fields empty rather than
// failing the whole snapshot.
func CollectSystemInfo() SystemInfo {
	info := SystemInfo{
		Platform: runtime.GOOS,
		CPUCores: runtime.NumCPU(),
	}

	if h, err := host.Info(); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.OSVersion = h.PlatformVersion
		info.UptimeSec = h.Uptime
	}
	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
		info.UsedPercent = vm.UsedPercent
	}
	return info
}
