package util

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	mib = 1 << 20
	gib = 1 << 30
)

// SystemInfo describes the machine a world runs on. It is logged at startup,
// tagged onto telemetry and reported by the API.
type SystemInfo struct {
	Platform    string        `json:"platform"`
	Hostname    string        `json:"hostname"`
	OS          string        `json:"os"`
	GoVersion   string        `json:"go_version"`
	CPUModel    string        `json:"cpu_model"`
	CPUCores    int           `json:"cpu_cores"`
	TotalMemory uint64        `json:"total_memory_mb"`
	HostUptime  time.Duration `json:"host_uptime"`
}

// GetSystemInfo collects what gopsutil can tell about the host. Lookups that
// fail leave their fields empty.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		CPUCores:  runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()

	if h, err := host.Info(); err == nil {
		info.OS = fmt.Sprintf("%s %s", h.Platform, h.PlatformVersion)
		info.HostUptime = time.Duration(h.Uptime) * time.Second
	}
	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total / mib
	}
	return info
}

// GetLocalIP returns the first IPv4 address of an interface that is up and
// not loopback, the address players on the LAN connect to. It falls back to
// 127.0.0.1.
func GetLocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "127.0.0.1", nil
}

// DiskUsage is the filesystem holding the player database, in GB.
type DiskUsage struct {
	Total       uint64  `json:"total_gb"`
	Used        uint64  `json:"used_gb"`
	Free        uint64  `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetDiskUsage reports the filesystem holding path.
func GetDiskUsage(path string) (*DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage of %s: %w", path, err)
	}
	return &DiskUsage{
		Total:       usage.Total / gib,
		Used:        usage.Used / gib,
		Free:        usage.Free / gib,
		UsedPercent: usage.UsedPercent,
	}, nil
}

// GetCPUUsage returns host CPU usage since the previous call, in percent.
func GetCPUUsage() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil || len(percentages) == 0 {
		return 0, err
	}
	return percentages[0], nil
}

// MemoryUsage is host memory in MB.
type MemoryUsage struct {
	Total       uint64  `json:"total_mb"`
	Used        uint64  `json:"used_mb"`
	Available   uint64  `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// GetMemoryUsage reports host memory.
func GetMemoryUsage() (*MemoryUsage, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}
	return &MemoryUsage{
		Total:       vm.Total / mib,
		Used:        vm.Used / mib,
		Available:   vm.Available / mib,
		UsedPercent: vm.UsedPercent,
	}, nil
}

// ProcessUsage is what the server process itself holds. Goroutines grow by
// two per connected client, so a leak shows up here first.
type ProcessUsage struct {
	PID        int32   `json:"pid"`
	RSS        uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
	HeapAlloc  uint64  `json:"heap_alloc_mb"`
	NumGC      uint32  `json:"num_gc"`
}

// GetProcessUsage reports the current process.
func GetProcessUsage() (*ProcessUsage, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect own process: %w", err)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usage := &ProcessUsage{
		PID:        proc.Pid,
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc / mib,
		NumGC:      ms.NumGC,
	}
	if mi, err := proc.MemoryInfo(); err == nil {
		usage.RSS = mi.RSS / mib
	}
	if pct, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = pct
	}
	if threads, err := proc.NumThreads(); err == nil {
		usage.Threads = threads
	}
	return usage, nil
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
