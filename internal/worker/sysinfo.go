package worker

import (
	"os"
	"runtime"
	"strconv"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// collectInfo builds the advisory info hash published next to the heartbeat.
// All fields are best-effort: a host where gopsutil cannot read a metric
// simply omits it. Nothing here participates in liveness decisions.
func collectInfo(version, startedAt string) map[string]string {
	info := map[string]string{
		"pid":        strconv.Itoa(os.Getpid()),
		"version":    version,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"started_at": startedAt,
	}

	if hostname, err := os.Hostname(); err == nil {
		info["hostname"] = hostname
	}

	// Interval 0 reports usage since the previous call, which matches the
	// heartbeat cadence without blocking the tick.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = strconv.FormatFloat(percents[0], 'f', 1, 64)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info["mem_percent"] = strconv.FormatFloat(vm.UsedPercent, 'f', 1, 64)
	}

	return info
}
