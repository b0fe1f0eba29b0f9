package admission

import (
	"time"

	"github.com/docker/go-units"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/pkg/container"
)

const (
	// bytesPerSlot maps available memory to parallel slots: one concurrent
	// generation per 2 GiB.
	bytesPerSlot = 2 * units.GiB

	minAutoParallel = 1
	maxAutoParallel = 16

	// fallbackParallel applies when available memory cannot be determined.
	fallbackParallel = 4
)

// detectMemory probes available memory once at startup and derives the auto
// parallel limit. Inside a container the probe sees host memory, not the
// cgroup limit; Source flags that so operators know to set an explicit limit.
func detectMemory() domain.MemoryReport {
	report := domain.MemoryReport{
		DetectedAt:   time.Now(),
		Source:       "fallback",
		AutoParallel: fallbackParallel,
		Fallback:     true,
	}

	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return report
	}

	report.TotalBytes = vm.Total
	report.AvailableBytes = vm.Available
	report.AutoParallel = slotsForMemory(vm.Available)
	report.Fallback = false
	report.Source = "system"
	if container.IsContainerised() {
		report.Source = "container"
	}
	return report
}

func slotsForMemory(available uint64) int {
	slots := int(available / uint64(bytesPerSlot))
	if slots < minAutoParallel {
		return minAutoParallel
	}
	if slots > maxAutoParallel {
		return maxAutoParallel
	}
	return slots
}
