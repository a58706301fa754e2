package device

import (
	"devctl/internal/domain"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// HealthSampler reads CPU, memory and temperature figures from the host. The
// optional sensor is a single numeric sysfs attribute, e.g. an IIO channel.
type HealthSampler struct {
	sensorPath string
}

func NewHealthSampler(sensorPath string) *HealthSampler {
	return &HealthSampler{sensorPath: sensorPath}
}

func (h *HealthSampler) Snapshot() domain.HealthSnapshot {
	var snap domain.HealthSnapshot

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		snap.CPUFreqMHz = infos[0].Mhz
	} else if err != nil {
		log.Trace("CPU info unavailable", "err", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemFree = vm.Available
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.MemAlloc = ms.HeapAlloc

	// SensorsTemperatures may report partial results together with an error.
	temps, _ := host.SensorsTemperatures()
	for _, t := range temps {
		if t.Temperature > 0 {
			v := t.Temperature
			snap.Temperature = &v
			break
		}
	}

	if h.sensorPath != "" {
		if v, ok := readFloat(h.sensorPath); ok {
			snap.Sensor = &v
		}
	}
	return snap
}

func readFloat(path string) (float64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
