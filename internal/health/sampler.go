// Package health samples the current process's own CPU and memory
// usage, for the ambient netwatch_process_cpu_percent and
// netwatch_process_rss_bytes gauges described in SPEC_FULL.md §4.6.
package health

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is a point-in-time reading of this process's own resource use.
type Sample struct {
	CPUPercent float64
	RSSBytes   uint64
}

// Sampler caches the last reading so metrics exposition never blocks
// on a fresh gopsutil call; a background loop refreshes it on
// HEALTH_SAMPLE_INTERVAL_SEC.
type Sampler struct {
	proc *process.Process

	mu   sync.RWMutex
	last Sample
}

// NewSampler opens a handle on the current process. Returns an error
// only if gopsutil cannot resolve the running PID, which spec §7
// treats as a non-fatal startup condition (self-health is skipped,
// not the process).
func NewSampler() (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{proc: p}, nil
}

// Refresh takes a fresh reading and stores it. Call this once per
// HEALTH_SAMPLE_INTERVAL_SEC tick; gopsutil's CPUPercent is the average
// over the process's lifetime. A failed reading leaves the previous
// value in place and is not logged.
func (s *Sampler) Refresh() {
	cpuPct, cpuErr := s.proc.CPUPercent()
	memInfo, memErr := s.proc.MemoryInfo()

	s.mu.Lock()
	defer s.mu.Unlock()
	if cpuErr == nil {
		s.last.CPUPercent = cpuPct
	}
	if memErr == nil && memInfo != nil {
		s.last.RSSBytes = memInfo.RSS
	}
}

// Last returns the most recently cached sample.
func (s *Sampler) Last() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
