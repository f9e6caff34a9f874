package evaluation

import (
	"runtime"
	"time"
)

// Stats captures the performance of an evaluation run.
type Stats struct {
	StartedAt         time.Time     `json:"startedAt"`
	TotalDuration     time.Duration `json:"totalDuration"`
	LoadWaitDuration  time.Duration `json:"loadWaitDuration"`
	InferenceDuration time.Duration `json:"inferenceDuration"`
	Samples           int           `json:"samples"`
	Batches           int           `json:"batches"`
	SamplesPerSecond  float64       `json:"samplesPerSecond"`
	Memory            MemoryMetrics `json:"memory"`
}

// MemoryMetrics captures memory usage statistics at the end of a run.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"allocBytes"`
	TotalAllocBytes uint64 `json:"totalAllocBytes"`
	SysBytes        uint64 `json:"sysBytes"`
	NumGC           uint32 `json:"numGC"`
	HeapAllocBytes  uint64 `json:"heapAllocBytes"`
}

func readMemoryMetrics() MemoryMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryMetrics{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		SysBytes:        m.Sys,
		NumGC:           m.NumGC,
		HeapAllocBytes:  m.HeapAlloc,
	}
}

func (s *Stats) finish(now time.Time) {
	s.TotalDuration = now.Sub(s.StartedAt)
	if s.TotalDuration > 0 {
		s.SamplesPerSecond = float64(s.Samples) / s.TotalDuration.Seconds()
	}
	s.Memory = readMemoryMetrics()
}
