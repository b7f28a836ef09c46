// Package benchmark - Measures detection cycles over a frame corpus.
package benchmark

import (
	"time"

	"github.com/montanaflynn/stats"
)

// PerformanceMetrics captures the outcome of one scenario.
type PerformanceMetrics struct {
	Scenario        Scenario       `json:"scenario"`
	Timestamp       time.Time      `json:"timestamp"`
	TotalDuration   time.Duration  `json:"total_duration"`
	FramesPerSecond float64        `json:"frames_per_second"`
	Latency         LatencyMetrics `json:"latency"`
	MemoryStats     MemoryMetrics  `json:"memory_stats"`
	NumCPU          int            `json:"num_cpu"`
	DetectionCount  int            `json:"detection_count"`
	Errors          int            `json:"errors"`
	ErrorRate       float64        `json:"error_rate"`
}

// LatencyMetrics summarizes per-cycle latency of successful cycles.
type LatencyMetrics struct {
	Mean time.Duration `json:"mean"`
	Min  time.Duration `json:"min"`
	Max  time.Duration `json:"max"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// summarizeLatency computes the latency summary. Percentiles use the nearest
// rank.
func summarizeLatency(samples []time.Duration) LatencyMetrics {
	if len(samples) == 0 {
		return LatencyMetrics{}
	}

	data := make(stats.Float64Data, len(samples))
	for i, s := range samples {
		data[i] = float64(s)
	}

	mean, _ := data.Mean()
	lo, _ := data.Min()
	hi, _ := data.Max()
	return LatencyMetrics{
		Mean: time.Duration(mean),
		Min:  time.Duration(lo),
		Max:  time.Duration(hi),
		P50:  percentile(data, 50),
		P95:  percentile(data, 95),
		P99:  percentile(data, 99),
	}
}

func percentile(data stats.Float64Data, p float64) time.Duration {
	v, err := stats.PercentileNearestRank(data, p)
	if err != nil {
		return 0
	}
	return time.Duration(v)
}
