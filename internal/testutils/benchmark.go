package testutils

import (
	"runtime"
	"testing"
)

// BenchmarkTracker 基准测试内存统计
type BenchmarkTracker struct {
	B        *testing.B
	startMem runtime.MemStats
}

// StartBenchmark 开始基准测试并记录内存基线
func StartBenchmark(b *testing.B) *BenchmarkTracker {
	tracker := &BenchmarkTracker{B: b}
	runtime.GC()
	runtime.ReadMemStats(&tracker.startMem)
	b.ResetTimer()
	return tracker
}

// Finish 结束基准测试并上报内存指标
func (t *BenchmarkTracker) Finish() {
	t.B.StopTimer()
	var end runtime.MemStats
	runtime.ReadMemStats(&end)
	if t.B.N > 0 {
		allocs := float64(end.Mallocs-t.startMem.Mallocs) / float64(t.B.N)
		bytes := float64(end.TotalAlloc-t.startMem.TotalAlloc) / float64(t.B.N)
		t.B.ReportMetric(allocs, "allocs/op")
		t.B.ReportMetric(bytes, "alloc-bytes/op")
	}
	t.B.ReportMetric(float64(end.NumGC-t.startMem.NumGC), "gc-runs")
}
