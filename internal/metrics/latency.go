package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Latency は負荷リクエストの結果とレイテンシを収集する
type Latency struct {
	total          atomic.Uint64
	success        atomic.Uint64
	failed         atomic.Uint64
	totalLatencyNs atomic.Uint64

	mu         sync.RWMutex
	startTime  time.Time
	samples    []time.Duration
	maxSamples int
}

// NewLatency は新しいレイテンシ収集器を作成する
func NewLatency() *Latency {
	return &Latency{
		startTime:  time.Now(),
		samples:    make([]time.Duration, 0, 1000),
		maxSamples: 1000,
	}
}

// RecordSuccess は成功したリクエストを記録する
func (l *Latency) RecordSuccess(latency time.Duration) {
	l.record(latency)
	l.success.Add(1)
}

// RecordFailure は失敗したリクエストを記録する
func (l *Latency) RecordFailure(latency time.Duration) {
	l.record(latency)
	l.failed.Add(1)
}

func (l *Latency) record(latency time.Duration) {
	l.total.Add(1)
	l.totalLatencyNs.Add(uint64(latency.Nanoseconds()))

	l.mu.Lock()
	if len(l.samples) < l.maxSamples {
		l.samples = append(l.samples, latency)
	}
	l.mu.Unlock()
}

// TotalRequests は総リクエスト数を返す
func (l *Latency) TotalRequests() uint64 {
	return l.total.Load()
}

// FailedRequests は失敗リクエスト数を返す
func (l *Latency) FailedRequests() uint64 {
	return l.failed.Load()
}

// ErrorRate はエラー率を返す（0.0〜1.0）
func (l *Latency) ErrorRate() float64 {
	total := l.total.Load()
	if total == 0 {
		return 0
	}
	return float64(l.failed.Load()) / float64(total)
}

// AverageLatency は平均レイテンシを返す
func (l *Latency) AverageLatency() time.Duration {
	total := l.total.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(l.totalLatencyNs.Load() / total)
}

// P99Latency はP99レイテンシを返す（サンプルベース）
func (l *Latency) P99Latency() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(l.samples))
	copy(sorted, l.samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot はレイテンシメトリクスのスナップショット
type Snapshot struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	AverageLatency  time.Duration `json:"average_latency"`
	P99Latency      time.Duration `json:"p99_latency"`
	ErrorRate       float64       `json:"error_rate"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (l *Latency) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:   l.total.Load(),
		SuccessRequests: l.success.Load(),
		FailedRequests:  l.failed.Load(),
		AverageLatency:  l.AverageLatency(),
		P99Latency:      l.P99Latency(),
		ErrorRate:       l.ErrorRate(),
		Elapsed:         time.Since(l.startTime),
	}
}
