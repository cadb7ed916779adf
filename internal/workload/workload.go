package workload

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/metrics"
	"cluster-fuzz/internal/scenario"
	"cluster-fuzz/internal/worker"
)

// Config はClientの設定
type Config struct {
	NumWorkers  int // ワーカー数（0で既定値）
	CanaryCount int // カナリアキー数
	KeyRange    int // 負荷キーの範囲（0〜KeyRange-1）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		NumWorkers:  4,
		CanaryCount: 64,
		KeyRange:    10000,
	}
}

// Client はカナリアキーの書き込み・検証と負荷生成を行う
type Client struct {
	config  Config
	data    cluster.DataPlane
	pool    *worker.Pool
	latency *metrics.Latency

	mu       sync.Mutex
	canaries map[string]string

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New は新しいClientを作成する
func New(data cluster.DataPlane, config Config) *Client {
	if config.CanaryCount <= 0 {
		config.CanaryCount = DefaultConfig().CanaryCount
	}
	return &Client{
		config:   config,
		data:     data,
		pool:     worker.NewPool(worker.PoolConfig{NumExecutors: config.NumWorkers}),
		latency:  metrics.NewLatency(),
		canaries: make(map[string]string),
	}
}

// WriteCanaries はカオス注入前にカナリアキー一式を書き込む
// キーはスロット空間に散らばるよう連番で振られる
func (c *Client) WriteCanaries(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < c.config.CanaryCount; i++ {
		key := fmt.Sprintf("canary-%d", i)
		value := fmt.Sprintf("canary-value-%d", i)
		if err := c.data.Put(ctx, key, value); err != nil {
			return fmt.Errorf("writing canary %s: %w", key, err)
		}
		c.canaries[key] = value
	}

	logger.Info("workload", "Wrote %d canary keys", len(c.canaries))
	return nil
}

// ReadCanaries は書き込み済みカナリアキーを読み戻し、
// 到達不能または値の不一致だったキー数を返す
func (c *Client) ReadCanaries(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	missing := 0
	for key, want := range c.canaries {
		got, err := c.data.Get(ctx, key)
		if err != nil || got != want {
			missing++
		}
	}

	if missing > 0 {
		logger.Warn("workload", "%d of %d canary keys unreachable or corrupted",
			missing, len(c.canaries))
	}
	return missing
}

// CanaryCount は書き込み済みカナリアキー数を返す
func (c *Client) CanaryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.canaries)
}

// Start は負荷生成を開始する
func (c *Client) Start(ctx context.Context, spec scenario.WorkloadSpec) {
	if !spec.Enabled || c.running.Swap(true) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.pool.Start(runCtx)

	writeRatio := writeRatioFor(spec.Pattern)
	interval := intervalFor(spec.Intensity)

	logger.Info("workload", "Traffic started (pattern: %s, intensity: %s)",
		spec.Pattern, spec.Intensity)

	c.wg.Add(1)
	go c.generate(runCtx, writeRatio, interval, spec.Duration())
}

// generate はリクエストを生成し続ける
func (c *Client) generate(ctx context.Context, writeRatio float64, interval, duration time.Duration) {
	defer c.wg.Done()

	deadline := time.Now().Add(duration)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for duration <= 0 || time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		key := fmt.Sprintf("key-%d", rng.Intn(c.config.KeyRange))
		isWrite := rng.Float64() < writeRatio

		if !c.pool.Submit(c.request(key, isWrite)) {
			return
		}
	}
}

// request はリクエストタスクを作成する
func (c *Client) request(key string, isWrite bool) worker.Task {
	return func(ctx context.Context) {
		start := time.Now()
		var err error

		if isWrite {
			err = c.data.Put(ctx, key, fmt.Sprintf("value-%d", start.UnixNano()))
		} else {
			_, err = c.data.Get(ctx, key)
		}

		elapsed := time.Since(start)
		if err != nil {
			c.latency.RecordFailure(elapsed)
		} else {
			c.latency.RecordSuccess(elapsed)
		}
	}
}

// Stop は負荷生成を停止する
func (c *Client) Stop() {
	if !c.running.Swap(false) {
		return
	}

	c.cancel()
	c.wg.Wait()
	c.pool.Stop()

	logger.Info("workload", "Traffic stopped")
}

// IsRunning は実行中かどうかを返す
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// Latency はレイテンシメトリクスのスナップショットを返す
func (c *Client) Latency() metrics.Snapshot {
	return c.latency.Snapshot()
}

// writeRatioFor は負荷パターンをWrite比率に写像する
func writeRatioFor(pattern string) float64 {
	switch pattern {
	case "read_heavy":
		return 0.1
	case "write_heavy":
		return 0.9
	default: // mixed
		return 0.5
	}
}

// intervalFor は強度をリクエスト間隔に写像する
func intervalFor(intensity string) time.Duration {
	switch intensity {
	case "high":
		return time.Millisecond
	case "low":
		return 50 * time.Millisecond
	default: // medium
		return 10 * time.Millisecond
	}
}
