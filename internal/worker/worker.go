package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"cluster-fuzz/internal/logger"
)

// Task は実行器が実行するタスクを表す
// タスクはプールのコンテキストを受け取り、キャンセルに協調する
type Task func(ctx context.Context)

// PoolConfig は実行器プールの設定
type PoolConfig struct {
	NumExecutors int // 実行器数（0で既定値）
	QueueSize    int // キューサイズ（0で実行器数と同じ）
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumExecutors: 8,
	}
}

// Pool はスケジュール済みアクションを並行実行する実行器プール
//
// タイムライン上のアクションは互いの完了を待つことがあるため、
// プールはアクション総数以上の実行器で構成する。これにより
// 依存待ちのタスクがキューを詰まらせてデッドロックすることはない。
type Pool struct {
	numExecutors int
	tasks        chan Task
	wg           sync.WaitGroup
	inFlight     sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	started      bool
	stopping     atomic.Bool
	mu           sync.Mutex
}

// NewPool は新しい実行器プールを作成する
func NewPool(config PoolConfig) *Pool {
	numExecutors := config.NumExecutors
	if numExecutors <= 0 {
		numExecutors = DefaultPoolConfig().NumExecutors
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = numExecutors
	}
	return &Pool{
		numExecutors: numExecutors,
		tasks:        make(chan Task, queueSize),
	}
}

// Start は実行器プールを起動する
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := 0; i < p.numExecutors; i++ {
		p.wg.Add(1)
		go p.executor()
	}

	logger.Debug("worker", "Executor pool started with %d executors", p.numExecutors)
}

// executor は個々の実行器ゴルーチン
func (p *Pool) executor() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(p.ctx)
			p.inFlight.Done()
		}
	}
}

// drain はキャンセル後にキューへ残ったタスクを消化する
// タスクはキャンセル済みコンテキストを観測して即座に戻る
func (p *Pool) drain() {
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(p.ctx)
			p.inFlight.Done()
		default:
			return
		}
	}
}

// Submit はタスクを送信する
// キューに空きがなければブロックし、プール停止時はfalseを返す
func (p *Pool) Submit(task Task) bool {
	if p.stopping.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	p.inFlight.Add(1)
	// 両ケースが同時に選択可能なときselectはランダムに選ぶため、
	// キャンセル済みなら送信せず先に抜ける
	select {
	case <-p.ctx.Done():
		p.inFlight.Done()
		return false
	default:
	}
	select {
	case <-p.ctx.Done():
		p.inFlight.Done()
		return false
	case p.tasks <- task:
		// 送信とキャンセルが入れ違った場合は実行器が既に
		// 退出している可能性があるため、送信側がキューを消化する
		if p.ctx.Err() != nil {
			p.drain()
		}
		return true
	}
}

// NumExecutors は実行器数を返す
func (p *Pool) NumExecutors() int {
	return p.numExecutors
}

// Wait は送信済みタスクが全て完了するまでブロックする
func (p *Pool) Wait() {
	p.inFlight.Wait()
}

// Stop は実行器プールを停止する
// 実行中のタスクにはコンテキストのキャンセルが伝播する
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.stopping.Store(true)
	p.cancel()
	p.wg.Wait()

	// 全実行器の退出後にSubmitがキューへ滑り込んだ場合に備えて
	// 最後にもう一度キューを消化する
	p.drain()

	p.mu.Lock()
	p.started = false
	p.stopping.Store(false)
	p.mu.Unlock()

	logger.Debug("worker", "Executor pool stopped")
}
