package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPoolDefaults(t *testing.T) {
	pool := NewPool(PoolConfig{NumExecutors: 4})
	if pool.NumExecutors() != 4 {
		t.Errorf("expected 4 executors, got %d", pool.NumExecutors())
	}

	// Zero should use the default
	pool2 := NewPool(PoolConfig{})
	if pool2.NumExecutors() != DefaultPoolConfig().NumExecutors {
		t.Errorf("expected %d executors, got %d",
			DefaultPoolConfig().NumExecutors, pool2.NumExecutors())
	}
}

func TestPoolStartStop(t *testing.T) {
	pool := NewPool(PoolConfig{NumExecutors: 2})
	ctx := context.Background()

	pool.Start(ctx)
	// Double start should be no-op
	pool.Start(ctx)

	pool.Stop()
	// Double stop should be no-op
	pool.Stop()
}

func TestPoolSubmitAndWait(t *testing.T) {
	pool := NewPool(PoolConfig{NumExecutors: 2, QueueSize: 16})
	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	var counter atomic.Int32
	for i := 0; i < 10; i++ {
		if !pool.Submit(func(ctx context.Context) {
			counter.Add(1)
		}) {
			t.Error("expected Submit to return true")
		}
	}

	pool.Wait()
	if counter.Load() != 10 {
		t.Errorf("expected 10 tasks completed, got %d", counter.Load())
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := NewPool(PoolConfig{NumExecutors: 2})
	ctx := context.Background()
	pool.Start(ctx)
	pool.Stop()

	if pool.Submit(func(ctx context.Context) {}) {
		t.Error("expected Submit to return false after stop")
	}
}

func TestPoolContextCancelPropagates(t *testing.T) {
	pool := NewPool(PoolConfig{NumExecutors: 2})
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	defer pool.Stop()

	started := make(chan struct{})
	cancelled := make(chan struct{})

	pool.Submit(func(taskCtx context.Context) {
		close(started)
		<-taskCtx.Done()
		close(cancelled)
	})

	<-started
	cancel()

	select {
	case <-cancelled:
		// Success
	case <-time.After(time.Second):
		t.Error("timeout waiting for cancellation to propagate")
	}
}

func TestPoolDependentTasks(t *testing.T) {
	// タスクが互いの完了を待っても実行器数が足りれば進行する
	pool := NewPool(PoolConfig{NumExecutors: 2})
	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	first := make(chan struct{})
	var order []int
	done := make(chan struct{})

	pool.Submit(func(ctx context.Context) {
		<-first
		order = append(order, 2)
		close(done)
	})
	pool.Submit(func(ctx context.Context) {
		order = append(order, 1)
		close(first)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for dependent tasks")
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected order [1 2], got %v", order)
	}
}

func TestPoolWaitSettlesWithConcurrentStop(t *testing.T) {
	// 停止と送信が競合してもWaitが漏れたカウントで固まらないこと
	for round := 0; round < 20; round++ {
		pool := NewPool(PoolConfig{NumExecutors: 2, QueueSize: 4})
		pool.Start(context.Background())

		var executed atomic.Int32
		submitDone := make(chan struct{})
		go func() {
			defer close(submitDone)
			for i := 0; i < 50; i++ {
				if !pool.Submit(func(ctx context.Context) {
					executed.Add(1)
				}) {
					return
				}
			}
		}()

		pool.Stop()
		<-submitDone

		settled := make(chan struct{})
		go func() {
			pool.Wait()
			close(settled)
		}()
		select {
		case <-settled:
		case <-time.After(time.Second):
			t.Fatalf("round %d: Wait did not settle after Stop", round)
		}
	}
}
