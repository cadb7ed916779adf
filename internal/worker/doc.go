// Package worker provides an executor pool for concurrently running
// scheduled actions and workload traffic.
//
// The Pool keeps a fixed number of executor goroutines that process
// tasks from a shared queue. Tasks receive the pool context and are
// expected to return promptly once it is cancelled.
//
// # Basic Usage
//
//	pool := worker.NewPool(worker.PoolConfig{NumExecutors: 8})
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	pool.Submit(func(ctx context.Context) {
//		// do work
//	})
//	pool.Wait()
//
// Tasks that block on each other must be submitted to a pool with at
// least as many executors as tasks, so that no task waits in the queue
// behind the task it depends on.
package worker
