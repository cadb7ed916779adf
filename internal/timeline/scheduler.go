package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cluster-fuzz/internal/events"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/scenario"
	"cluster-fuzz/internal/worker"
)

// TimeoutError はシナリオ全体のタイムアウトを表す
// 実行中の項目は打ち切られ、未実行の項目はCANCELLEDとして記録される
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scenario timed out after %s", e.Timeout)
}

// IsTimeoutError はerrがTimeoutErrorかどうかを判定する
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Config はスケジューラの設定
type Config struct {
	ScenarioTimeout time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		ScenarioTimeout: 60 * time.Second,
	}
}

// Scheduler は解決済みタイムラインを単一の単調時計に対して実行する
//
// 各項目は独立したタスクとして並行に起動される。項目同士は
// 可変状態を共有せず、追記専用のイベントログにのみ書き込む。
// 操作やカオス送達の失敗は記録されるが残りのタイムラインを
// 中断しない。部分的な失敗の帰結を観測することが目的のため、
// 実行は常に検証フェーズまで進む。
type Scheduler struct {
	applier   Applier
	deliverer Deliverer
	bus       *events.Bus
	config    Config
}

// NewScheduler は新しいSchedulerを作成する
// busはnilでもよい（イベント配信なし）
func NewScheduler(applier Applier, deliverer Deliverer, bus *events.Bus, config Config) *Scheduler {
	return &Scheduler{
		applier:   applier,
		deliverer: deliverer,
		bus:       bus,
		config:    config,
	}
}

// Run はシナリオのタイムラインを実行し、イベントログを返す
// タイムアウト時は部分的なログとTimeoutErrorを返す
func (s *Scheduler) Run(ctx context.Context, scn *scenario.Scenario) ([]EventLogEntry, error) {
	actions, err := Resolve(scn)
	if err != nil {
		return nil, err
	}

	log := &EventLog{}
	if len(actions) == 0 {
		return log.Entries(), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.config.ScenarioTimeout)
	defer cancel()

	// 項目は互いの完了を待つことがあるため、全項目を同時に
	// 走らせられるサイズのプールでデッドロックを避ける
	pool := worker.NewPool(worker.PoolConfig{
		NumExecutors: len(actions),
		QueueSize:    len(actions),
	})
	pool.Start(runCtx)
	defer pool.Stop()

	logger.Info("timeline", "Starting timeline: %d actions (%d operations, %d chaos events)",
		len(actions), len(scn.Operations), len(scn.Chaos))

	start := time.Now()
	results := make(chan struct{}, len(actions))

	for _, a := range actions {
		a := a
		submitted := pool.Submit(func(taskCtx context.Context) {
			s.runAction(taskCtx, a, start, log)
			results <- struct{}{}
		})
		if !submitted {
			s.appendCancelled(log, a, "not dispatched: timeline already cancelled")
			results <- struct{}{}
		}
	}

	for i := 0; i < len(actions); i++ {
		<-results
	}

	entries := log.Entries()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		logger.Warn("timeline", "Scenario timed out after %s", s.config.ScenarioTimeout)
		return entries, &TimeoutError{Timeout: s.config.ScenarioTimeout}
	}
	if ctx.Err() != nil {
		return entries, ctx.Err()
	}

	logger.Info("timeline", "Timeline completed: %d entries", len(entries))
	return entries, nil
}

// runAction は単一項目を起動時刻と依存関係に従って実行する
func (s *Scheduler) runAction(ctx context.Context, a *Action, start time.Time, log *EventLog) {
	defer close(a.done)

	// 起動時刻まで待機
	if wait := time.Until(start.Add(a.Offset)); wait > 0 {
		select {
		case <-ctx.Done():
			s.appendCancelled(log, a, "cancelled before dispatch")
			return
		case <-time.After(wait):
		}
	}

	// 依存項目の完了を待機
	for _, dep := range a.waitFor {
		select {
		case <-ctx.Done():
			s.appendCancelled(log, a, "cancelled while waiting for "+dep.ID)
			return
		case <-dep.Done():
		}
	}

	if a.extraDelay > 0 {
		select {
		case <-ctx.Done():
			s.appendCancelled(log, a, "cancelled before dispatch")
			return
		case <-time.After(a.extraDelay):
		}
	}

	entry := EventLogEntry{
		Kind:      a.Kind,
		ID:        a.ID,
		StartedAt: time.Now(),
	}

	var err error
	switch a.Kind {
	case KindOperation:
		s.publish(events.NewOperationStartedEvent(a.ID, describeTarget(a.Operation.Target, a.Operation.Shard)))
		err = s.applier.Apply(ctx, *a.Operation)
	case KindChaos:
		err = s.deliverer.Deliver(ctx, *a.Chaos)
	}

	entry.CompletedAt = time.Now()
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
		logger.Warn("timeline", "Action %s failed: %v", a.ID, err)
	} else {
		entry.Status = StatusSuccess
	}
	log.Append(entry)

	switch a.Kind {
	case KindOperation:
		s.publish(events.NewOperationCompletedEvent(a.ID, string(entry.Status), err))
	case KindChaos:
		if err != nil {
			s.publish(events.NewChaosFailedEvent(a.ID, err))
		} else {
			s.publish(events.NewChaosDeliveredEvent(a.ID,
				describeTarget(a.Chaos.Target, a.Chaos.Shard), string(a.Chaos.Signal)))
		}
	}
}

func (s *Scheduler) appendCancelled(log *EventLog, a *Action, reason string) {
	log.Append(EventLogEntry{
		Kind:   a.Kind,
		ID:     a.ID,
		Status: StatusCancelled,
		Error:  reason,
	})
}

func (s *Scheduler) publish(event events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

func describeTarget(role scenario.TargetRole, shard int) string {
	return fmt.Sprintf("shard%d/%s", shard, role)
}
