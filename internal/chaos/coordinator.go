package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/scenario"
)

// DeliveryError はカオス送達の失敗を表す
type DeliveryError struct {
	Signal scenario.Signal
	Shard  int
	Reason string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("chaos delivery failed (%s, shard %d): %s", e.Signal, e.Shard, e.Reason)
}

// IsDeliveryError はerrがDeliveryErrorかどうかを判定する
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// KilledNode は送達済みシグナルで終了したノードの記録
// バリデータが未回収スロットを特定するために使う
type KilledNode struct {
	NodeID cluster.NodeID
	Shard  int
	Role   cluster.Role
	Slots  []scenario.SlotRange
	Signal scenario.Signal
}

// Config はコーディネータの設定
type Config struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxRetries:    2,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Coordinator はカオスイベントのシグナル送達を実行する
//
// ターゲットノードは送達時点のクラスタビューから解決される。
// シナリオ構築時ではなく送達時のロール割り当てに従うため、
// 先行するフェイルオーバーでロールが入れ替わっていても正しい
// ノードへ届く。同一ノードへの送達はノード単位で直列化される。
type Coordinator struct {
	ctrl   cluster.Controller
	config Config

	mu        sync.Mutex
	nodeLocks map[cluster.NodeID]*sync.Mutex
	killed    []KilledNode
}

// NewCoordinator は新しいCoordinatorを作成する
func NewCoordinator(ctrl cluster.Controller, config Config) *Coordinator {
	return &Coordinator{
		ctrl:      ctrl,
		config:    config,
		nodeLocks: make(map[cluster.NodeID]*sync.Mutex),
	}
}

// Deliver はカオスイベントを送達する
// 既に終了済みのノードへの送達は成功として扱う（冪等性）
func (c *Coordinator) Deliver(ctx context.Context, ev scenario.ChaosEvent) error {
	if ev.Type != scenario.ChaosProcessKill {
		return &DeliveryError{
			Signal: ev.Signal,
			Shard:  ev.Shard,
			Reason: fmt.Sprintf("unsupported chaos type: %s", ev.Type),
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &DeliveryError{Signal: ev.Signal, Shard: ev.Shard, Reason: ctx.Err().Error()}
			case <-time.After(c.config.RetryInterval):
			}
		}

		target, err := c.resolveTarget(ctx, ev)
		if err != nil {
			lastErr = err
			continue
		}

		err = c.signalNode(ctx, target, ev)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return &DeliveryError{
		Signal: ev.Signal,
		Shard:  ev.Shard,
		Reason: fmt.Sprintf("after %d attempts: %v", c.config.MaxRetries+1, lastErr),
	}
}

// signalNode は解決済みターゲットへシグナルを送出する
func (c *Coordinator) signalNode(ctx context.Context, target cluster.NodeView, ev scenario.ChaosEvent) error {
	lock := c.lockFor(target.NodeID)
	lock.Lock()
	defer lock.Unlock()

	logger.Info("chaos", "Delivering %s to node %s (shard %d, role %s)",
		ev.Signal, target.NodeID, target.Shard, target.Role)

	err := c.ctrl.Signal(ctx, target.NodeID, ev.Signal)
	if errors.Is(err, cluster.ErrNodeTerminated) {
		// 冪等: 既に死んでいるプロセスへの送達は成功
		logger.Debug("chaos", "Node %s already terminated, treating delivery as no-op", target.NodeID)
		return nil
	}
	if err != nil {
		return err
	}

	c.recordKill(target, ev.Signal)
	return nil
}

func (c *Coordinator) lockFor(id cluster.NodeID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, exists := c.nodeLocks[id]
	if !exists {
		lock = &sync.Mutex{}
		c.nodeLocks[id] = lock
	}
	return lock
}

func (c *Coordinator) recordKill(target cluster.NodeView, sig scenario.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slots := make([]scenario.SlotRange, len(target.OwnedSlots))
	copy(slots, target.OwnedSlots)

	c.killed = append(c.killed, KilledNode{
		NodeID: target.NodeID,
		Shard:  target.Shard,
		Role:   target.Role,
		Slots:  slots,
		Signal: sig,
	})
}

// Killed は送達により終了したノードの記録を返す
func (c *Coordinator) Killed() []KilledNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]KilledNode, len(c.killed))
	copy(out, c.killed)
	return out
}

// resolveTarget はロールとシャードから送達時点のターゲットを解決する
func (c *Coordinator) resolveTarget(ctx context.Context, ev scenario.ChaosEvent) (cluster.NodeView, error) {
	view, err := cluster.Collect(ctx, c.ctrl)
	if err != nil {
		return cluster.NodeView{}, err
	}

	switch ev.Target {
	case scenario.TargetPrimary:
		if n, ok := view.PrimaryOf(ev.Shard); ok {
			return n, nil
		}
		return cluster.NodeView{}, fmt.Errorf("shard %d has no live primary", ev.Shard)
	case scenario.TargetReplica:
		replicas := view.ReplicasOf(ev.Shard)
		if len(replicas) == 0 {
			return cluster.NodeView{}, fmt.Errorf("shard %d has no live replica", ev.Shard)
		}
		return replicas[0], nil
	default:
		return cluster.NodeView{}, fmt.Errorf("unknown target role: %s", ev.Target)
	}
}
