package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/scenario"
)

// OperatorConfig はオペレーション実行の設定
type OperatorConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultOperatorConfig はデフォルト設定を返す
func DefaultOperatorConfig() OperatorConfig {
	return OperatorConfig{
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Operator はシナリオのオペレーションをクラスタに適用する
type Operator struct {
	ctrl   Controller
	config OperatorConfig
}

// NewOperator は新しいOperatorを作成する
func NewOperator(ctrl Controller, config OperatorConfig) *Operator {
	return &Operator{
		ctrl:   ctrl,
		config: config,
	}
}

// Apply はオペレーションを実行する
// ターゲットは実行時点のクラスタビューから解決される
// （宣言時ではなく適用時のトポロジに従う）
func (o *Operator) Apply(ctx context.Context, op scenario.Operation) error {
	switch op.Type {
	case scenario.OpFailover:
		return o.applyFailover(ctx, op)
	default:
		return &OperationError{
			Op:     op,
			Reason: fmt.Sprintf("unsupported operation type: %s", op.Type),
		}
	}
}

func (o *Operator) applyFailover(ctx context.Context, op scenario.Operation) error {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &OperationError{Op: op, Reason: ctx.Err().Error()}
			case <-time.After(o.config.RetryInterval):
			}
		}

		target, err := o.resolveTarget(ctx, op)
		if err != nil {
			lastErr = err
			continue
		}

		logger.Info("operator", "Applying failover on node %s (shard %d, role %s)",
			target, op.Shard, op.Target)

		err = o.ctrl.TriggerFailover(ctx, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNodeTerminated) {
			// ターゲットが消えた: 次の試行で再解決する
			lastErr = err
			continue
		}
		lastErr = err
	}

	return &OperationError{
		Op:     op,
		Reason: fmt.Sprintf("failover on shard %d failed after %d attempts: %v",
			op.Shard, o.config.MaxRetries+1, lastErr),
	}
}

// resolveTarget はロールとシャードから実行時のターゲットノードを解決する
func (o *Operator) resolveTarget(ctx context.Context, op scenario.Operation) (NodeID, error) {
	view, err := Collect(ctx, o.ctrl)
	if err != nil {
		return "", err
	}

	switch op.Target {
	case scenario.TargetPrimary:
		if n, ok := view.PrimaryOf(op.Shard); ok {
			return n.NodeID, nil
		}
		return "", fmt.Errorf("shard %d has no live primary", op.Shard)
	case scenario.TargetReplica:
		replicas := view.ReplicasOf(op.Shard)
		if len(replicas) == 0 {
			return "", fmt.Errorf("shard %d has no live replica", op.Shard)
		}
		return replicas[0].NodeID, nil
	default:
		return "", fmt.Errorf("unknown target role: %s", op.Target)
	}
}
