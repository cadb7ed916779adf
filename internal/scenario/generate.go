package scenario

import (
	"fmt"
	"math/rand"
)

// GenerateConfig はシード生成の範囲設定
type GenerateConfig struct {
	MaxOperations  int // 操作数の上限（最低1は常に生成される）
	MaxChaosEvents int // カオスイベント数の上限
}

// DefaultGenerateConfig はデフォルト設定を返す
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MaxOperations:  3,
		MaxChaosEvents: 3,
	}
}

// Generate はシードから決定論的にシナリオを生成する
//
// 再現性の要: 全ての選択は単一の*rand.Randストリームから固定順序で引かれる。
// 引く順序は以下で固定されており、変更は互換性を壊す:
//
//  1. num_shards
//  2. replicas_per_shard
//  3. 操作数、操作ごとに (shard, target, timing, delay)
//  4. カオスイベント数、イベントごとに (signal, target, shard, coordination, delay)
//
// 同じシードからの生成結果はフィールド単位で完全に一致する。
func Generate(seed int64) (*Scenario, error) {
	return GenerateWithConfig(seed, DefaultGenerateConfig())
}

// GenerateWithConfig は範囲設定を指定してシナリオを生成する
func GenerateWithConfig(seed int64, cfg GenerateConfig) (*Scenario, error) {
	rng := rand.New(rand.NewSource(seed))

	s := &Scenario{
		ID:   fmt.Sprintf("seed-%d", seed),
		Seed: seed,
		Cluster: ClusterSpec{
			NumShards:        MinShards + rng.Intn(MaxShards-MinShards+1),
			ReplicasPerShard: rng.Intn(MaxReplicasPerShard + 1),
		},
		Validation: DefaultValidationSpec(),
	}

	opCount := 1 + rng.Intn(cfg.MaxOperations)
	for i := 0; i < opCount; i++ {
		op := Operation{
			Type:   OpFailover,
			Shard:  rng.Intn(s.Cluster.NumShards),
			Target: drawTarget(rng),
		}
		if rng.Intn(2) == 0 {
			op.Timing = TimingImmediate
		} else {
			op.Timing = TimingDelayed
			// 0.1秒刻みで0.1〜3.0秒
			op.DelaySeconds = float64(1+rng.Intn(30)) / 10
		}
		s.Operations = append(s.Operations, op)
	}

	// chaosCountが0の場合はnilのまま（DSLラウンドトリップで省略される）
	chaosCount := rng.Intn(cfg.MaxChaosEvents + 1)
	for i := 0; i < chaosCount; i++ {
		ev := ChaosEvent{
			Type:   ChaosProcessKill,
			Signal: drawSignal(rng),
			Target: drawTarget(rng),
			Shard:  rng.Intn(s.Cluster.NumShards),
		}
		switch rng.Intn(4) {
		case 0:
			ev.Coordination = CoordImmediate
		case 1:
			ev.Coordination = CoordBeforeOperation
		case 2:
			ev.Coordination = CoordDuringOperation
		case 3:
			ev.Coordination = CoordAfterOperation
		}
		// 0.1秒刻みで0〜2.0秒
		ev.DelaySeconds = float64(rng.Intn(21)) / 10
		s.Chaos = append(s.Chaos, ev)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// drawTarget はプライマリ寄りの重み付きでロールを引く
func drawTarget(rng *rand.Rand) TargetRole {
	if rng.Intn(4) < 3 {
		return TargetPrimary
	}
	return TargetReplica
}

func drawSignal(rng *rand.Rand) Signal {
	if rng.Intn(2) == 0 {
		return SignalKill
	}
	return SignalTerm
}
