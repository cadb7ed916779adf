package scenario

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// SlotCount は固定スロット空間のサイズ
const SlotCount = 16384

const (
	// MinShards はクラスタの最小シャード数
	MinShards = 3
	// MaxShards はクラスタの最大シャード数
	MaxShards = 16
	// MaxReplicasPerShard はシャードあたりの最大レプリカ数
	MaxReplicasPerShard = 2
)

// TargetRole は操作・カオスの対象ロールを表す
type TargetRole string

const (
	TargetPrimary TargetRole = "primary"
	TargetReplica TargetRole = "replica"
)

// OperationType は操作の種類を表す
type OperationType string

const (
	// OpFailover はシャードのフェイルオーバーを起動する操作
	OpFailover OperationType = "failover"
)

// ChaosType はカオスイベントの種類を表す
type ChaosType string

const (
	// ChaosProcessKill はノードプロセスへのシグナル送出
	ChaosProcessKill ChaosType = "process_kill"
)

// Signal は送出するプロセスシグナルを表す
type Signal string

const (
	SignalKill Signal = "SIGKILL"
	SignalTerm Signal = "SIGTERM"
)

// Timing は操作のスケジューリング方法を表す
type Timing string

const (
	TimingImmediate Timing = "immediate"
	TimingDelayed   Timing = "delayed"
)

// Coordination はカオスイベントとアンカー操作の時間関係を表す
type Coordination string

const (
	CoordImmediate       Coordination = "immediate"
	CoordBeforeOperation Coordination = "before_operation"
	CoordDuringOperation Coordination = "during_operation"
	CoordAfterOperation  Coordination = "after_operation"
)

// ClusterSpec はクラスタの形状を定義する
type ClusterSpec struct {
	NumShards        int
	ReplicasPerShard int
}

// NumNodes はクラスタの総ノード数を返す
func (c ClusterSpec) NumNodes() int {
	return c.NumShards * (1 + c.ReplicasPerShard)
}

// Operation はクラスタに対する操作を表す
type Operation struct {
	Type         OperationType
	Target       TargetRole
	Shard        int
	Timing       Timing
	DelaySeconds float64
}

// Delay は操作の遅延をDurationで返す
func (o Operation) Delay() time.Duration {
	return secondsToDuration(o.DelaySeconds)
}

// ChaosEvent はプロセスレベルの障害注入を表す
type ChaosEvent struct {
	Type         ChaosType
	Signal       Signal
	Target       TargetRole
	Shard        int
	Coordination Coordination
	DelaySeconds float64
}

// Delay はカオスイベントの遅延をDurationで返す
func (e ChaosEvent) Delay() time.Duration {
	return secondsToDuration(e.DelaySeconds)
}

// WorkloadSpec はクライアント負荷の設定
type WorkloadSpec struct {
	Enabled         bool
	Pattern         string
	Intensity       string
	DurationSeconds float64
}

// Duration は負荷生成時間をDurationで返す
func (w WorkloadSpec) Duration() time.Duration {
	return secondsToDuration(w.DurationSeconds)
}

// ReplicationSpec はレプリケーション検証の設定
type ReplicationSpec struct {
	MaxAcceptableLagSeconds float64
}

// MaxAcceptableLag は許容レプリケーション遅延をDurationで返す
func (r ReplicationSpec) MaxAcceptableLag() time.Duration {
	return secondsToDuration(r.MaxAcceptableLagSeconds)
}

// ValidationSpec は状態検証の設定
type ValidationSpec struct {
	CheckSlotCoverage        bool
	CheckReplication         bool
	CheckDataConsistency     bool
	ValidationTimeoutSeconds float64
	Replication              ReplicationSpec
}

// ValidationTimeout は収束待ちのタイムアウトをDurationで返す
func (v ValidationSpec) ValidationTimeout() time.Duration {
	return secondsToDuration(v.ValidationTimeoutSeconds)
}

// DefaultValidationSpec はデフォルトの検証設定を返す
func DefaultValidationSpec() ValidationSpec {
	return ValidationSpec{
		CheckSlotCoverage:        true,
		CheckReplication:         true,
		CheckDataConsistency:     true,
		ValidationTimeoutSeconds: 30,
		Replication: ReplicationSpec{
			MaxAcceptableLagSeconds: 5,
		},
	}
}

// Scenario はテストラン全体の再現可能な定義
// 一度構築されたら不変として扱う
type Scenario struct {
	ID         string
	Seed       int64
	Cluster    ClusterSpec
	Operations []Operation
	Chaos      []ChaosEvent
	Workload   *WorkloadSpec
	Validation ValidationSpec
}

// ScenarioID はシナリオIDを返す（未設定の場合はシードから導出）
func (s *Scenario) ScenarioID() string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("seed-%d", s.Seed)
}

// ValidationError はシナリオの構造的な不正を表す
// 実行前の致命的エラーとして扱われる
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid scenario: %s: %s", e.Field, e.Reason)
}

// IsValidationError はエラーがValidationErrorかどうかを判定する
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate はシナリオの整合性を検証する
func (s *Scenario) Validate() error {
	if s.Cluster.NumShards < MinShards || s.Cluster.NumShards > MaxShards {
		return &ValidationError{
			Field:  "cluster.num_shards",
			Reason: fmt.Sprintf("must be in [%d, %d], got %d", MinShards, MaxShards, s.Cluster.NumShards),
		}
	}
	if s.Cluster.ReplicasPerShard < 0 || s.Cluster.ReplicasPerShard > MaxReplicasPerShard {
		return &ValidationError{
			Field:  "cluster.replicas_per_shard",
			Reason: fmt.Sprintf("must be in [0, %d], got %d", MaxReplicasPerShard, s.Cluster.ReplicasPerShard),
		}
	}

	for i, op := range s.Operations {
		field := fmt.Sprintf("operations[%d]", i)
		if op.Type != OpFailover {
			return &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown operation type %q", op.Type)}
		}
		if op.Target != TargetPrimary && op.Target != TargetReplica {
			return &ValidationError{Field: field + ".target", Reason: fmt.Sprintf("unknown target %q", op.Target)}
		}
		if op.Shard < 0 || op.Shard >= s.Cluster.NumShards {
			return &ValidationError{
				Field:  field + ".shard",
				Reason: fmt.Sprintf("shard index %d out of range [0, %d)", op.Shard, s.Cluster.NumShards),
			}
		}
		if op.Timing != TimingImmediate && op.Timing != TimingDelayed {
			return &ValidationError{Field: field + ".timing", Reason: fmt.Sprintf("unknown timing %q", op.Timing)}
		}
		if op.DelaySeconds < 0 {
			return &ValidationError{Field: field + ".delay", Reason: "delay must be non-negative"}
		}
	}

	for i, ev := range s.Chaos {
		field := fmt.Sprintf("chaos[%d]", i)
		if ev.Type != ChaosProcessKill {
			return &ValidationError{Field: field + ".type", Reason: fmt.Sprintf("unknown chaos type %q", ev.Type)}
		}
		if ev.Signal != SignalKill && ev.Signal != SignalTerm {
			return &ValidationError{Field: field + ".signal", Reason: fmt.Sprintf("unknown signal %q", ev.Signal)}
		}
		if ev.Target != TargetPrimary && ev.Target != TargetReplica {
			return &ValidationError{Field: field + ".target", Reason: fmt.Sprintf("unknown target %q", ev.Target)}
		}
		if ev.Shard < 0 || ev.Shard >= s.Cluster.NumShards {
			return &ValidationError{
				Field:  field + ".shard",
				Reason: fmt.Sprintf("shard index %d out of range [0, %d)", ev.Shard, s.Cluster.NumShards),
			}
		}
		switch ev.Coordination {
		case CoordImmediate, CoordBeforeOperation, CoordDuringOperation, CoordAfterOperation:
		default:
			return &ValidationError{Field: field + ".coordination", Reason: fmt.Sprintf("unknown coordination %q", ev.Coordination)}
		}
		if ev.Coordination != CoordImmediate && len(s.Operations) == 0 {
			return &ValidationError{
				Field:  field + ".coordination",
				Reason: fmt.Sprintf("%s requires at least one operation to anchor to", ev.Coordination),
			}
		}
		if ev.DelaySeconds < 0 {
			return &ValidationError{Field: field + ".delay", Reason: "delay must be non-negative"}
		}
	}

	if s.Validation.ValidationTimeoutSeconds <= 0 {
		return &ValidationError{Field: "state_validation.validation_timeout", Reason: "timeout must be positive"}
	}
	if s.Validation.Replication.MaxAcceptableLagSeconds < 0 {
		return &ValidationError{Field: "state_validation.replication_config.max_acceptable_lag", Reason: "lag must be non-negative"}
	}

	return nil
}

// SlotRange はスロット空間の連続区間を表す（両端含む）
type SlotRange struct {
	Start int
	End   int
}

// Count は区間に含まれるスロット数を返す
func (r SlotRange) Count() int {
	return r.End - r.Start + 1
}

// Contains はスロットが区間に含まれるかを返す
func (r SlotRange) Contains(slot int) bool {
	return slot >= r.Start && slot <= r.End
}

func (r SlotRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// SlotRanges はスロット空間をnumShards個の連続・非重複・網羅的な区間に分割する
// 余りは先頭のシャードから1スロットずつ配分される
func SlotRanges(numShards int) []SlotRange {
	base := SlotCount / numShards
	extra := SlotCount % numShards

	ranges := make([]SlotRange, 0, numShards)
	start := 0
	for i := 0; i < numShards; i++ {
		size := base
		if i < extra {
			size++
		}
		ranges = append(ranges, SlotRange{Start: start, End: start + size - 1})
		start += size
	}
	return ranges
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
