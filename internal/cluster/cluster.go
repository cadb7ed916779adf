// Package cluster provides the cluster control capability and views.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"cluster-fuzz/internal/scenario"
)

// NodeID はノードの識別子
type NodeID string

// Role はノードのロールを表す
type Role string

const (
	RolePrimary Role = "primary"
	RoleReplica Role = "replica"
)

// NodeSpec はノードの起動仕様
type NodeSpec struct {
	ID      NodeID
	Address string
	Role    Role
	Shard   int
	Slots   []scenario.SlotRange
}

// PeerView はノードが認識している他ノードの情報
type PeerView struct {
	NodeID NodeID
	Role   Role
	Shard  int
}

// NodeView はノードの状態のある時点でのスナップショット
// 読み取り専用であり、キャッシュしてはならない
type NodeView struct {
	NodeID         NodeID
	Address        string
	Role           Role
	Shard          int
	OwnedSlots     []scenario.SlotRange
	ReplicationLag time.Duration
	PeerViews      []PeerView
}

// Controller はクラスタ制御の能力インターフェース
// 実際のプロセス管理はオーケストレータ側の実装が担い、
// コアはこの能力を通してのみクラスタに触れる
type Controller interface {
	// Form はクラスタを形成する
	Form(ctx context.Context, spec scenario.ClusterSpec) error
	// Spawn はノードプロセスを起動する
	Spawn(ctx context.Context, spec NodeSpec) (NodeID, error)
	// Signal はノードプロセスへシグナルを送出する
	Signal(ctx context.Context, id NodeID, sig scenario.Signal) error
	// Snapshot はノードの現在のビューを取得する
	Snapshot(ctx context.Context, id NodeID) (NodeView, error)
	// TriggerFailover はノードに対してフェイルオーバーを指示する
	// レプリカに指示した場合はそのレプリカが昇格し、
	// プライマリに指示した場合はそのシャードの生存レプリカが昇格する
	TriggerFailover(ctx context.Context, id NodeID) error
	// Nodes は既知の全ノードIDを返す（終了済みを含む）
	Nodes() []NodeID
}

// LogReader はノードのログを読み取れるController実装が満たす追加能力
type LogReader interface {
	Logs(ctx context.Context, id NodeID) ([]string, error)
}

// DataPlane はキー空間への読み書き能力
// カナリアキーの書き込み・検証（ワークロードクライアント）が使用する
type DataPlane interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
}

var (
	// ErrNodeNotFound は未知のノードIDに対するエラー
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeTerminated は終了済みノードへの操作に対するエラー
	ErrNodeTerminated = errors.New("node already terminated")
	// ErrKeyUnreachable は担当プライマリ不在のためキーへ到達できないエラー
	ErrKeyUnreachable = errors.New("key unreachable: shard has no live primary")
)

// FormationError はクラスタ形成の失敗を表す
// 致命的であり、検証は行われずランは中断される
type FormationError struct {
	Reason string
	Err    error
}

func (e *FormationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cluster formation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cluster formation failed: %s", e.Reason)
}

func (e *FormationError) Unwrap() error {
	return e.Err
}

// IsFormationError はエラーがFormationErrorかどうかを判定する
func IsFormationError(err error) bool {
	var fe *FormationError
	return errors.As(err, &fe)
}

// OperationError は操作の適用失敗を表す
// 記録されるがランは継続する（非致命的）
type OperationError struct {
	Op     scenario.Operation
	Reason string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s on shard %d failed: %s", e.Op.Type, e.Op.Shard, e.Reason)
}

// IsOperationError はエラーがOperationErrorかどうかを判定する
func IsOperationError(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe)
}
