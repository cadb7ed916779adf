package cluster

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// ClusterView は到達可能な全ノードのある瞬間のビュー
// 毎回生成され、決して永続化・キャッシュされない
type ClusterView struct {
	Nodes       []NodeView
	CollectedAt time.Time
}

// Collect は全ノードの現在のビューを収集する
// 到達不能（終了済み）ノードはスキップされる
func Collect(ctx context.Context, ctrl Controller) (ClusterView, error) {
	view := ClusterView{CollectedAt: time.Now()}

	for _, id := range ctrl.Nodes() {
		nv, err := ctrl.Snapshot(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNodeTerminated) {
				continue
			}
			return ClusterView{}, errors.Wrapf(err, "failed to snapshot node %s", id)
		}
		view.Nodes = append(view.Nodes, nv)
	}

	// IDで安定ソート（ターゲット解決の決定性のため）
	sort.Slice(view.Nodes, func(i, j int) bool {
		return view.Nodes[i].NodeID < view.Nodes[j].NodeID
	})

	return view, nil
}

// Node はIDでノードビューを探す
func (v ClusterView) Node(id NodeID) (NodeView, bool) {
	for _, n := range v.Nodes {
		if n.NodeID == id {
			return n, true
		}
	}
	return NodeView{}, false
}

// PrimaryOf はシャードの生存プライマリを返す
func (v ClusterView) PrimaryOf(shard int) (NodeView, bool) {
	for _, n := range v.Nodes {
		if n.Shard == shard && n.Role == RolePrimary {
			return n, true
		}
	}
	return NodeView{}, false
}

// ReplicasOf はシャードの生存レプリカをID順で返す
func (v ClusterView) ReplicasOf(shard int) []NodeView {
	var replicas []NodeView
	for _, n := range v.Nodes {
		if n.Shard == shard && n.Role == RoleReplica {
			replicas = append(replicas, n)
		}
	}
	return replicas
}
