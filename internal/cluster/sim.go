package cluster

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/scenario"
)

// SimConfig はシミュレートクラスタの挙動設定
// 検証ロジックの失敗経路をテストするための注入ポイントを含む
type SimConfig struct {
	FailFormation       bool            // Formを常に失敗させる
	FrozenReplicaShards []int           // これらのシャードのレプリカは遅延が増え続ける
	FailoverFailShards  []int           // これらのシャードのフェイルオーバーは常に失敗する
	BaseReplicaLag      time.Duration   // 健全なレプリカが報告する遅延
}

// DefaultSimConfig はデフォルト設定を返す
func DefaultSimConfig() SimConfig {
	return SimConfig{
		BaseReplicaLag: 10 * time.Millisecond,
	}
}

// simNode はシミュレートされた単一ノードプロセス
type simNode struct {
	id       NodeID
	addr     string
	role     Role
	shard    int
	slots    []scenario.SlotRange
	running  bool
	killedBy scenario.Signal
	frozen   bool
	logs     []string
}

// SimCluster はControllerのインメモリ実装
// 実プロセスを使わずにスケジューラ・バリデータを検証するための
// スロット・ロール・レプリケーションを備えたクラスタシミュレーション
type SimCluster struct {
	mu     sync.RWMutex
	cfg    SimConfig
	spec   scenario.ClusterSpec
	nodes  map[NodeID]*simNode
	order  []NodeID
	shards map[int]map[string]string // シャードごとのキー空間
	formed time.Time
}

// コンパイル時の能力チェック
var (
	_ Controller = (*SimCluster)(nil)
	_ LogReader  = (*SimCluster)(nil)
	_ DataPlane  = (*SimCluster)(nil)
)

// NewSim は新しいシミュレートクラスタを作成する
func NewSim(cfg SimConfig) *SimCluster {
	return &SimCluster{
		cfg:    cfg,
		nodes:  make(map[NodeID]*simNode),
		shards: make(map[int]map[string]string),
	}
}

// Form はシャードとレプリカを割り当ててクラスタを形成する
func (s *SimCluster) Form(ctx context.Context, spec scenario.ClusterSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.FailFormation {
		return &FormationError{Reason: "simulated formation failure"}
	}
	if len(s.nodes) > 0 {
		return &FormationError{Reason: "cluster already formed"}
	}

	s.spec = spec
	s.formed = time.Now()

	ranges := scenario.SlotRanges(spec.NumShards)
	port := 7000

	for shard := 0; shard < spec.NumShards; shard++ {
		primary := &simNode{
			id:      NodeID(fmt.Sprintf("shard%d-p", shard)),
			addr:    fmt.Sprintf("127.0.0.1:%d", port),
			role:    RolePrimary,
			shard:   shard,
			slots:   []scenario.SlotRange{ranges[shard]},
			running: true,
		}
		port++
		s.addLocked(primary)

		for r := 0; r < spec.ReplicasPerShard; r++ {
			replica := &simNode{
				id:      NodeID(fmt.Sprintf("shard%d-r%d", shard, r)),
				addr:    fmt.Sprintf("127.0.0.1:%d", port),
				role:    RoleReplica,
				shard:   shard,
				running: true,
				frozen:  containsInt(s.cfg.FrozenReplicaShards, shard),
			}
			port++
			s.addLocked(replica)
		}

		s.shards[shard] = make(map[string]string)
	}

	logger.Info("sim", "Cluster formed: %d shards, %d replicas per shard, %d nodes",
		spec.NumShards, spec.ReplicasPerShard, len(s.nodes))
	return nil
}

func (s *SimCluster) addLocked(n *simNode) {
	n.logs = append(n.logs, fmt.Sprintf("Node %s is now part of shard %d", n.id, n.shard))
	s.nodes[n.id] = n
	s.order = append(s.order, n.id)
}

// Spawn はノードを追加起動する
func (s *SimCluster) Spawn(ctx context.Context, spec NodeSpec) (NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[spec.ID]; exists {
		return "", fmt.Errorf("node %s already exists", spec.ID)
	}

	n := &simNode{
		id:      spec.ID,
		addr:    spec.Address,
		role:    spec.Role,
		shard:   spec.Shard,
		slots:   spec.Slots,
		running: true,
	}
	s.addLocked(n)

	logger.Info("sim", "Node %s spawned (role: %s, shard: %d)", spec.ID, spec.Role, spec.Shard)
	return spec.ID, nil
}

// Signal はノードプロセスへシグナルを送出する
// SIGKILL/SIGTERMのいずれもノードを終了させる
func (s *SimCluster) Signal(ctx context.Context, id NodeID, sig scenario.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.nodes[id]
	if !exists {
		return ErrNodeNotFound
	}
	if !n.running {
		return ErrNodeTerminated
	}

	n.running = false
	n.killedBy = sig

	// 生存ノードが故障検出をログに残す（gossipの定足数到達を模す）
	for _, other := range s.nodes {
		if other.running {
			other.logs = append(other.logs,
				fmt.Sprintf("Marking node %s as failing (quorum reached)", id))
		}
	}

	logger.Warn("sim", "Node %s terminated by %s", id, sig)
	return nil
}

// Snapshot はノードの現在のビューを返す
// 終了済みノードは到達不能としてErrNodeTerminatedを返す
func (s *SimCluster) Snapshot(ctx context.Context, id NodeID) (NodeView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.nodes[id]
	if !exists {
		return NodeView{}, ErrNodeNotFound
	}
	if !n.running {
		return NodeView{}, ErrNodeTerminated
	}

	view := NodeView{
		NodeID:  n.id,
		Address: n.addr,
		Role:    n.role,
		Shard:   n.shard,
	}
	view.OwnedSlots = append(view.OwnedSlots, n.slots...)

	if n.role == RoleReplica {
		if n.frozen {
			// 追いつかないレプリカ: 遅延は形成時刻から増え続ける
			view.ReplicationLag = time.Since(s.formed)
		} else {
			view.ReplicationLag = s.cfg.BaseReplicaLag
		}
	}

	view.PeerViews = s.peerViewsLocked()
	return view, nil
}

// peerViewsLocked は現在のトポロジ認識を構築する
// 生存ノードに加え、未補充のシャードの死亡プライマリは
// スロット所有者として残留する（クラスタは所有者不在のスロットを忘れられない）
func (s *SimCluster) peerViewsLocked() []PeerView {
	var peers []PeerView

	livePrimary := make(map[int]bool)
	for _, n := range s.nodes {
		if n.running && n.role == RolePrimary {
			livePrimary[n.shard] = true
		}
	}

	for _, id := range s.order {
		n := s.nodes[id]
		switch {
		case n.running:
			peers = append(peers, PeerView{NodeID: n.id, Role: n.role, Shard: n.shard})
		case n.role == RolePrimary && !livePrimary[n.shard]:
			// 死亡プライマリの残留エントリ
			peers = append(peers, PeerView{NodeID: n.id, Role: n.role, Shard: n.shard})
		}
	}
	return peers
}

// TriggerFailover はフェイルオーバーを起動する
func (s *SimCluster) TriggerFailover(ctx context.Context, id NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.nodes[id]
	if !exists {
		return ErrNodeNotFound
	}
	if !n.running {
		return ErrNodeTerminated
	}

	if containsInt(s.cfg.FailoverFailShards, n.shard) {
		n.logs = append(n.logs, "Failover attempt expired")
		return fmt.Errorf("failover on shard %d timed out", n.shard)
	}

	var promote *simNode
	if n.role == RoleReplica {
		promote = n
	} else {
		// プライマリへの指示: 生存レプリカのうちID順で最初のものを昇格
		promote = s.firstLiveReplicaLocked(n.shard)
		if promote == nil {
			n.logs = append(n.logs, "Failover attempt expired")
			return fmt.Errorf("shard %d has no live replica to promote", n.shard)
		}
	}

	s.promoteLocked(promote)
	return nil
}

func (s *SimCluster) firstLiveReplicaLocked(shard int) *simNode {
	var candidates []*simNode
	for _, n := range s.nodes {
		if n.running && n.role == RoleReplica && n.shard == shard {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })
	return candidates[0]
}

// promoteLocked はレプリカをプライマリに昇格させ、旧プライマリを降格する
func (s *SimCluster) promoteLocked(replica *simNode) {
	shard := replica.shard
	ranges := scenario.SlotRanges(s.spec.NumShards)

	for _, n := range s.nodes {
		if n.shard == shard && n.role == RolePrimary && n.id != replica.id {
			n.slots = nil
			if n.running {
				n.role = RoleReplica
				n.logs = append(n.logs, fmt.Sprintf("Demoting myself to replica of shard %d", shard))
			}
		}
	}

	replica.role = RolePrimary
	replica.slots = []scenario.SlotRange{ranges[shard]}
	replica.logs = append(replica.logs, "Failover election won")
	replica.logs = append(replica.logs, fmt.Sprintf("Setting myself to primary in shard %d", shard))

	logger.Info("sim", "Node %s promoted to primary of shard %d", replica.id, shard)
}

// Nodes は既知の全ノードIDを作成順で返す（終了済みを含む）
func (s *SimCluster) Nodes() []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]NodeID, len(s.order))
	copy(ids, s.order)
	return ids
}

// Logs はノードのログ行を返す
// プロセス終了後もログは読み取れる（ログファイルは残る）
func (s *SimCluster) Logs(ctx context.Context, id NodeID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.nodes[id]
	if !exists {
		return nil, ErrNodeNotFound
	}

	lines := make([]string, len(n.logs))
	copy(lines, n.logs)
	return lines, nil
}

// Put はキーを担当シャードの生存プライマリに書き込む
func (s *SimCluster) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shard, ok := s.shardForKeyLocked(key)
	if !ok {
		return ErrKeyUnreachable
	}
	s.shards[shard][key] = value
	return nil
}

// Get はキーを担当シャードの生存プライマリから読み出す
func (s *SimCluster) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shard, ok := s.shardForKeyLocked(key)
	if !ok {
		return "", ErrKeyUnreachable
	}
	value, exists := s.shards[shard][key]
	if !exists {
		return "", fmt.Errorf("key %s not found", key)
	}
	return value, nil
}

// shardForKeyLocked はキーの担当シャードを返す
// 担当シャードに生存プライマリがいない場合は到達不能
func (s *SimCluster) shardForKeyLocked(key string) (int, bool) {
	slot := HashSlot(key)
	ranges := scenario.SlotRanges(s.spec.NumShards)

	shard := -1
	for i, r := range ranges {
		if r.Contains(slot) {
			shard = i
			break
		}
	}
	if shard < 0 {
		return 0, false
	}

	for _, n := range s.nodes {
		if n.running && n.role == RolePrimary && n.shard == shard {
			return shard, true
		}
	}
	return 0, false
}

// HashSlot はキーをスロットに写像する
func HashSlot(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % scenario.SlotCount)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
