package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cluster-fuzz/internal/chaos"
	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/metrics"
	"cluster-fuzz/internal/scenario"
)

// CheckStatus は個別チェックの結果
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusFail CheckStatus = "FAIL"
)

// チェック名
const (
	CheckSlotCoverage    = "slot_coverage"
	CheckReplication     = "replication"
	CheckTopology        = "topology"
	CheckDataConsistency = "data_consistency"
	CheckShardLogs       = "shard_logs"
)

// CheckResult は単一チェックの結果
type CheckResult struct {
	Check   string      `json:"check"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Report は全チェックの集約結果
type Report struct {
	Results []CheckResult `json:"results"`
	Passed  bool          `json:"passed"`
}

// Result は指定チェックの結果を返す
func (r Report) Result(check string) (CheckResult, bool) {
	for _, res := range r.Results {
		if res.Check == check {
			return res, true
		}
	}
	return CheckResult{}, false
}

// CanaryReader はカナリアキーの読み戻し能力
type CanaryReader interface {
	ReadCanaries(ctx context.Context) int
	CanaryCount() int
}

// Config はバリデータの設定
type Config struct {
	PollInterval            time.Duration // 収束待ちの初期間隔（指数的に伸びる）
	MaxPollInterval         time.Duration
	UnreachableKeyThreshold int // これを超えるカナリア喪失でFAIL
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		PollInterval:            50 * time.Millisecond,
		MaxPollInterval:         time.Second,
		UnreachableKeyThreshold: 0,
	}
}

// Validator は実行後のクラスタ状態を検証する
//
// 各チェックは独立に合否を判定し、有効なチェックが一つでも
// 失敗すれば全体はFAILEDになる。収束に依存するチェック
// （レプリケーション・トポロジ）は検証タイムアウトまで
// バックオフ付きでポーリングし、時間切れならタイムアウトを
// 明示したメッセージでFAILを報告する。ビューは毎回再取得し、
// スナップショットをチェック間で使い回さない。
type Validator struct {
	ctrl   cluster.Controller
	logs   cluster.LogReader
	config Config
}

// New は新しいValidatorを作成する
// logsはnilでもよい（ログチェックをスキップ）
func New(ctrl cluster.Controller, logs cluster.LogReader, config Config) *Validator {
	return &Validator{
		ctrl:   ctrl,
		logs:   logs,
		config: config,
	}
}

// Validate は有効な全チェックを実行しレポートを返す
// killedはカオスで終了させたノードの記録、canariesはnil可
func (v *Validator) Validate(ctx context.Context, scn *scenario.Scenario, killed []chaos.KilledNode, canaries CanaryReader) Report {
	spec := scn.Validation
	var results []CheckResult

	if spec.CheckSlotCoverage {
		results = append(results, v.checkSlotCoverage(ctx, killed))
	}
	if spec.CheckReplication {
		results = append(results, v.checkReplication(ctx, scn))
	}
	results = append(results, v.checkTopology(ctx, spec.ValidationTimeout()))
	if spec.CheckDataConsistency && canaries != nil {
		results = append(results, v.checkDataConsistency(ctx, canaries))
	}
	if v.logs != nil {
		results = append(results, v.checkShardLogs(ctx, scn, killed))
	}

	passed := true
	for _, r := range results {
		if r.Status == StatusFail {
			passed = false
			metrics.ObserveCheckFailure(r.Check)
			logger.Warn("validator", "Check %s failed: %s", r.Check, r.Message)
		} else {
			logger.Debug("validator", "Check %s passed", r.Check)
		}
	}

	return Report{Results: results, Passed: passed}
}

// checkSlotCoverage は生存ノードのスロット所有が16384スロットを
// 重複も欠落もなく覆うことを確認する
func (v *Validator) checkSlotCoverage(ctx context.Context, killed []chaos.KilledNode) CheckResult {
	view, err := cluster.Collect(ctx, v.ctrl)
	if err != nil {
		return fail(CheckSlotCoverage, fmt.Sprintf("collecting cluster view: %v", err))
	}

	owners := make([]int, scenario.SlotCount)
	for _, n := range view.Nodes {
		for _, r := range n.OwnedSlots {
			for s := r.Start; s <= r.End; s++ {
				owners[s]++
			}
		}
	}

	var gaps, dups []scenario.SlotRange
	for s := 0; s < scenario.SlotCount; {
		switch {
		case owners[s] == 0:
			end := s
			for end+1 < scenario.SlotCount && owners[end+1] == 0 {
				end++
			}
			gaps = append(gaps, scenario.SlotRange{Start: s, End: end})
			s = end + 1
		case owners[s] > 1:
			end := s
			for end+1 < scenario.SlotCount && owners[end+1] > 1 {
				end++
			}
			dups = append(dups, scenario.SlotRange{Start: s, End: end})
			s = end + 1
		default:
			s++
		}
	}

	if len(gaps) == 0 && len(dups) == 0 {
		return pass(CheckSlotCoverage)
	}

	var parts []string
	if len(gaps) > 0 {
		parts = append(parts, fmt.Sprintf("uncovered slots: %s", joinRanges(gaps)))
		if owned := killedOwnersOf(gaps, killed); owned != "" {
			parts = append(parts, owned)
		}
	}
	if len(dups) > 0 {
		parts = append(parts, fmt.Sprintf("multiply-owned slots: %s", joinRanges(dups)))
	}
	return fail(CheckSlotCoverage, strings.Join(parts, "; "))
}

// killedOwnersOf は欠落スロットを所有していた終了済みノードを特定する
func killedOwnersOf(gaps []scenario.SlotRange, killed []chaos.KilledNode) string {
	var parts []string
	for _, k := range killed {
		for _, owned := range k.Slots {
			for _, gap := range gaps {
				if owned.Start <= gap.End && gap.Start <= owned.End {
					parts = append(parts,
						fmt.Sprintf("slots %s owned by killed node %s (shard %d) not reassigned",
							owned, k.NodeID, k.Shard))
				}
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "; ")
}

// checkReplication はレプリカを持つ全シャードについて、許容遅延内の
// 到達可能なレプリカが少なくとも一つあることを収束待ち付きで確認する
func (v *Validator) checkReplication(ctx context.Context, scn *scenario.Scenario) CheckResult {
	if scn.Cluster.ReplicasPerShard == 0 {
		return pass(CheckReplication)
	}

	maxLag := scn.Validation.Replication.MaxAcceptableLag()
	timeout := scn.Validation.ValidationTimeout()

	var detail string
	converged := v.pollUntil(ctx, timeout, func(ctx context.Context) bool {
		view, err := cluster.Collect(ctx, v.ctrl)
		if err != nil {
			detail = fmt.Sprintf("collecting cluster view: %v", err)
			return false
		}
		for shard := 0; shard < scn.Cluster.NumShards; shard++ {
			if ok, lag := shardReplicated(view, shard, maxLag); !ok {
				if lag < 0 {
					detail = fmt.Sprintf("shard %d has no reachable replica", shard)
				} else {
					detail = fmt.Sprintf("shard %d has no reachable replica within lag %s (measured %s)",
						shard, maxLag, lag)
				}
				return false
			}
		}
		return true
	})

	if converged {
		return pass(CheckReplication)
	}
	return fail(CheckReplication,
		fmt.Sprintf("replication did not converge within %s: %s", timeout, detail))
}

// shardReplicated はシャードに許容遅延内のレプリカがあるかを返す
func shardReplicated(view cluster.ClusterView, shard int, maxLag time.Duration) (bool, time.Duration) {
	var best time.Duration = -1
	for _, n := range view.ReplicasOf(shard) {
		if n.ReplicationLag <= maxLag {
			return true, n.ReplicationLag
		}
		if best < 0 || n.ReplicationLag < best {
			best = n.ReplicationLag
		}
	}
	return false, best
}

// checkTopology は全生存ノードのピュービューが生存ノードの
// 自己申告から作った参照トポロジと一致することを確認する
// 厳格モード: 不一致が一つでもあればFAILし、件数を報告する
func (v *Validator) checkTopology(ctx context.Context, timeout time.Duration) CheckResult {
	var mismatches int
	converged := v.pollUntil(ctx, timeout, func(ctx context.Context) bool {
		view, err := cluster.Collect(ctx, v.ctrl)
		if err != nil {
			mismatches = -1
			return false
		}
		mismatches = countTopologyMismatches(view)
		return mismatches == 0
	})

	if converged {
		return pass(CheckTopology)
	}
	if mismatches < 0 {
		return fail(CheckTopology, fmt.Sprintf("topology did not converge within %s: cluster view unavailable", timeout))
	}
	return fail(CheckTopology,
		fmt.Sprintf("topology did not converge within %s: %d node view mismatches", timeout, mismatches))
}

// countTopologyMismatches は参照トポロジに一致しないノードビューを数える
func countTopologyMismatches(view cluster.ClusterView) int {
	// 参照: 生存ノードの自己申告によるshard→nodeの割り当て
	type assignment struct {
		role  cluster.Role
		shard int
	}
	reference := make(map[cluster.NodeID]assignment)
	for _, n := range view.Nodes {
		reference[n.NodeID] = assignment{role: n.Role, shard: n.Shard}
	}

	mismatches := 0
	for _, n := range view.Nodes {
		agree := len(n.PeerViews) == len(reference)
		if agree {
			for _, p := range n.PeerViews {
				ref, exists := reference[p.NodeID]
				if !exists || ref.role != p.Role || ref.shard != p.Shard {
					agree = false
					break
				}
			}
		}
		if !agree {
			mismatches++
		}
	}
	return mismatches
}

// checkDataConsistency はカオス前に書いたカナリアキーが
// 読み戻せることを確認する
func (v *Validator) checkDataConsistency(ctx context.Context, canaries CanaryReader) CheckResult {
	total := canaries.CanaryCount()
	if total == 0 {
		return pass(CheckDataConsistency)
	}

	missing := canaries.ReadCanaries(ctx)
	if missing > v.config.UnreachableKeyThreshold {
		return fail(CheckDataConsistency,
			fmt.Sprintf("%d of %d canary keys unreachable (threshold %d)",
				missing, total, v.config.UnreachableKeyThreshold))
	}
	return pass(CheckDataConsistency)
}

// フェイルオーバー失敗を示すログパターン
var failoverErrorPatterns = []string{
	"Failover attempt expired",
	"Manual failover timed out",
}

// checkShardLogs はノードログから故障検出とフェイルオーバーの
// 痕跡を確認する
//   - 終了させた各ノードは生存ノードのログで故障と記録されていること
//   - 明示フェイルオーバーを受けたシャードとプライマリ喪失から
//     回復したシャードでは昇格ノードが選挙勝利と昇格を記録していること
//   - 昇格の痕跡がないシャードではフェイルオーバーの失敗パターンを報告する
func (v *Validator) checkShardLogs(ctx context.Context, scn *scenario.Scenario, killed []chaos.KilledNode) CheckResult {
	failoverShards := make(map[int]bool)
	for _, op := range scn.Operations {
		if op.Type == scenario.OpFailover {
			failoverShards[op.Shard] = true
		}
	}
	primaryKilled := make(map[int]bool)
	for _, k := range killed {
		if k.Role == cluster.RolePrimary {
			primaryKilled[k.Shard] = true
		}
	}
	if len(killed) == 0 && len(failoverShards) == 0 {
		return pass(CheckShardLogs)
	}

	view, err := cluster.Collect(ctx, v.ctrl)
	if err != nil {
		return fail(CheckShardLogs, fmt.Sprintf("collecting cluster view: %v", err))
	}

	logsByNode := make(map[cluster.NodeID][]string)
	for _, id := range v.ctrl.Nodes() {
		lines, err := v.logs.Logs(ctx, id)
		if err != nil {
			continue
		}
		logsByNode[id] = lines
	}

	var problems []string

	for _, k := range killed {
		marker := fmt.Sprintf("Marking node %s as failing", k.NodeID)
		if !anyLogContains(logsByNode, k.NodeID, marker) {
			problems = append(problems,
				fmt.Sprintf("no surviving node recorded failure detection for %s", k.NodeID))
		}
	}

	affected := make(map[int]bool)
	for shard := range failoverShards {
		affected[shard] = true
	}
	for shard := range primaryKilled {
		affected[shard] = true
	}
	shards := make([]int, 0, len(affected))
	for shard := range affected {
		shards = append(shards, shard)
	}
	sort.Ints(shards)

	for _, shard := range shards {
		primary, hasPrimary := view.PrimaryOf(shard)
		promoted := false
		if hasPrimary {
			lines := strings.Join(logsByNode[primary.NodeID], "\n")
			promoted = strings.Contains(lines, "Failover election won") &&
				strings.Contains(lines, fmt.Sprintf("Setting myself to primary in shard %d", shard))
		}
		if promoted {
			continue
		}

		// 昇格の痕跡がない: 失敗パターンを探す
		if node, line, found := findFailoverError(shard, view, logsByNode); found {
			problems = append(problems,
				fmt.Sprintf("shard %d failover error on %s: %q", shard, node, line))
			continue
		}
		if primaryKilled[shard] && hasPrimary {
			problems = append(problems,
				fmt.Sprintf("promoted node %s (shard %d) missing failover election logs",
					primary.NodeID, shard))
		}
	}

	if len(problems) > 0 {
		return fail(CheckShardLogs, strings.Join(problems, "; "))
	}
	return pass(CheckShardLogs)
}

// findFailoverError はシャード内ノードのログから失敗パターンを探す
func findFailoverError(shard int, view cluster.ClusterView, logsByNode map[cluster.NodeID][]string) (cluster.NodeID, string, bool) {
	for _, n := range view.Nodes {
		if n.Shard != shard {
			continue
		}
		for _, line := range logsByNode[n.NodeID] {
			for _, pattern := range failoverErrorPatterns {
				if strings.Contains(line, pattern) {
					return n.NodeID, line, true
				}
			}
		}
	}
	return "", "", false
}

// anyLogContains は対象ノード以外のいずれかのログに部分文字列が
// 含まれるかを返す
func anyLogContains(logsByNode map[cluster.NodeID][]string, exclude cluster.NodeID, substr string) bool {
	for id, lines := range logsByNode {
		if id == exclude {
			continue
		}
		for _, line := range lines {
			if strings.Contains(line, substr) {
				return true
			}
		}
	}
	return false
}

// pollUntil はfnがtrueを返すまでバックオフ付きでポーリングする
// タイムアウトまたはコンテキスト終了でfalseを返す
func (v *Validator) pollUntil(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) bool) bool {
	deadline := time.Now().Add(timeout)
	interval := v.config.PollInterval

	for {
		if fn(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}

		interval *= 2
		if interval > v.config.MaxPollInterval {
			interval = v.config.MaxPollInterval
		}
	}
}

func pass(check string) CheckResult {
	return CheckResult{Check: check, Status: StatusPass}
}

func fail(check, message string) CheckResult {
	return CheckResult{Check: check, Status: StatusFail, Message: message}
}

func joinRanges(ranges []scenario.SlotRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
