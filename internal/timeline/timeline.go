package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cluster-fuzz/internal/scenario"
)

// Kind はタイムライン項目の種類
type Kind string

const (
	KindOperation Kind = "operation"
	KindChaos     Kind = "chaos"
)

// Status はタイムライン項目の実行結果
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// EventLogEntry は実行された項目ごとの記録
// 追記専用で、レポートと協調順序の検証に使われる
type EventLogEntry struct {
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// EventLog は並行追記に安全な追記専用ログ
type EventLog struct {
	mu      sync.Mutex
	entries []EventLogEntry
}

// Append はエントリを追加する
func (l *EventLog) Append(e EventLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries は現在までのエントリのコピーを返す
func (l *EventLog) Entries() []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Applier はオペレーションをクラスタへ適用する能力
type Applier interface {
	Apply(ctx context.Context, op scenario.Operation) error
}

// Deliverer はカオスイベントを送達する能力
type Deliverer interface {
	Deliver(ctx context.Context, ev scenario.ChaosEvent) error
}

// Action はオフセットと依存関係を解決済みのタイムライン項目
type Action struct {
	ID     string
	Kind   Kind
	Offset time.Duration // タイムライン開始からの起動オフセット

	Operation *scenario.Operation
	Chaos     *scenario.ChaosEvent

	// done は項目の完了（成功・失敗を問わず）で閉じられる
	done chan struct{}

	// waitFor が指すチャネルが全て閉じるまで起動を遅らせる
	// before_operation カオスの完了待ちと after_operation の
	// アンカー完了待ちに使う
	waitFor []*Action

	// extraDelay は依存解決後に追加で待つ時間（after_operation の delay）
	extraDelay time.Duration
}

// Done は項目の完了チャネルを返す
func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Resolve はシナリオの操作とカオスイベントを単一のタイムラインへ解決する
//
// 解決規則:
//   - immediate/delayed な操作は自身の delay_seconds のオフセットで起動する
//   - before_operation カオスはアンカー開始より delay_seconds 早く起動し
//     （0 にクランプ）、アンカーはその完了を待ってから起動する
//   - during_operation カオスはアンカーと同一時刻に起動し、相互順序は持たない
//   - after_operation カオスはアンカー完了の記録後、delay_seconds 待って起動する
//   - アンカーは同一シャードの操作、無ければ宣言順で対応する操作
func Resolve(scn *scenario.Scenario) ([]*Action, error) {
	ops := make([]*Action, len(scn.Operations))
	for i := range scn.Operations {
		op := scn.Operations[i]
		ops[i] = &Action{
			ID:        fmt.Sprintf("op-%d", i),
			Kind:      KindOperation,
			Offset:    op.Delay(),
			Operation: &op,
			done:      make(chan struct{}),
		}
	}

	actions := make([]*Action, 0, len(ops)+len(scn.Chaos))
	actions = append(actions, ops...)

	for i := range scn.Chaos {
		ev := scn.Chaos[i]
		a := &Action{
			ID:    fmt.Sprintf("chaos-%d", i),
			Kind:  KindChaos,
			Chaos: &ev,
			done:  make(chan struct{}),
		}

		switch ev.Coordination {
		case scenario.CoordImmediate:
			a.Offset = ev.Delay()

		case scenario.CoordBeforeOperation:
			anchor, err := anchorFor(ops, scn.Operations, i, ev.Shard)
			if err != nil {
				return nil, err
			}
			a.Offset = anchor.Offset - ev.Delay()
			if a.Offset < 0 {
				a.Offset = 0
			}
			// アンカーはカオス完了を待ってから起動する
			anchor.waitFor = append(anchor.waitFor, a)

		case scenario.CoordDuringOperation:
			anchor, err := anchorFor(ops, scn.Operations, i, ev.Shard)
			if err != nil {
				return nil, err
			}
			a.Offset = anchor.Offset

		case scenario.CoordAfterOperation:
			anchor, err := anchorFor(ops, scn.Operations, i, ev.Shard)
			if err != nil {
				return nil, err
			}
			a.Offset = anchor.Offset
			a.waitFor = append(a.waitFor, anchor)
			a.extraDelay = ev.Delay()

		default:
			return nil, fmt.Errorf("unknown coordination directive: %s", ev.Coordination)
		}

		actions = append(actions, a)
	}

	return actions, nil
}

// anchorFor はカオスイベントのアンカー操作を返す
// 同一シャードの操作を優先し、無ければ宣言順で対応する操作を使う
func anchorFor(ops []*Action, specs []scenario.Operation, chaosIndex, shard int) (*Action, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("chaos-%d requires an anchor operation but scenario has none", chaosIndex)
	}
	for i := range specs {
		if specs[i].Shard == shard {
			return ops[i], nil
		}
	}
	idx := chaosIndex
	if idx >= len(ops) {
		idx = len(ops) - 1
	}
	return ops[idx], nil
}
