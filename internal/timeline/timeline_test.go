package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cluster-fuzz/internal/scenario"
)

type fakeApplier struct {
	mu    sync.Mutex
	calls []scenario.Operation
	delay time.Duration
	err   error
}

func (f *fakeApplier) Apply(ctx context.Context, op scenario.Operation) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
	return f.err
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls []scenario.ChaosEvent
	delay time.Duration
	err   error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, ev scenario.ChaosEvent) error {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, ev)
	f.mu.Unlock()
	return f.err
}

func baseScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:   "timeline-test",
		Seed: 1,
		Cluster: scenario.ClusterSpec{
			NumShards:        3,
			ReplicasPerShard: 1,
		},
		Validation: scenario.DefaultValidationSpec(),
	}
}

func findEntry(entries []EventLogEntry, id string) (EventLogEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return EventLogEntry{}, false
}

func TestResolveOffsets(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 0, Timing: scenario.TimingImmediate},
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 1, Timing: scenario.TimingDelayed, DelaySeconds: 2},
	}
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 1, Coordination: scenario.CoordBeforeOperation, DelaySeconds: 0.5},
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 1, Coordination: scenario.CoordDuringOperation},
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalTerm, Target: scenario.TargetPrimary, Shard: 0, Coordination: scenario.CoordAfterOperation, DelaySeconds: 1},
	}

	actions, err := Resolve(scn)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(actions) != 5 {
		t.Fatalf("expected 5 actions, got %d", len(actions))
	}

	byID := make(map[string]*Action)
	for _, a := range actions {
		byID[a.ID] = a
	}

	if got := byID["op-0"].Offset; got != 0 {
		t.Errorf("expected op-0 at offset 0, got %v", got)
	}
	if got := byID["op-1"].Offset; got != 2*time.Second {
		t.Errorf("expected op-1 at offset 2s, got %v", got)
	}

	// before: アンカー(shard 1 → op-1)より0.5s早い
	if got := byID["chaos-0"].Offset; got != 1500*time.Millisecond {
		t.Errorf("expected chaos-0 at offset 1.5s, got %v", got)
	}
	if len(byID["op-1"].waitFor) != 1 || byID["op-1"].waitFor[0].ID != "chaos-0" {
		t.Errorf("expected op-1 to wait for chaos-0, got %+v", byID["op-1"].waitFor)
	}

	// during: アンカーと同一オフセット、依存なし
	if got := byID["chaos-1"].Offset; got != 2*time.Second {
		t.Errorf("expected chaos-1 at offset 2s, got %v", got)
	}
	if len(byID["chaos-1"].waitFor) != 0 {
		t.Error("expected chaos-1 to have no dependencies")
	}

	// after: アンカー(shard 0 → op-0)完了待ち + 追加遅延
	after := byID["chaos-2"]
	if len(after.waitFor) != 1 || after.waitFor[0].ID != "op-0" {
		t.Errorf("expected chaos-2 to wait for op-0, got %+v", after.waitFor)
	}
	if after.extraDelay != time.Second {
		t.Errorf("expected chaos-2 extra delay 1s, got %v", after.extraDelay)
	}
}

func TestResolveClampsNegativeOffset(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 0, Timing: scenario.TimingImmediate},
	}
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 0, Coordination: scenario.CoordBeforeOperation, DelaySeconds: 5},
	}

	actions, err := Resolve(scn)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	chaos, ok := findAction(actions, "chaos-0")
	if !ok {
		t.Fatal("chaos-0 not resolved")
	}
	if chaos.Offset != 0 {
		t.Errorf("expected offset clamped to 0, got %v", chaos.Offset)
	}
}

func findAction(actions []*Action, id string) (*Action, bool) {
	for _, a := range actions {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

func TestResolveAnchorFallback(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 0, Timing: scenario.TimingImmediate},
	}
	// シャード2には操作がないため宣言順で対応する操作に落ちる
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 2, Coordination: scenario.CoordAfterOperation},
	}

	actions, err := Resolve(scn)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	chaos, _ := findAction(actions, "chaos-0")
	if len(chaos.waitFor) != 1 || chaos.waitFor[0].ID != "op-0" {
		t.Errorf("expected anchor fallback to op-0, got %+v", chaos.waitFor)
	}
}

func TestResolveRequiresAnchor(t *testing.T) {
	scn := baseScenario()
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 0, Coordination: scenario.CoordBeforeOperation},
	}

	if _, err := Resolve(scn); err == nil {
		t.Error("expected error for anchored chaos without operations")
	}
}

func TestBeforeOperationOrdering(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 1, Timing: scenario.TimingDelayed, DelaySeconds: 0.05},
	}
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 1, Coordination: scenario.CoordBeforeOperation, DelaySeconds: 0.02},
	}

	deliverer := &fakeDeliverer{delay: 30 * time.Millisecond}
	sched := NewScheduler(&fakeApplier{}, deliverer, nil, DefaultConfig())

	entries, err := sched.Run(context.Background(), scn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	chaos, ok := findEntry(entries, "chaos-0")
	if !ok {
		t.Fatal("chaos-0 entry missing")
	}
	op, ok := findEntry(entries, "op-0")
	if !ok {
		t.Fatal("op-0 entry missing")
	}

	if chaos.CompletedAt.After(op.StartedAt) {
		t.Errorf("expected chaos completion %v to precede operation start %v",
			chaos.CompletedAt, op.StartedAt)
	}
}

func TestAfterOperationOrdering(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 1, Timing: scenario.TimingImmediate},
	}
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 1, Coordination: scenario.CoordAfterOperation, DelaySeconds: 0.02},
	}

	applier := &fakeApplier{delay: 30 * time.Millisecond}
	sched := NewScheduler(applier, &fakeDeliverer{}, nil, DefaultConfig())

	entries, err := sched.Run(context.Background(), scn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	op, _ := findEntry(entries, "op-0")
	chaos, ok := findEntry(entries, "chaos-0")
	if !ok {
		t.Fatal("chaos-0 entry missing")
	}

	if chaos.StartedAt.Before(op.CompletedAt) {
		t.Errorf("expected chaos start %v to follow operation completion %v",
			chaos.StartedAt, op.CompletedAt)
	}
}

func TestFailureDoesNotAbortTimeline(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 0, Timing: scenario.TimingImmediate},
	}
	scn.Chaos = []scenario.ChaosEvent{
		{Type: scenario.ChaosProcessKill, Signal: scenario.SignalKill, Target: scenario.TargetPrimary, Shard: 1, Coordination: scenario.CoordImmediate, DelaySeconds: 0.02},
	}

	applier := &fakeApplier{err: errors.New("failover rejected")}
	deliverer := &fakeDeliverer{}
	sched := NewScheduler(applier, deliverer, nil, DefaultConfig())

	entries, err := sched.Run(context.Background(), scn)
	if err != nil {
		t.Fatalf("expected run to proceed despite failure, got %v", err)
	}

	op, _ := findEntry(entries, "op-0")
	if op.Status != StatusFailed {
		t.Errorf("expected op-0 FAILED, got %s", op.Status)
	}
	if op.Error == "" {
		t.Error("expected failure message recorded")
	}

	chaos, _ := findEntry(entries, "chaos-0")
	if chaos.Status != StatusSuccess {
		t.Errorf("expected chaos-0 SUCCESS, got %s", chaos.Status)
	}
}

func TestScenarioTimeoutCancelsPending(t *testing.T) {
	scn := baseScenario()
	scn.Operations = []scenario.Operation{
		{Type: scenario.OpFailover, Target: scenario.TargetReplica, Shard: 0, Timing: scenario.TimingDelayed, DelaySeconds: 10},
	}

	cfg := Config{ScenarioTimeout: 30 * time.Millisecond}
	sched := NewScheduler(&fakeApplier{}, &fakeDeliverer{}, nil, cfg)

	begin := time.Now()
	entries, err := sched.Run(context.Background(), scn)
	elapsed := time.Since(begin)

	if !IsTimeoutError(err) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("expected prompt cancellation, took %v", elapsed)
	}

	op, ok := findEntry(entries, "op-0")
	if !ok {
		t.Fatal("expected cancelled entry for op-0")
	}
	if op.Status != StatusCancelled {
		t.Errorf("expected op-0 CANCELLED, got %s", op.Status)
	}
}

func TestEmptyTimeline(t *testing.T) {
	sched := NewScheduler(&fakeApplier{}, &fakeDeliverer{}, nil, DefaultConfig())
	entries, err := sched.Run(context.Background(), baseScenario())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(entries))
	}
}
