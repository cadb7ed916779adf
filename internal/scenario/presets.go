package scenario

// BaselineScenario はカオスなしの基本シナリオを返す
// 1回のフェイルオーバーのみ、全検証が通ることを期待する
func BaselineScenario() *Scenario {
	return &Scenario{
		ID:   "baseline",
		Seed: 42,
		Cluster: ClusterSpec{
			NumShards:        3,
			ReplicasPerShard: 1,
		},
		Operations: []Operation{
			{Type: OpFailover, Target: TargetReplica, Shard: 1, Timing: TimingImmediate},
		},
		Validation: DefaultValidationSpec(),
	}
}

// KillPrimaryScenario はレプリカなしクラスタのプライマリを殺すシナリオを返す
// 補償フェイルオーバーが不可能なため、スロットカバレッジ検証の失敗を期待する
func KillPrimaryScenario() *Scenario {
	return &Scenario{
		ID:   "kill-primary",
		Seed: 4226257627,
		Cluster: ClusterSpec{
			NumShards:        3,
			ReplicasPerShard: 0,
		},
		Operations: []Operation{
			{Type: OpFailover, Target: TargetPrimary, Shard: 1, Timing: TimingImmediate},
			{Type: OpFailover, Target: TargetPrimary, Shard: 1, Timing: TimingDelayed, DelaySeconds: 0.5},
		},
		Chaos: []ChaosEvent{
			{Type: ChaosProcessKill, Signal: SignalKill, Target: TargetPrimary, Shard: 0, Coordination: CoordImmediate},
			{Type: ChaosProcessKill, Signal: SignalKill, Target: TargetPrimary, Shard: 2, Coordination: CoordImmediate, DelaySeconds: 0.2},
		},
		Validation: DefaultValidationSpec(),
	}
}

// FailoverStormScenario は複数シャードのフェイルオーバーとカオスを重ねるシナリオを返す
func FailoverStormScenario() *Scenario {
	return &Scenario{
		ID:   "failover-storm",
		Seed: 7,
		Cluster: ClusterSpec{
			NumShards:        5,
			ReplicasPerShard: 1,
		},
		Operations: []Operation{
			{Type: OpFailover, Target: TargetReplica, Shard: 0, Timing: TimingImmediate},
			{Type: OpFailover, Target: TargetReplica, Shard: 2, Timing: TimingDelayed, DelaySeconds: 0.5},
			{Type: OpFailover, Target: TargetReplica, Shard: 4, Timing: TimingDelayed, DelaySeconds: 1},
		},
		Chaos: []ChaosEvent{
			{Type: ChaosProcessKill, Signal: SignalTerm, Target: TargetReplica, Shard: 2, Coordination: CoordBeforeOperation, DelaySeconds: 0.1},
			{Type: ChaosProcessKill, Signal: SignalKill, Target: TargetPrimary, Shard: 4, Coordination: CoordDuringOperation},
		},
		Validation: DefaultValidationSpec(),
	}
}

// GetPreset は名前からプリセットシナリオを取得する
func GetPreset(name string) (*Scenario, bool) {
	presets := map[string]func() *Scenario{
		"baseline":       BaselineScenario,
		"kill-primary":   KillPrimaryScenario,
		"failover-storm": FailoverStormScenario,
	}

	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return nil, false
}

// ListPresets は利用可能なプリセット名を返す
func ListPresets() []string {
	return []string{"baseline", "kill-primary", "failover-storm"}
}
