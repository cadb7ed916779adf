package scenario

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// document はDSLドキュメントのスキーマ
// フィールド名・型はDSLの外部契約そのもの
type document struct {
	ScenarioID string         `yaml:"scenario_id,omitempty"`
	Seed       int64          `yaml:"seed"`
	Cluster    clusterDoc     `yaml:"cluster"`
	Operations []operationDoc `yaml:"operations,omitempty"`
	Chaos      []chaosDoc     `yaml:"chaos,omitempty"`
	Workload   *workloadDoc   `yaml:"workload,omitempty"`
	Validation *validationDoc `yaml:"state_validation,omitempty"`
}

type clusterDoc struct {
	NumShards        int `yaml:"num_shards"`
	ReplicasPerShard int `yaml:"replicas_per_shard"`
}

type operationDoc struct {
	Type   string  `yaml:"type"`
	Target string  `yaml:"target"`
	Shard  int     `yaml:"shard"`
	Timing string  `yaml:"timing"`
	Delay  float64 `yaml:"delay,omitempty"`
}

type chaosDoc struct {
	Type         string  `yaml:"type"`
	Signal       string  `yaml:"signal"`
	Target       string  `yaml:"target"`
	Shard        int     `yaml:"shard"`
	Coordination string  `yaml:"coordination"`
	Delay        float64 `yaml:"delay,omitempty"`
}

type workloadDoc struct {
	Enabled   bool    `yaml:"enabled"`
	Pattern   string  `yaml:"pattern"`
	Intensity string  `yaml:"intensity"`
	Duration  float64 `yaml:"duration"`
}

type validationDoc struct {
	CheckSlotCoverage    bool           `yaml:"check_slot_coverage"`
	CheckReplication     bool           `yaml:"check_replication"`
	CheckDataConsistency bool           `yaml:"check_data_consistency"`
	ValidationTimeout    float64        `yaml:"validation_timeout"`
	Replication          replicationDoc `yaml:"replication_config"`
}

type replicationDoc struct {
	MaxAcceptableLag float64 `yaml:"max_acceptable_lag"`
}

// Parse はDSLドキュメントをパースしてシナリオを構築する
// 未知のフィールドは拒否され、全てのレンジ検証がロード時に行われる
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, &ValidationError{Field: "document", Reason: "empty document"}
		}
		return nil, &ValidationError{Field: "document", Reason: err.Error()}
	}

	s := doc.toScenario()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseFile はファイルからDSLドキュメントをパースする
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read DSL file %s", path)
	}
	return Parse(data)
}

// MarshalDSL はシナリオをDSLドキュメントに直列化する
// Parse(MarshalDSL(s)) は s と構造的に一致する（ラウンドトリップ則）
func (s *Scenario) MarshalDSL() ([]byte, error) {
	doc := document{
		ScenarioID: s.ID,
		Seed:       s.Seed,
		Cluster: clusterDoc{
			NumShards:        s.Cluster.NumShards,
			ReplicasPerShard: s.Cluster.ReplicasPerShard,
		},
	}

	for _, op := range s.Operations {
		doc.Operations = append(doc.Operations, operationDoc{
			Type:   string(op.Type),
			Target: string(op.Target),
			Shard:  op.Shard,
			Timing: string(op.Timing),
			Delay:  op.DelaySeconds,
		})
	}

	for _, ev := range s.Chaos {
		doc.Chaos = append(doc.Chaos, chaosDoc{
			Type:         string(ev.Type),
			Signal:       string(ev.Signal),
			Target:       string(ev.Target),
			Shard:        ev.Shard,
			Coordination: string(ev.Coordination),
			Delay:        ev.DelaySeconds,
		})
	}

	if s.Workload != nil {
		doc.Workload = &workloadDoc{
			Enabled:   s.Workload.Enabled,
			Pattern:   s.Workload.Pattern,
			Intensity: s.Workload.Intensity,
			Duration:  s.Workload.DurationSeconds,
		}
	}

	doc.Validation = &validationDoc{
		CheckSlotCoverage:    s.Validation.CheckSlotCoverage,
		CheckReplication:     s.Validation.CheckReplication,
		CheckDataConsistency: s.Validation.CheckDataConsistency,
		ValidationTimeout:    s.Validation.ValidationTimeoutSeconds,
		Replication: replicationDoc{
			MaxAcceptableLag: s.Validation.Replication.MaxAcceptableLagSeconds,
		},
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal scenario DSL")
	}
	return out, nil
}

// toScenario はドキュメントをシナリオに変換する（デフォルト値の適用を含む）
func (d *document) toScenario() *Scenario {
	s := &Scenario{
		ID:   d.ScenarioID,
		Seed: d.Seed,
		Cluster: ClusterSpec{
			NumShards:        d.Cluster.NumShards,
			ReplicasPerShard: d.Cluster.ReplicasPerShard,
		},
	}

	for _, op := range d.Operations {
		s.Operations = append(s.Operations, Operation{
			Type:         OperationType(op.Type),
			Target:       TargetRole(op.Target),
			Shard:        op.Shard,
			Timing:       Timing(op.Timing),
			DelaySeconds: op.Delay,
		})
	}

	for _, ev := range d.Chaos {
		s.Chaos = append(s.Chaos, ChaosEvent{
			Type:         ChaosType(ev.Type),
			Signal:       Signal(ev.Signal),
			Target:       TargetRole(ev.Target),
			Shard:        ev.Shard,
			Coordination: Coordination(ev.Coordination),
			DelaySeconds: ev.Delay,
		})
	}

	if d.Workload != nil {
		s.Workload = &WorkloadSpec{
			Enabled:         d.Workload.Enabled,
			Pattern:         d.Workload.Pattern,
			Intensity:       d.Workload.Intensity,
			DurationSeconds: d.Workload.Duration,
		}
	}

	if d.Validation != nil {
		s.Validation = ValidationSpec{
			CheckSlotCoverage:        d.Validation.CheckSlotCoverage,
			CheckReplication:         d.Validation.CheckReplication,
			CheckDataConsistency:     d.Validation.CheckDataConsistency,
			ValidationTimeoutSeconds: d.Validation.ValidationTimeout,
			Replication: ReplicationSpec{
				MaxAcceptableLagSeconds: d.Validation.Replication.MaxAcceptableLag,
			},
		}
	} else {
		s.Validation = DefaultValidationSpec()
	}

	return s
}
