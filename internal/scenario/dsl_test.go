package scenario

import (
	"reflect"
	"strings"
	"testing"
)

const sampleDSL = `
scenario_id: sample
seed: 42
cluster:
  num_shards: 3
  replicas_per_shard: 1
operations:
  - type: failover
    target: replica
    shard: 1
    timing: immediate
chaos:
  - type: process_kill
    signal: SIGKILL
    target: primary
    shard: 0
    coordination: before_operation
    delay: 0.5
workload:
  enabled: true
  pattern: uniform
  intensity: low
  duration: 2
state_validation:
  check_slot_coverage: true
  check_replication: true
  check_data_consistency: true
  validation_timeout: 10
  replication_config:
    max_acceptable_lag: 3
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleDSL))
	if err != nil {
		t.Fatalf("failed to parse DSL: %v", err)
	}

	if s.ID != "sample" {
		t.Errorf("expected id 'sample', got %s", s.ID)
	}
	if s.Seed != 42 {
		t.Errorf("expected seed 42, got %d", s.Seed)
	}
	if s.Cluster.NumShards != 3 || s.Cluster.ReplicasPerShard != 1 {
		t.Errorf("unexpected cluster spec: %+v", s.Cluster)
	}
	if len(s.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(s.Operations))
	}
	if s.Operations[0].Target != TargetReplica || s.Operations[0].Shard != 1 {
		t.Errorf("unexpected operation: %+v", s.Operations[0])
	}
	if len(s.Chaos) != 1 {
		t.Fatalf("expected 1 chaos event, got %d", len(s.Chaos))
	}
	if s.Chaos[0].Coordination != CoordBeforeOperation {
		t.Errorf("expected before_operation, got %s", s.Chaos[0].Coordination)
	}
	if s.Chaos[0].DelaySeconds != 0.5 {
		t.Errorf("expected delay 0.5, got %f", s.Chaos[0].DelaySeconds)
	}
	if s.Workload == nil || !s.Workload.Enabled {
		t.Error("expected workload to be enabled")
	}
	if s.Validation.ValidationTimeoutSeconds != 10 {
		t.Errorf("expected validation timeout 10, got %f", s.Validation.ValidationTimeoutSeconds)
	}
	if s.Validation.Replication.MaxAcceptableLagSeconds != 3 {
		t.Errorf("expected max lag 3, got %f", s.Validation.Replication.MaxAcceptableLagSeconds)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	dsl := `
seed: 1
cluster:
  num_shards: 3
  replicas_per_shard: 0
  flux_capacitor: true
`
	_, err := Parse([]byte(dsl))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !IsValidationError(err) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestParseRejectsOutOfRange(t *testing.T) {
	dsl := `
seed: 1
cluster:
  num_shards: 20
  replicas_per_shard: 0
`
	_, err := Parse([]byte(dsl))
	if err == nil {
		t.Fatal("expected error for out-of-range shard count")
	}
	if !strings.Contains(err.Error(), "num_shards") {
		t.Errorf("expected error naming num_shards, got %v", err)
	}
}

func TestParseDefaultsValidation(t *testing.T) {
	dsl := `
seed: 5
cluster:
  num_shards: 4
  replicas_per_shard: 1
`
	s, err := Parse([]byte(dsl))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	def := DefaultValidationSpec()
	if !reflect.DeepEqual(s.Validation, def) {
		t.Errorf("expected default validation spec %+v, got %+v", def, s.Validation)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	_, err := Parse([]byte(""))
	if err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestRoundTripGenerated(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		orig, err := Generate(seed)
		if err != nil {
			t.Fatalf("seed %d: failed to generate: %v", seed, err)
		}

		data, err := orig.MarshalDSL()
		if err != nil {
			t.Fatalf("seed %d: failed to marshal: %v", seed, err)
		}

		parsed, err := Parse(data)
		if err != nil {
			t.Fatalf("seed %d: failed to re-parse: %v\n%s", seed, err, data)
		}

		if !reflect.DeepEqual(orig, parsed) {
			t.Errorf("seed %d: round-trip mismatch\noriginal: %+v\nparsed:   %+v\ndsl:\n%s", seed, orig, parsed, data)
		}
	}
}

func TestRoundTripPresets(t *testing.T) {
	for _, name := range ListPresets() {
		orig, ok := GetPreset(name)
		if !ok {
			t.Fatalf("preset %s not found", name)
		}

		data, err := orig.MarshalDSL()
		if err != nil {
			t.Fatalf("preset %s: failed to marshal: %v", name, err)
		}

		parsed, err := Parse(data)
		if err != nil {
			t.Fatalf("preset %s: failed to re-parse: %v", name, err)
		}

		if !reflect.DeepEqual(orig, parsed) {
			t.Errorf("preset %s: round-trip mismatch", name)
		}
	}
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	if len(names) != 3 {
		t.Errorf("expected 3 presets, got %d", len(names))
	}

	for _, name := range names {
		s, ok := GetPreset(name)
		if !ok {
			t.Errorf("failed to get preset %s", name)
			continue
		}
		if s.ID != name {
			t.Errorf("expected preset id %s, got %s", name, s.ID)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("preset %s is invalid: %v", name, err)
		}
	}
}

func TestGetPresetNotFound(t *testing.T) {
	_, ok := GetPreset("nonexistent")
	if ok {
		t.Error("expected GetPreset to return false for nonexistent preset")
	}
}
