package workload

import (
	"context"
	"testing"
	"time"

	"cluster-fuzz/internal/cluster"
	"cluster-fuzz/internal/scenario"
)

func formedSim(t *testing.T, numShards, replicas int) *cluster.SimCluster {
	t.Helper()
	sim := cluster.NewSim(cluster.DefaultSimConfig())
	spec := scenario.ClusterSpec{NumShards: numShards, ReplicasPerShard: replicas}
	if err := sim.Form(context.Background(), spec); err != nil {
		t.Fatalf("Form failed: %v", err)
	}
	return sim
}

func TestCanaryRoundTrip(t *testing.T) {
	sim := formedSim(t, 3, 1)
	ctx := context.Background()

	client := New(sim, Config{CanaryCount: 32})
	if err := client.WriteCanaries(ctx); err != nil {
		t.Fatalf("WriteCanaries failed: %v", err)
	}
	if client.CanaryCount() != 32 {
		t.Errorf("expected 32 canaries, got %d", client.CanaryCount())
	}

	missing := client.ReadCanaries(ctx)
	if missing != 0 {
		t.Errorf("expected 0 missing canaries on healthy cluster, got %d", missing)
	}
}

func TestCanariesMissingAfterPrimaryKill(t *testing.T) {
	sim := formedSim(t, 3, 0)
	ctx := context.Background()

	client := New(sim, Config{CanaryCount: 64})
	if err := client.WriteCanaries(ctx); err != nil {
		t.Fatalf("WriteCanaries failed: %v", err)
	}

	if err := sim.Signal(ctx, "shard0-p", scenario.SignalKill); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}

	missing := client.ReadCanaries(ctx)
	if missing == 0 {
		t.Error("expected missing canaries after killing a primary without replicas")
	}
	if missing >= 64 {
		t.Errorf("expected only one shard's canaries lost, got %d of 64", missing)
	}
}

func TestTrafficGeneration(t *testing.T) {
	sim := formedSim(t, 3, 1)
	ctx := context.Background()

	client := New(sim, Config{NumWorkers: 2, CanaryCount: 8, KeyRange: 100})
	spec := scenario.WorkloadSpec{
		Enabled:         true,
		Pattern:         "mixed",
		Intensity:       "high",
		DurationSeconds: 10,
	}

	client.Start(ctx, spec)
	if !client.IsRunning() {
		t.Error("expected client running after Start")
	}

	time.Sleep(100 * time.Millisecond)
	client.Stop()

	if client.IsRunning() {
		t.Error("expected client stopped after Stop")
	}

	snap := client.Latency()
	if snap.TotalRequests == 0 {
		t.Error("expected traffic to record requests")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	sim := formedSim(t, 3, 0)
	client := New(sim, DefaultConfig())

	client.Start(context.Background(), scenario.WorkloadSpec{Enabled: false})
	if client.IsRunning() {
		t.Error("expected disabled workload to not start")
	}
}

func TestPatternAndIntensityMapping(t *testing.T) {
	if writeRatioFor("read_heavy") >= writeRatioFor("write_heavy") {
		t.Error("expected read_heavy to write less than write_heavy")
	}
	if intervalFor("high") >= intervalFor("low") {
		t.Error("expected high intensity to use a shorter interval")
	}
}
