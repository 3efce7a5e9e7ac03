package config

import (
	"reflect"
	"slices"
	"testing"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.NodeID == "" {
		t.Error("expected node id to default to the hostname")
	}
	if cfg.Engine.LogCapacity != DefaultLogCapacity {
		t.Errorf("log capacity = %d, want %d", cfg.Engine.LogCapacity, DefaultLogCapacity)
	}
	if !slices.Equal(cfg.Engine.Checkpoints, DefaultCheckpoints) {
		t.Errorf("checkpoints = %v, want %v", cfg.Engine.Checkpoints, DefaultCheckpoints)
	}
	if cfg.Policies.Capacity != DefaultPolicyCapacity {
		t.Errorf("policy capacity = %d, want %d", cfg.Policies.Capacity, DefaultPolicyCapacity)
	}
	if !slices.Equal(cfg.Signature.Algorithms, DefaultSignatureAlgorithms) {
		t.Errorf("algorithms = %v, want %v", cfg.Signature.Algorithms, DefaultSignatureAlgorithms)
	}
	if !cfg.Evidence.Enabled {
		t.Error("expected evidence to be enabled by default")
	}
	if cfg.Evidence.Backend != DefaultEvidenceBackend {
		t.Errorf("backend = %q, want %q", cfg.Evidence.Backend, DefaultEvidenceBackend)
	}
	if cfg.Evidence.Retention.Days != DefaultEvidenceRetentionDays {
		t.Errorf("retention days = %d, want %d", cfg.Evidence.Retention.Days, DefaultEvidenceRetentionDays)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want %q", cfg.Server.ListenAddress, DefaultListenAddress)
	}
	if cfg.StateBus.Enabled {
		t.Error("expected state bus to be disabled by default")
	}
	if !cfg.Telemetry.Metrics.Enabled {
		t.Error("expected metrics to be enabled by default")
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Engine:   EngineConfig{NodeID: "edge-1", LogCapacity: 7},
		Policies: PoliciesConfig{Capacity: 3},
		Server:   ServerConfig{ListenAddress: "0.0.0.0:9000"},
	}
	ApplyDefaults(cfg)

	if cfg.Engine.NodeID != "edge-1" {
		t.Errorf("node id = %q, want edge-1", cfg.Engine.NodeID)
	}
	if cfg.Engine.LogCapacity != 7 {
		t.Errorf("log capacity = %d, want 7", cfg.Engine.LogCapacity)
	}
	if cfg.Policies.Capacity != 3 {
		t.Errorf("capacity = %d, want 3", cfg.Policies.Capacity)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v, want %v", cfg.Server.ReadTimeout, DefaultReadTimeout)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	before := *cfg
	ApplyDefaults(cfg)

	if !reflect.DeepEqual(cfg.Server, before.Server) {
		t.Errorf("server section changed on second pass: %+v vs %+v", cfg.Server, before.Server)
	}
	if cfg.Evidence.SQLite != before.Evidence.SQLite {
		t.Errorf("sqlite section changed on second pass")
	}
}

func TestDefaultConfig_SlicesAreIndependent(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	a.Engine.Checkpoints[0] = "mutated"
	if b.Engine.Checkpoints[0] == "mutated" {
		t.Fatal("default checkpoint slice is shared between configurations")
	}
	if DefaultCheckpoints[0] == "mutated" {
		t.Fatal("DefaultCheckpoints was mutated through a configuration")
	}
}
