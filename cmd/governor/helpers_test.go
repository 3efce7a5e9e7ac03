package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"nanogov/governor/internal/testkeys"
	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
)

// testCommand returns a command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	return cmd, &stdout, &stderr
}

// isolate points the commands at defaults plus environment, trusts the
// test authority key and keeps the evidence archive inside the test
// directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgFile = ""
	verbose = false
	trusted := filepath.Join(t.TempDir(), "authority_public.pem")
	if err := signature.WritePublicKey(trusted, testkeys.Key(t, signature.AlgorithmDilithium2, "authority")); err != nil {
		t.Fatalf("write trusted key: %v", err)
	}
	t.Setenv("GOVERNOR_SIGNATURE_TRUSTED_KEYS", trusted)
	t.Setenv("GOVERNOR_EVIDENCE_SQLITE_PATH", filepath.Join(dir, "evidence.db"))
	t.Setenv("GOVERNOR_TELEMETRY_LOGGING_LEVEL", "error")
	return dir
}

func memoryRule() policy.Rule {
	return policy.NewRule("MEM-100", "memory_allocated > 2048", policy.ActionDeny, "Memory above 2 KiB")
}

// writePolicy encodes p into dir/name.
func writePolicy(t *testing.T, dir, name string, p *policy.Policy) string {
	t.Helper()
	data, err := policy.Encode(p)
	if err != nil {
		t.Fatalf("encode %s: %v", p.ID, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// unsignedPolicy builds a well-formed policy with no signature.
func unsignedPolicy(t *testing.T, id string) *policy.Policy {
	t.Helper()
	p, err := policy.Build(policy.Spec{
		ID:          id,
		Version:     "1.0.0",
		Description: "cli test policy",
		Rules:       []policy.Rule{memoryRule()},
		Enforcement: policy.AllCheckpoints,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return p
}

// writeAuthorityKeys writes the deterministic authority key pair to dir.
func writeAuthorityKeys(t *testing.T, dir string) (publicPath, privatePath string) {
	t.Helper()
	kp := testkeys.Key(t, signature.AlgorithmDilithium2, "authority")
	publicPath, privatePath, err := signature.WriteKeyPair(dir, "authority", kp)
	if err != nil {
		t.Fatalf("write key pair: %v", err)
	}
	return publicPath, privatePath
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// isolatedConfig loads the configuration the commands would see.
func isolatedConfig(t *testing.T) *config.Config {
	t.Helper()
	isolate(t)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	return cfg
}
