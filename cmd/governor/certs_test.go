package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func resetCertsFlags(dir string) {
	certsFlags.hosts = "localhost,127.0.0.1"
	certsFlags.org = "Governor"
	certsFlags.validity = 365
	certsFlags.output = dir
	certsFlags.certFile = filepath.Join(dir, "cert.pem")
	certsFlags.keyFile = filepath.Join(dir, "key.pem")
	certsFlags.caFile = ""
	certsFlags.format = "text"
}

func TestCertsGenerateAndValidate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	resetCertsFlags(dir)

	cmd, out, _ := testCommand()
	if err := generateCertificate(cmd, nil); err != nil {
		t.Fatalf("generateCertificate() error = %v", err)
	}
	if !strings.Contains(out.String(), "cert_file:") {
		t.Errorf("missing config snippet:\n%s", out.String())
	}
	info, err := os.Stat(certsFlags.keyFile)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key permissions = %o, want 600", info.Mode().Perm())
	}

	certsFlags.caFile = certsFlags.certFile
	cmd, out, _ = testCommand()
	if err := validateCertificate(cmd, nil); err != nil {
		t.Fatalf("validateCertificate() error = %v", err)
	}
	if !strings.Contains(out.String(), "Chains to") {
		t.Errorf("output = %s", out.String())
	}
}

func TestCertsValidateMismatch(t *testing.T) {
	dir := t.TempDir()
	resetCertsFlags(filepath.Join(dir, "a"))
	cmd, _, _ := testCommand()
	if err := generateCertificate(cmd, nil); err != nil {
		t.Fatal(err)
	}
	certA := certsFlags.certFile

	resetCertsFlags(filepath.Join(dir, "b"))
	if err := generateCertificate(cmd, nil); err != nil {
		t.Fatal(err)
	}
	certsFlags.certFile = certA

	cmd, out, _ := testCommand()
	if err := validateCertificate(cmd, nil); err == nil {
		t.Error("validateCertificate() accepted a key from another pair")
	}
	if !strings.Contains(out.String(), "✗") {
		t.Errorf("output = %s", out.String())
	}
}

func TestCertsGenerateBadValidity(t *testing.T) {
	resetCertsFlags(t.TempDir())
	certsFlags.validity = 0
	cmd, _, _ := testCommand()
	if err := generateCertificate(cmd, nil); err == nil {
		t.Error("generateCertificate() accepted zero validity")
	}
}

func TestCertsInfo(t *testing.T) {
	dir := t.TempDir()
	resetCertsFlags(dir)
	cmd, _, _ := testCommand()
	if err := generateCertificate(cmd, nil); err != nil {
		t.Fatal(err)
	}

	cmd, out, _ := testCommand()
	if err := certificateInfo(cmd, []string{certsFlags.certFile}); err != nil {
		t.Fatalf("certificateInfo() error = %v", err)
	}
	for _, want := range []string{"CN=localhost", "DNS: localhost", "IP:  127.0.0.1", "✓ Valid"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, out.String())
		}
	}

	certsFlags.format = "json"
	cmd, out, _ = testCommand()
	if err := certificateInfo(cmd, []string{certsFlags.certFile}); err != nil {
		t.Fatal(err)
	}
	var s certificateSummary
	if err := json.Unmarshal(out.Bytes(), &s); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !s.IsCA || s.Expired || s.KeyAlgorithm != "ECDSA" {
		t.Errorf("summary = %+v", s)
	}

	if err := certificateInfo(cmd, []string{certsFlags.keyFile}); err == nil {
		t.Error("certificateInfo() accepted a private key file")
	}
}
