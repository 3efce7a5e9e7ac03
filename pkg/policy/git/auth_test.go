package git

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	cryptossh "golang.org/x/crypto/ssh"

	"nanogov/governor/pkg/config"
)

func writeSSHKey(t *testing.T, perm os.FileMode) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := cryptossh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), perm); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTokenAuth_Method(t *testing.T) {
	t.Setenv("POLICY_REPO_TOKEN", "ghp_fromenv")

	tests := []struct {
		name     string
		token    string
		wantPass string
		wantErr  bool
	}{
		{name: "literal token", token: "ghp_validtoken123", wantPass: "ghp_validtoken123"},
		{name: "token from environment", token: "env:POLICY_REPO_TOKEN", wantPass: "ghp_fromenv"},
		{name: "unset variable", token: "env:NOT_SET_ANYWHERE", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewTokenAuth(tt.token)
			if auth.Type() != "token" {
				t.Errorf("Type() = %q, want token", auth.Type())
			}
			m, err := auth.Method()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Method() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			basic, ok := m.(*http.BasicAuth)
			if !ok {
				t.Fatalf("Method() returned %T, want *http.BasicAuth", m)
			}
			if basic.Password != tt.wantPass {
				t.Errorf("password = %q, want %q", basic.Password, tt.wantPass)
			}
		})
	}
}

func TestSSHAuth_Method(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name: "valid key",
			path: func(t *testing.T) string { return writeSSHKey(t, 0o600) },
		},
		{
			name:    "permissions too open",
			path:    func(t *testing.T) string { return writeSSHKey(t, 0o644) },
			wantErr: "permissions too open",
		},
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") },
			wantErr: "failed to access",
		},
		{
			name: "not a key",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "junk")
				if err := os.WriteFile(p, []byte("dummy key"), 0o600); err != nil {
					t.Fatal(err)
				}
				return p
			},
			wantErr: "failed to load SSH key",
		},
		{
			name:    "empty path",
			path:    func(*testing.T) string { return "" },
			wantErr: "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := NewSSHAuth(tt.path(t), "")
			if auth.Type() != "ssh" {
				t.Errorf("Type() = %q, want ssh", auth.Type())
			}
			m, err := auth.Method()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Method() error = %v", err)
				}
				if m == nil {
					t.Fatal("Method() returned nil auth for a valid key")
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Method() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNoAuth_Method(t *testing.T) {
	auth := NewNoAuth()
	m, err := auth.Method()
	if err != nil || m != nil {
		t.Errorf("Method() = %v, %v; want nil, nil", m, err)
	}
	if auth.Type() != "none" {
		t.Errorf("Type() = %q, want none", auth.Type())
	}
}

func TestNewAuthProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.GitAuthConfig
		wantType string
		wantErr  bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "token", cfg: &config.GitAuthConfig{Type: "token", Token: "t"}, wantType: "token"},
		{name: "token missing", cfg: &config.GitAuthConfig{Type: "token"}, wantErr: true},
		{name: "ssh", cfg: &config.GitAuthConfig{Type: "ssh", SSHKeyPath: "/k"}, wantType: "ssh"},
		{name: "ssh missing path", cfg: &config.GitAuthConfig{Type: "ssh"}, wantErr: true},
		{name: "none", cfg: &config.GitAuthConfig{Type: "none"}, wantType: "none"},
		{name: "empty type", cfg: &config.GitAuthConfig{}, wantType: "none"},
		{name: "unknown", cfg: &config.GitAuthConfig{Type: "oauth"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAuthProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAuthProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && p.Type() != tt.wantType {
				t.Errorf("Type() = %q, want %q", p.Type(), tt.wantType)
			}
		})
	}
}
