package git

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"nanogov/governor/pkg/config"
)

// envPrefix marks a token that names an environment variable instead of
// holding the secret itself, e.g. "env:POLICY_REPO_TOKEN".
const envPrefix = "env:"

// AuthProvider resolves transport credentials for clone and pull.
type AuthProvider interface {
	// Method returns the go-git auth method, or nil for anonymous access.
	Method() (transport.AuthMethod, error)

	// Type names the provider for logs.
	Type() string
}

type tokenAuth struct {
	token string
}

// NewTokenAuth returns HTTPS basic auth carrying a personal access token.
func NewTokenAuth(token string) AuthProvider {
	return &tokenAuth{token: token}
}

func (a *tokenAuth) Method() (transport.AuthMethod, error) {
	token := a.token
	if name, ok := strings.CutPrefix(token, envPrefix); ok {
		token = os.Getenv(name)
		if token == "" {
			return nil, fmt.Errorf("token variable %s is not set", name)
		}
	}
	if token == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}
	// Hosts ignore the user name when the password is a token.
	return &http.BasicAuth{Username: "git", Password: token}, nil
}

func (a *tokenAuth) Type() string { return "token" }

type sshAuth struct {
	keyPath    string
	passphrase string
}

// NewSSHAuth returns public key auth from a private key file. The file must
// not be readable by group or others.
func NewSSHAuth(keyPath, passphrase string) AuthProvider {
	return &sshAuth{keyPath: keyPath, passphrase: passphrase}
}

func (a *sshAuth) Method() (transport.AuthMethod, error) {
	if a.keyPath == "" {
		return nil, fmt.Errorf("ssh key path cannot be empty")
	}
	info, err := os.Stat(a.keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access SSH key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
	}
	keys, err := ssh.NewPublicKeysFromFile("git", a.keyPath, a.passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return keys, nil
}

func (a *sshAuth) Type() string { return "ssh" }

type anonymous struct{}

// NewNoAuth returns a provider for public repositories and local paths.
func NewNoAuth() AuthProvider { return anonymous{} }

func (anonymous) Method() (transport.AuthMethod, error) { return nil, nil }

func (anonymous) Type() string { return "none" }

// NewAuthProvider builds the provider named by cfg.Type. An empty type is
// treated as "none".
func NewAuthProvider(cfg *config.GitAuthConfig) (AuthProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("auth config cannot be nil")
	}
	switch cfg.Type {
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires non-empty token")
		}
		return NewTokenAuth(cfg.Token), nil
	case "ssh":
		if cfg.SSHKeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires ssh_key_path")
		}
		return NewSSHAuth(cfg.SSHKeyPath, cfg.SSHKeyPassphrase), nil
	case "none", "":
		return NewNoAuth(), nil
	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.Type)
	}
}
