package signature

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	pemPrivateSuffix = " PRIVATE KEY SEED"
	pemPublicSuffix  = " PUBLIC KEY"
)

var ErrNoPEMBlock = errors.New("no PEM block found")

// GenerateKey returns a fresh key pair for the named algorithm.
func GenerateKey(algorithm string) (*KeyPair, error) {
	return GenerateKeyFrom(algorithm, rand.Reader)
}

// GenerateKeyFrom draws the seed from r.
func GenerateKeyFrom(algorithm string, r io.Reader) (*KeyPair, error) {
	scheme, err := SchemeByName(algorithm)
	if err != nil {
		return nil, err
	}
	var seed [SeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return nil, fmt.Errorf("failed to read key seed: %w", err)
	}
	return scheme.KeyFromSeed(seed), nil
}

// DeriveKey deterministically derives a key pair from master key material
// and a label using HKDF-SHA256. Distinct labels yield independent keys.
func DeriveKey(algorithm string, master []byte, label string) (*KeyPair, error) {
	return GenerateKeyFrom(algorithm, hkdf.New(sha256.New, master, nil, []byte("governor/policy-key/"+label)))
}

// WritePublicKey writes the public half of kp as PEM. Public keys are
// world-readable.
func WritePublicKey(path string, kp *KeyPair) error {
	return writePEM(path, &pem.Block{Type: pemType(kp.Algorithm, pemPublicSuffix), Bytes: kp.PublicKey}, 0o644)
}

// WritePrivateKey writes the seed of kp as PEM readable only by the owner.
func WritePrivateKey(path string, kp *KeyPair) error {
	return writePEM(path, &pem.Block{Type: pemType(kp.Algorithm, pemPrivateSuffix), Bytes: kp.Seed[:]}, 0o600)
}

// WriteKeyPair writes <dir>/<id>_public.pem and <dir>/<id>_private.pem.
func WriteKeyPair(dir, id string, kp *KeyPair) (publicPath, privatePath string, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create key directory: %w", err)
	}
	publicPath = filepath.Join(dir, id+"_public.pem")
	privatePath = filepath.Join(dir, id+"_private.pem")
	if err := WritePublicKey(publicPath, kp); err != nil {
		return "", "", fmt.Errorf("failed to save public key: %w", err)
	}
	if err := WritePrivateKey(privatePath, kp); err != nil {
		return "", "", fmt.Errorf("failed to save private key: %w", err)
	}
	return publicPath, privatePath, nil
}

// LoadPrivateKey reads a key pair from a private key PEM file.
func LoadPrivateKey(path string) (*KeyPair, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	alg, ok := algorithmOf(block.Type, pemPrivateSuffix)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected PEM type %q", path, block.Type)
	}
	scheme, err := SchemeByName(alg)
	if err != nil {
		return nil, err
	}
	if len(block.Bytes) != SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes, want %d", ErrMalformedKey, len(block.Bytes), SeedSize)
	}
	var seed [SeedSize]byte
	copy(seed[:], block.Bytes)
	return scheme.KeyFromSeed(seed), nil
}

// LoadPublicKey reads a public key PEM file and returns its algorithm and
// raw key bytes.
func LoadPublicKey(path string) (string, []byte, error) {
	block, err := readPEM(path)
	if err != nil {
		return "", nil, err
	}
	alg, ok := algorithmOf(block.Type, pemPublicSuffix)
	if !ok {
		return "", nil, fmt.Errorf("%s: unexpected PEM type %q", path, block.Type)
	}
	scheme, err := SchemeByName(alg)
	if err != nil {
		return "", nil, err
	}
	if len(block.Bytes) != scheme.PublicKeySize() {
		return "", nil, fmt.Errorf("%w: %s public key is %d bytes, want %d", ErrMalformedKey, alg, len(block.Bytes), scheme.PublicKeySize())
	}
	return alg, block.Bytes, nil
}

func pemType(alg, suffix string) string {
	return strings.ToUpper(alg) + suffix
}

func algorithmOf(typ, suffix string) (string, bool) {
	alg, ok := strings.CutSuffix(typ, suffix)
	if !ok || alg == "" {
		return "", false
	}
	return strings.ToLower(alg), true
}

func writePEM(path string, block *pem.Block, mode os.FileMode) error {
	// #nosec G304 - operator-chosen output path.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer file.Close()

	return pem.Encode(file, block)
}

func readPEM(path string) (*pem.Block, error) {
	// #nosec G304 - operator-chosen key path.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPEMBlock)
	}
	return block, nil
}
