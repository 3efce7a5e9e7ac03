package signature

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
)

const (
	// AlgorithmDilithium2 is the deployed post-quantum scheme.
	AlgorithmDilithium2 = "dilithium2"

	// AlgorithmEd25519 is accepted for constrained deployments and tooling.
	AlgorithmEd25519 = "ed25519"

	// SeedSize is the length of the secret seed every scheme derives keys from.
	SeedSize = 32
)

// KeyPair holds a secret seed and the public key derived from it.
type KeyPair struct {
	Algorithm string
	Seed      [SeedSize]byte
	PublicKey []byte
}

// Scheme is a signature algorithm. Private keys are represented by their seed.
type Scheme interface {
	Name() string
	PublicKeySize() int
	SignatureSize() int
	KeyFromSeed(seed [SeedSize]byte) *KeyPair
	Sign(seed [SeedSize]byte, message []byte) []byte
	Verify(publicKey, message, sig []byte) bool
}

// Dilithium2 returns the CRYSTALS-Dilithium mode 2 scheme.
func Dilithium2() Scheme {
	return dilithium2Scheme{}
}

// Ed25519 returns the Ed25519 scheme.
func Ed25519() Scheme {
	return ed25519Scheme{}
}

// SchemeByName returns the built-in scheme with the given name.
func SchemeByName(name string) (Scheme, error) {
	switch name {
	case AlgorithmDilithium2:
		return Dilithium2(), nil
	case AlgorithmEd25519:
		return Ed25519(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

type dilithium2Scheme struct{}

func (dilithium2Scheme) Name() string       { return AlgorithmDilithium2 }
func (dilithium2Scheme) PublicKeySize() int { return mode2.PublicKeySize }
func (dilithium2Scheme) SignatureSize() int { return mode2.SignatureSize }

func (dilithium2Scheme) KeyFromSeed(seed [SeedSize]byte) *KeyPair {
	pk, _ := mode2.NewKeyFromSeed(&seed)
	return &KeyPair{Algorithm: AlgorithmDilithium2, Seed: seed, PublicKey: pk.Bytes()}
}

func (dilithium2Scheme) Sign(seed [SeedSize]byte, message []byte) []byte {
	_, sk := mode2.NewKeyFromSeed(&seed)
	sig := make([]byte, mode2.SignatureSize)
	mode2.SignTo(sk, message, sig)
	return sig
}

func (dilithium2Scheme) Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != mode2.PublicKeySize || len(sig) != mode2.SignatureSize {
		return false
	}
	var pk mode2.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mode2.Verify(&pk, message, sig)
}

type ed25519Scheme struct{}

func (ed25519Scheme) Name() string       { return AlgorithmEd25519 }
func (ed25519Scheme) PublicKeySize() int { return ed25519.PublicKeySize }
func (ed25519Scheme) SignatureSize() int { return ed25519.SignatureSize }

func (ed25519Scheme) KeyFromSeed(seed [SeedSize]byte) *KeyPair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	return &KeyPair{Algorithm: AlgorithmEd25519, Seed: seed, PublicKey: []byte(priv.Public().(ed25519.PublicKey))}
}

func (ed25519Scheme) Sign(seed [SeedSize]byte, message []byte) []byte {
	return ed25519.Sign(ed25519.NewKeyFromSeed(seed[:]), message)
}

func (ed25519Scheme) Verify(publicKey, message, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, sig)
}
