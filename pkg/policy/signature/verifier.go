package signature

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"nanogov/governor/pkg/policy"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrBadSignature         = errors.New("signature does not verify")
	ErrMalformedKey         = errors.New("malformed key or signature length")
	ErrUntrustedKey         = errors.New("public key is not a trusted policy authority")
	ErrNoTrustedKeys        = errors.New("no trusted policy authority configured")
)

// Verifier checks a signature record against the canonical bytes it covers.
type Verifier interface {
	Verify(message []byte, sig policy.Signature) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(message []byte, sig policy.Signature) error

// Verify calls f.
func (f VerifierFunc) Verify(message []byte, sig policy.Signature) error {
	return f(message, sig)
}

// Registry dispatches verification on the signature's algorithm tag and
// accepts only signatures made by one of its trusted keys. A registry with
// no trusted keys rejects every signature.
type Registry struct {
	schemes map[string]Scheme
	trusted [][]byte
}

// Option configures a Registry.
type Option func(*Registry)

// WithSchemes replaces the accepted schemes.
func WithSchemes(schemes ...Scheme) Option {
	return func(r *Registry) {
		r.schemes = make(map[string]Scheme, len(schemes))
		for _, s := range schemes {
			r.schemes[s.Name()] = s
		}
	}
}

// WithTrustedKeys adds public keys allowed to sign admissions and removals.
func WithTrustedKeys(keys ...[]byte) Option {
	return func(r *Registry) {
		for _, k := range keys {
			r.trusted = append(r.trusted, append([]byte(nil), k...))
		}
	}
}

// NewRegistry returns a registry accepting Dilithium2 and Ed25519 signatures
// from the keys given with WithTrustedKeys.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	WithSchemes(Dilithium2(), Ed25519())(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Algorithms returns the accepted algorithm names.
func (r *Registry) Algorithms() []string {
	out := make([]string, 0, len(r.schemes))
	for name := range r.schemes {
		out = append(out, name)
	}
	return out
}

// Verify implements Verifier.
func (r *Registry) Verify(message []byte, sig policy.Signature) error {
	scheme, ok := r.schemes[sig.Algorithm]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, sig.Algorithm)
	}
	if len(sig.PublicKey) != scheme.PublicKeySize() || len(sig.Value) != scheme.SignatureSize() {
		return fmt.Errorf("%w: %s expects %d-byte key and %d-byte signature, got %d and %d",
			ErrMalformedKey, scheme.Name(), scheme.PublicKeySize(), scheme.SignatureSize(), len(sig.PublicKey), len(sig.Value))
	}
	if len(r.trusted) == 0 {
		return ErrNoTrustedKeys
	}
	if !r.isTrusted(sig.PublicKey) {
		return ErrUntrustedKey
	}
	if !scheme.Verify(sig.PublicKey, message, sig.Value) {
		return ErrBadSignature
	}
	return nil
}

func (r *Registry) isTrusted(key []byte) bool {
	found := 0
	for _, t := range r.trusted {
		if len(t) == len(key) {
			found |= subtle.ConstantTimeCompare(t, key)
		}
	}
	return found == 1
}
