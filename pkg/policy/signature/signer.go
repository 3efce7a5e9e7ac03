package signature

import (
	"fmt"

	"nanogov/governor/pkg/policy"
)

// Signer produces policy and removal signatures with one key pair.
type Signer struct {
	scheme Scheme
	key    *KeyPair
}

// NewSigner returns a signer for kp.
func NewSigner(kp *KeyPair) (*Signer, error) {
	scheme, err := SchemeByName(kp.Algorithm)
	if err != nil {
		return nil, err
	}
	return &Signer{scheme: scheme, key: kp}, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() []byte {
	return s.key.PublicKey
}

// Algorithm returns the signer's algorithm tag.
func (s *Signer) Algorithm() string {
	return s.scheme.Name()
}

// Sign signs message.
func (s *Signer) Sign(message []byte) policy.Signature {
	return policy.Signature{
		Algorithm: s.scheme.Name(),
		Value:     s.scheme.Sign(s.key.Seed, message),
		PublicKey: append([]byte(nil), s.key.PublicKey...),
	}
}

// SignPolicy returns a copy of p signed over its canonical form.
func (s *Signer) SignPolicy(p *policy.Policy) *policy.Policy {
	return p.WithSignature(s.Sign(p.Canonical()))
}

// SignRemoval signs r in place.
func (s *Signer) SignRemoval(r *policy.RemovalRequest) error {
	body, err := r.Canonical()
	if err != nil {
		return fmt.Errorf("failed to canonicalize removal request: %w", err)
	}
	r.Signature = s.Sign(body)
	return nil
}
