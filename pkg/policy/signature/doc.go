// Package signature verifies and produces the signatures that gate policy
// admission, removal and supersession.
//
// Two schemes are built in: CRYSTALS-Dilithium mode 2 (the deployed
// post-quantum scheme, via github.com/cloudflare/circl) and Ed25519. Every
// private key is represented by a 32-byte seed, so key files are small and
// keys can be derived deterministically with DeriveKey.
//
// A Registry dispatches on the algorithm tag carried by each signature and
// accepts only the signer keys it was given. The public key embedded in a
// document is never trusted on its own:
//
//	reg := signature.NewRegistry(signature.WithTrustedKeys(authorityKey))
//	if err := reg.Verify(p.Canonical(), p.Signature); err != nil {
//		// reject
//	}
package signature
