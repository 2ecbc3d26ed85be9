// Package gcrypto holds the public key and signer abstractions
// used to identify authorities and to sign their blocks.
package gcrypto

import "context"

// PubKey is an authority's public key, as listed in the committee.
type PubKey interface {
	PubKeyBytes() []byte

	Equal(other PubKey) bool

	// Verify reports whether sig is a valid signature of msg.
	Verify(msg, sig []byte) bool
}

// Signer signs blocks on behalf of one authority.
type Signer interface {
	PubKey() PubKey

	// Sign may block if the key is held remotely,
	// so it honors ctx cancellation.
	Sign(ctx context.Context, input []byte) (signature []byte, err error)
}
