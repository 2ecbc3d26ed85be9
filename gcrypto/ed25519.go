package gcrypto

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Ed25519PubKey is a [PubKey] backed by an ed25519 public key.
type Ed25519PubKey ed25519.PublicKey

var (
	_ PubKey = Ed25519PubKey(nil)
	_ Signer = Ed25519Signer{}
)

func (k Ed25519PubKey) PubKeyBytes() []byte { return []byte(k) }

// Verify rejects keys of the wrong length instead of panicking.
func (k Ed25519PubKey) Verify(msg, sig []byte) bool {
	return len(k) == ed25519.PublicKeySize &&
		ed25519.Verify(ed25519.PublicKey(k), msg, sig)
}

func (k Ed25519PubKey) Equal(other PubKey) bool {
	if o, ok := other.(Ed25519PubKey); ok {
		return ed25519.PublicKey(k).Equal(ed25519.PublicKey(o))
	}
	return false
}

// Ed25519Signer is a [Signer] holding an ed25519 private key in memory.
type Ed25519Signer struct {
	key ed25519.PrivateKey
	pk  Ed25519PubKey
}

func NewEd25519Signer(key ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{
		key: key,
		pk:  Ed25519PubKey(key.Public().(ed25519.PublicKey)),
	}
}

// Ed25519SignerFromPassphrase derives a signer from a blake2b hash of prefix and passphrase.
// The key is only as secret as the passphrase,
// so this is meant for simulations and local networks.
func Ed25519SignerFromPassphrase(prefix, passphrase string) (Ed25519Signer, error) {
	h, err := blake2b.New(ed25519.SeedSize, nil)
	if err != nil {
		return Ed25519Signer{}, fmt.Errorf("blake2b for passphrase seed: %w", err)
	}
	_, _ = h.Write([]byte(prefix))
	_, _ = h.Write([]byte(passphrase))

	return NewEd25519Signer(ed25519.NewKeyFromSeed(h.Sum(nil))), nil
}

func (s Ed25519Signer) PubKey() PubKey { return s.pk }

// Sign never blocks, so ctx is unused.
func (s Ed25519Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	// Hash(0) selects pure ed25519, signing input directly.
	return s.key.Sign(nil, input, crypto.Hash(0))
}
