// Package gcryptotest provides deterministic keys for tests.
package gcryptotest

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/gordian-engine/gdag/gcrypto"
)

var (
	muEd      sync.Mutex
	generated []ed25519.PrivateKey
)

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys are the same on every call and every run.
// Keys are generated once and cached for the life of the process.
func DeterministicEd25519Signers(n int) []gcrypto.Ed25519Signer {
	muEd.Lock()
	defer muEd.Unlock()

	for i := len(generated); i < n; i++ {
		seed := fmt.Sprintf("%032d", i) // Seed must be 32 bytes long.
		generated = append(generated, ed25519.NewKeyFromSeed([]byte(seed)))
	}

	res := make([]gcrypto.Ed25519Signer, n)
	for i := range res {
		res[i] = gcrypto.NewEd25519Signer(bytes.Clone(generated[i]))
	}
	return res
}
