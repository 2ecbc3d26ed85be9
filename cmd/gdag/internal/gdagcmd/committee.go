package gdagcmd

import (
	"fmt"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/gcrypto"
)

// NewCommitteeFixture builds an equally staked committee of n authorities
// whose keys derive from passphrase and the authority index,
// so that every invocation with the same arguments agrees on the committee.
func NewCommitteeFixture(passphrase string, n int) (*dgconsensustest.Fixture, error) {
	if n < 1 {
		return nil, fmt.Errorf("committee needs at least one authority (got %d)", n)
	}

	signers := make([]gcrypto.Ed25519Signer, n)
	auths := make([]dgconsensus.Authority, n)
	for i := range n {
		s, err := gcrypto.Ed25519SignerFromPassphrase(fmt.Sprintf("gdag-sim:%d|", i), passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key for authority %d: %w", i, err)
		}
		signers[i] = s
		auths[i] = dgconsensus.Authority{
			Index:    dgconsensus.AuthorityIndex(i),
			Stake:    1,
			PubKey:   s.PubKey(),
			Hostname: fmt.Sprintf("sim-%d", i),
		}
	}

	c, err := dgconsensus.NewCommittee(auths)
	if err != nil {
		return nil, fmt.Errorf("failed to build committee: %w", err)
	}

	return &dgconsensustest.Fixture{
		Committee:  c,
		Signers:    signers,
		HashScheme: dgconsensus.Blake2bHashScheme{},
	}, nil
}
