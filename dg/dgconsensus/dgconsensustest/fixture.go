// Package dgconsensustest contains fixtures for tests of the DAG consensus core:
// deterministic committees with real ed25519 keys, and a layered [DagBuilder].
package dgconsensustest

import (
	"context"
	"fmt"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/gcrypto"
	"github.com/gordian-engine/gdag/gcrypto/gcryptotest"
)

// Fixture is a committee along with the signing keys of every member.
type Fixture struct {
	Committee  dgconsensus.Committee
	Signers    []gcrypto.Ed25519Signer
	HashScheme dgconsensus.HashScheme
}

// NewFixture returns a fixture of n equally staked authorities.
func NewFixture(n int) *Fixture {
	stakes := make([]uint64, n)
	for i := range stakes {
		stakes[i] = 1
	}
	return NewFixtureWithStakes(stakes...)
}

// NewFixtureWithStakes returns a fixture with one authority per stake value.
func NewFixtureWithStakes(stakes ...uint64) *Fixture {
	signers := gcryptotest.DeterministicEd25519Signers(len(stakes))

	auths := make([]dgconsensus.Authority, len(stakes))
	for i, s := range stakes {
		auths[i] = dgconsensus.Authority{
			Index:    dgconsensus.AuthorityIndex(i),
			Stake:    s,
			PubKey:   signers[i].PubKey(),
			Hostname: fmt.Sprintf("test-host-%d", i),
		}
	}

	c, err := dgconsensus.NewCommittee(auths)
	if err != nil {
		panic(fmt.Errorf("invalid fixture committee: %w", err))
	}

	return &Fixture{
		Committee:  c,
		Signers:    signers,
		HashScheme: dgconsensus.Blake2bHashScheme{},
	}
}

// Genesis returns the round zero blocks for the fixture's committee.
func (f *Fixture) Genesis() []dgconsensus.Block {
	g, err := dgconsensus.GenesisBlocks(f.Committee, f.HashScheme)
	if err != nil {
		panic(err)
	}
	return g
}

// GenesisRefs returns the references to [*Fixture.Genesis].
func (f *Fixture) GenesisRefs() []dgconsensus.BlockRef {
	g := f.Genesis()
	out := make([]dgconsensus.BlockRef, len(g))
	for i, b := range g {
		out[i] = b.Ref()
	}
	return out
}

// SignedBlock builds and signs a block from the given fields.
func (f *Fixture) SignedBlock(
	round uint32,
	author dgconsensus.AuthorityIndex,
	timestampMs uint64,
	ancestors []dgconsensus.BlockRef,
	payload []byte,
) dgconsensus.Block {
	b := dgconsensus.Block{
		Round:       round,
		Author:      author,
		TimestampMs: timestampMs,
		Ancestors:   ancestors,
		Payload:     payload,
	}
	if err := dgconsensus.SignBlock(context.Background(), f.HashScheme, f.Signers[author], &b); err != nil {
		panic(err)
	}
	return b
}
