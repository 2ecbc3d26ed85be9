package dgconsensus_test

import (
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/stretchr/testify/require"
)

func TestSignatureVerifier(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	v := dgconsensus.SignatureVerifier{Committee: fx.Committee, HashScheme: fx.HashScheme}

	for _, g := range fx.Genesis() {
		require.NoError(t, v.Verify(g))
	}

	b := fx.SignedBlock(1, 2, 1000, fx.GenesisRefs(), []byte("payload"))
	require.NoError(t, v.Verify(b))

	var verr *dgconsensus.VerificationError

	tampered := b.Clone()
	tampered.Payload = []byte("other")
	require.ErrorAs(t, v.Verify(tampered), &verr)
	require.Equal(t, "digest mismatch", verr.Reason)

	// Re-hash with a foreign signature so only the signature check fails.
	forged := b.Clone()
	forged.Author = 1
	d, err := fx.HashScheme.Block(forged)
	require.NoError(t, err)
	forged.Digest = d
	require.ErrorAs(t, v.Verify(forged), &verr)
	require.Equal(t, "invalid signature", verr.Reason)

	unknown := b.Clone()
	unknown.Author = 9
	require.ErrorAs(t, v.Verify(unknown), &verr)
}

func TestGenesisBlocks_deterministic(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	a, err := dgconsensus.GenesisBlocks(fx.Committee, fx.HashScheme)
	require.NoError(t, err)
	b, err := dgconsensus.GenesisBlocks(fx.Committee, fx.HashScheme)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a[0].Digest, a[1].Digest)
}
