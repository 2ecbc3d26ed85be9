package dgmemstore_test

import (
	"testing"

	"github.com/gordian-engine/gdag/dg/dgstore"
	"github.com/gordian-engine/gdag/dg/dgstore/dgmemstore"
	"github.com/gordian-engine/gdag/dg/dgstore/dgstoretest"
)

var _ dgstore.Store = dgmemstore.NewStore()

func TestMemBlockStore(t *testing.T) {
	t.Parallel()

	dgstoretest.TestBlockStoreCompliance(t, func(func(func())) (dgstore.BlockStore, error) {
		return dgmemstore.NewBlockStore(), nil
	})
}

func TestMemCommitStore(t *testing.T) {
	t.Parallel()

	dgstoretest.TestCommitStoreCompliance(t, func(func(func())) (dgstore.CommitStore, error) {
		return dgmemstore.NewCommitStore(), nil
	})
}
