package dgmemstore

// Store is an in-memory [dgstore.Store].
type Store struct {
	*BlockStore
	*CommitStore
}

func NewStore() Store {
	return Store{
		BlockStore:  NewBlockStore(),
		CommitStore: NewCommitStore(),
	}
}
