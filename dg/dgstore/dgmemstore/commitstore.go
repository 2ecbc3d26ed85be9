package dgmemstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgstore"
)

type CommitStore struct {
	mu sync.RWMutex

	// commits[i] has index i+1.
	commits []dgconsensus.Commit
}

func NewCommitStore() *CommitStore {
	return new(CommitStore)
}

func (s *CommitStore) SaveCommit(_ context.Context, c dgconsensus.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := uint32(len(s.commits))
	if c.Index >= 1 && c.Index <= n {
		if s.commits[c.Index-1].Equal(c) {
			return nil
		}
		return dgstore.OverwriteError{
			Field: "index",
			Value: fmt.Sprint(c.Index),
		}
	}
	if c.Index != n+1 {
		return dgstore.CommitIndexGapError{Want: n + 1, Got: c.Index}
	}

	s.commits = append(s.commits, c.Clone())
	return nil
}

func (s *CommitStore) LoadCommit(_ context.Context, idx uint32) (dgconsensus.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx == 0 || idx > uint32(len(s.commits)) {
		return dgconsensus.Commit{}, dgstore.ErrCommitNotFound
	}
	return s.commits[idx-1].Clone(), nil
}

func (s *CommitStore) LoadCommitsFrom(_ context.Context, idx uint32) ([]dgconsensus.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx == 0 {
		idx = 1
	}
	if idx > uint32(len(s.commits)) {
		return nil, nil
	}

	src := s.commits[idx-1:]
	out := make([]dgconsensus.Commit, len(src))
	for i, c := range src {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *CommitStore) LastCommit(_ context.Context) (dgconsensus.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.commits) == 0 {
		return dgconsensus.Commit{}, dgstore.ErrStoreUninitialized
	}
	return s.commits[len(s.commits)-1].Clone(), nil
}
