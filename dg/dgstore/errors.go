package dgstore

import (
	"errors"
	"fmt"
)

// ErrStoreUninitialized is returned by a Load method
// when nothing has been saved for it yet.
var ErrStoreUninitialized = errors.New("store uninitialized")

// ErrBlockNotFound is returned by [BlockStore.LoadBlock] for an unknown reference.
var ErrBlockNotFound = errors.New("block not found")

// ErrCommitNotFound is returned by [CommitStore.LoadCommit] for an index not yet saved.
var ErrCommitNotFound = errors.New("commit not found")

// CommitIndexGapError is returned by [CommitStore.SaveCommit]
// when the commit does not directly follow the last saved commit.
type CommitIndexGapError struct {
	Want, Got uint32
}

func (e CommitIndexGapError) Error() string {
	return fmt.Sprintf("commit index gap: want %d, got %d", e.Want, e.Got)
}

// OverwriteError reports an attempt to replace a value a store treats as write-once.
// The engine never writes the same key twice, so seeing one points to a bug.
type OverwriteError struct {
	Field, Value string
}

func (e OverwriteError) Error() string {
	return fmt.Sprintf("refusing to overwrite %s=%s", e.Field, e.Value)
}
