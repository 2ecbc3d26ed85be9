package dgconsensus

import (
	"fmt"
	"strings"
)

// MissingAncestorError is returned when a block is offered to DAG state
// before all of its ancestors.
// The caller is expected to fetch or buffer and retry.
type MissingAncestorError struct {
	Block   BlockRef
	Missing []BlockRef
}

func (e *MissingAncestorError) Error() string {
	refs := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		refs[i] = m.String()
	}
	return fmt.Sprintf("block %s has missing ancestors: %s", e.Block, strings.Join(refs, ", "))
}

// InvariantViolationError indicates the consensus state is internally inconsistent,
// such as two certified blocks for one leader slot or a gap in commit indices.
// It is never recoverable: continuing could fork the commit sequence.
type InvariantViolationError struct {
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return "consensus invariant violated: " + e.Reason
}

// ReplayInconsistencyError is returned during recovery when a persisted commit
// references a block that is not in persisted DAG state.
type ReplayInconsistencyError struct {
	CommitIndex uint32
	Missing     BlockRef
}

func (e *ReplayInconsistencyError) Error() string {
	return fmt.Sprintf(
		"persisted commit %d references block %s which is not in storage", e.CommitIndex, e.Missing,
	)
}

// StorageError wraps a failure from the storage collaborator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure during " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// VerificationError is returned by a [BlockVerifier] for an invalid block.
type VerificationError struct {
	Block  BlockRef
	Reason string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("block %s failed verification: %s", e.Block, e.Reason)
}
