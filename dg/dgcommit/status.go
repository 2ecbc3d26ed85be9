package dgcommit

import (
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=Kind

// Kind is the decision state of a leader slot.
type Kind uint8

const (
	Undecided Kind = iota
	Commit
	Skip
)

// LeaderStatus is the decision for one leader slot.
type LeaderStatus struct {
	Kind Kind
	Slot dgconsensus.Slot

	// Block is the committed leader block.
	// It is only set when Kind is Commit.
	Block dgconsensus.Block
}

func undecided(s dgconsensus.Slot) LeaderStatus {
	return LeaderStatus{Kind: Undecided, Slot: s}
}

func skip(s dgconsensus.Slot) LeaderStatus {
	return LeaderStatus{Kind: Skip, Slot: s}
}

func commit(b dgconsensus.Block) LeaderStatus {
	return LeaderStatus{Kind: Commit, Slot: b.Slot(), Block: b}
}

// IsDecided reports whether the status is terminal.
func (s LeaderStatus) IsDecided() bool {
	return s.Kind != Undecided
}

func (s LeaderStatus) String() string {
	if s.Kind == Commit {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Block.Ref())
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Slot)
}

func (s LeaderStatus) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", s.Kind.String()),
		slog.Any("slot", s.Slot),
	}
	if s.Kind == Commit {
		attrs = append(attrs, slog.Any("block", s.Block.Ref()))
	}
	return slog.GroupValue(attrs...)
}

// DecidedLeader is a terminal decision returned by [*UniversalCommitter.TryDecide].
type DecidedLeader struct {
	LeaderStatus

	// Direct is false when the decision was made through a later anchor.
	Direct bool
}

// DecisionLabel returns a short label naming the kind of decision,
// suitable for metrics.
func (d DecidedLeader) DecisionLabel() string {
	switch {
	case d.Kind == Commit && d.Direct:
		return "direct-commit"
	case d.Kind == Commit:
		return "indirect-commit"
	case d.Kind == Skip && d.Direct:
		return "direct-skip"
	default:
		return "indirect-skip"
	}
}
