package dgconsensus

import (
	"log/slog"
	"slices"
)

// ReputationScores are per-authority scores computed over a window of commits.
//
// Scores is indexed by authority and its length equals the committee size.
// A published ReputationScores is never modified;
// use [ReputationScores.Clone] before altering a copy.
type ReputationScores struct {
	Scores      []uint64
	CommitRange CommitRange
}

// IsEmpty reports whether no scores have been computed yet.
func (s ReputationScores) IsEmpty() bool {
	return len(s.Scores) == 0
}

func (s ReputationScores) Clone() ReputationScores {
	s.Scores = slices.Clone(s.Scores)
	return s
}

func (s ReputationScores) Equal(o ReputationScores) bool {
	return s.CommitRange == o.CommitRange && slices.Equal(s.Scores, o.Scores)
}

func (s ReputationScores) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("commit_range", s.CommitRange.String()),
		slog.Any("scores", s.Scores),
	)
}
