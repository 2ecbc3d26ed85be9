// Package dgscore computes reputation scores from committed sub-dags.
//
// Scores feed back into leader election:
// authorities whose blocks are regularly committed are favored as future leaders.
package dgscore

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

//go:generate go run golang.org/x/tools/cmd/stringer -type=Strategy

// DefaultWindow is the number of commits scored together
// before new scores are published.
const DefaultWindow = 50

// Strategy selects what counts toward an authority's score.
type Strategy uint8

const (
	// SubDagBlocks adds one per block an authority has in a committed sub-dag.
	SubDagBlocks Strategy = iota

	// LeaderVotes adds one per committed block for each committed leader
	// of the previous round that the block directly references.
	LeaderVotes
)

// ParseStrategy returns the Strategy whose String form is s.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range []Strategy{SubDagBlocks, LeaderVotes} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown scoring strategy %q", s)
}

// BlockReader resolves block references.
// [*dgstate.DagState] satisfies it.
type BlockReader interface {
	GetBlock(dgconsensus.BlockRef) (dgconsensus.Block, bool)
}

// AuthorityScore pairs an authority with its score.
type AuthorityScore struct {
	Author dgconsensus.AuthorityIndex
	Score  uint64
}

// AuthoritiesByScoreDesc orders authorities by descending score.
// Equal scores are ordered by descending authority index.
func AuthoritiesByScoreDesc(scores dgconsensus.ReputationScores) []AuthorityScore {
	out := make([]AuthorityScore, len(scores.Scores))
	for i, s := range scores.Scores {
		out[i] = AuthorityScore{Author: dgconsensus.AuthorityIndex(i), Score: s}
	}
	slices.SortFunc(out, func(a, b AuthorityScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(b.Author, a.Author)
	})
	return out
}

// Score computes scores over commits, which must be consecutive and non-empty.
// The dag is only consulted by the LeaderVotes strategy.
func Score(
	st Strategy,
	committee dgconsensus.Committee,
	commits []dgconsensus.Commit,
	dag BlockReader,
) (dgconsensus.ReputationScores, error) {
	if len(commits) == 0 {
		return dgconsensus.ReputationScores{}, fmt.Errorf("cannot score an empty commit window")
	}

	t := newTally(st, committee.Size(), dag)
	for i, c := range commits {
		if i > 0 && c.Index != commits[i-1].Index+1 {
			return dgconsensus.ReputationScores{}, fmt.Errorf(
				"commit window is not consecutive: %d follows %d", c.Index, commits[i-1].Index,
			)
		}
		if err := t.add(c); err != nil {
			return dgconsensus.ReputationScores{}, err
		}
	}

	return dgconsensus.ReputationScores{
		Scores: t.scores,
		CommitRange: dgconsensus.CommitRange{
			Start: commits[0].Index,
			End:   commits[len(commits)-1].Index,
		},
	}, nil
}

type tally struct {
	st     Strategy
	dag    BlockReader
	scores []uint64

	// Committed leaders by round, for the LeaderVotes strategy.
	// A round holds more than one with several leaders per round.
	leaders map[uint32][]dgconsensus.BlockRef
}

func newTally(st Strategy, n int, dag BlockReader) *tally {
	return &tally{
		st:      st,
		dag:     dag,
		scores:  make([]uint64, n),
		leaders: map[uint32][]dgconsensus.BlockRef{},
	}
}

func (t *tally) add(c dgconsensus.Commit) error {
	switch t.st {
	case SubDagBlocks:
		for _, r := range c.Blocks {
			if int(r.Author) < len(t.scores) {
				t.scores[r.Author]++
			}
		}
		return nil

	case LeaderVotes:
		if t.dag == nil {
			return fmt.Errorf("strategy %s requires a block reader", t.st)
		}
		for _, r := range c.Blocks {
			if r.Round == 0 {
				continue
			}
			leaders := t.leaders[r.Round-1]
			if len(leaders) == 0 {
				continue
			}
			b, ok := t.dag.GetBlock(r)
			if !ok {
				return fmt.Errorf("block %s from commit %d is not available for scoring", r, c.Index)
			}
			for _, l := range leaders {
				if slices.Contains(b.Ancestors, l) {
					t.scores[r.Author]++
				}
			}
		}
		t.leaders[c.Leader.Round] = append(t.leaders[c.Leader.Round], c.Leader)
		return nil
	}

	return fmt.Errorf("unknown scoring strategy %d", t.st)
}

// Scorer accumulates commits into fixed-size windows
// and produces a new [dgconsensus.ReputationScores] each time a window fills.
//
// A Scorer is not safe for concurrent use;
// it belongs to the single decision goroutine.
type Scorer struct {
	committee dgconsensus.Committee
	st        Strategy
	window    int
	dag       BlockReader

	t     *tally
	n     int
	start uint32
	last  uint32
}

// NewScorer returns a Scorer producing scores every window commits.
func NewScorer(committee dgconsensus.Committee, dag BlockReader, st Strategy, window int) *Scorer {
	if window <= 0 {
		panic(fmt.Errorf("scoring window must be positive; got %d", window))
	}
	return &Scorer{
		committee: committee,
		st:        st,
		window:    window,
		dag:       dag,
		t:         newTally(st, committee.Size(), dag),
	}
}

// Add accounts for c.
// When c completes a window, Add returns the window's scores and true,
// and the next call to Add starts a fresh window.
func (s *Scorer) Add(c dgconsensus.Commit) (dgconsensus.ReputationScores, bool, error) {
	if s.n > 0 && c.Index != s.last+1 {
		return dgconsensus.ReputationScores{}, false, fmt.Errorf(
			"scorer received commit %d after %d", c.Index, s.last,
		)
	}
	if s.n == 0 {
		s.start = c.Index
	}

	if err := s.t.add(c); err != nil {
		return dgconsensus.ReputationScores{}, false, err
	}
	s.n++
	s.last = c.Index

	if s.n < s.window {
		return dgconsensus.ReputationScores{}, false, nil
	}

	out := dgconsensus.ReputationScores{
		Scores:      s.t.scores,
		CommitRange: dgconsensus.CommitRange{Start: s.start, End: s.last},
	}

	// Keep the leader map so votes for the previous window's last leader still count.
	leaders := s.t.leaders
	s.t = newTally(s.st, s.committee.Size(), s.dag)
	for r, l := range leaders {
		if r >= c.Leader.Round {
			s.t.leaders[r] = l
		}
	}
	s.n = 0

	return out, true, nil
}

// Pending returns the number of commits in the current, unfinished window.
func (s *Scorer) Pending() int {
	return s.n
}

// CommitsUntilUpdate returns how many more commits complete the current window.
func (s *Scorer) CommitsUntilUpdate() int {
	return s.window - s.n
}
