package dgleader_test

import (
	"sync"
	"testing"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgleader"
	"github.com/stretchr/testify/require"
)

func TestLeaderForRound_roundRobin(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	for r := uint32(0); r < 12; r++ {
		require.Equal(t, dgconsensus.AuthorityIndex(r%4), dgleader.LeaderForRound(fx.Committee, r, 0, dgconsensus.ReputationScores{}))
		require.Equal(t, dgconsensus.AuthorityIndex((r+1)%4), dgleader.LeaderForRound(fx.Committee, r, 1, dgconsensus.ReputationScores{}))
	}
}

func TestLeaderForRound_weighted(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	scores := dgconsensus.ReputationScores{
		Scores:      []uint64{0, 0, 200, 0},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 50},
	}

	counts := make([]int, 4)
	for r := uint32(1); r <= 1000; r++ {
		l := dgleader.LeaderForRound(fx.Committee, r, 0, scores)
		counts[l]++

		// Same inputs, same leader.
		require.Equal(t, l, dgleader.LeaderForRound(fx.Committee, r, 0, scores))
	}

	// Authority 2 carries 201 of 204 weight units.
	require.Greater(t, counts[2], 900)
	for i, c := range counts {
		if i != 2 {
			require.Less(t, c, 50)
		}
	}
}

func TestLeaderForRound_commitRangeChangesDraw(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	a := dgconsensus.ReputationScores{
		Scores:      []uint64{5, 5, 5, 5},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 50},
	}
	b := a.Clone()
	b.CommitRange = dgconsensus.CommitRange{Start: 51, End: 100}

	differ := false
	for r := uint32(1); r <= 64; r++ {
		if dgleader.LeaderForRound(fx.Committee, r, 0, a) != dgleader.LeaderForRound(fx.Committee, r, 0, b) {
			differ = true
			break
		}
	}
	require.True(t, differ)
}

func TestLeaderForRound_distinctWithinRound(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(7)
	scores := dgconsensus.ReputationScores{
		Scores:      []uint64{9, 1, 1, 1, 1, 1, 1},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 10},
	}

	for r := uint32(1); r <= 200; r++ {
		seen := map[dgconsensus.AuthorityIndex]bool{}
		for o := range uint32(7) {
			l := dgleader.LeaderForRound(fx.Committee, r, o, scores)
			require.Falsef(t, seen[l], "round %d offset %d re-elected %d", r, o, l)
			seen[l] = true
		}
	}

	require.Panics(t, func() {
		_ = dgleader.LeaderForRound(fx.Committee, 1, 7, scores)
	})
}

func TestSchedule_leadersDistinctWithSwaps(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(7)
	s, err := dgleader.NewSchedule(fx.Committee, 3, 33)
	require.NoError(t, err)

	require.NoError(t, s.Publish(dgconsensus.ReputationScores{
		Scores:      []uint64{9, 1, 1, 1, 1, 1, 1},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 10},
	}, 1))

	for r := uint32(1); r <= 200; r++ {
		slots := s.Leaders(r)
		require.Len(t, slots, 3)

		seen := map[dgconsensus.AuthorityIndex]bool{}
		for o, sl := range slots {
			require.Falsef(t, seen[sl.Author], "round %d has duplicate leader %d", r, sl.Author)
			seen[sl.Author] = true
			require.Equal(t, sl.Author, s.Leader(r, uint32(o)))
		}
	}
}

func TestSwapTable(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	scores := dgconsensus.ReputationScores{
		Scores:      []uint64{4, 1, 1, 3},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 10},
	}

	st, err := dgleader.NewSwapTable(fx.Committee, scores, 33)
	require.NoError(t, err)
	require.Equal(t, []dgconsensus.AuthorityIndex{0}, st.Good())
	require.Equal(t, []dgconsensus.AuthorityIndex{1}, st.Bad())

	require.Equal(t, dgconsensus.AuthorityIndex(0), st.Swap(1, 7, 0, nil))
	require.Equal(t, dgconsensus.AuthorityIndex(2), st.Swap(2, 7, 0, nil))

	// The only good authority is already a leader of the round.
	require.Equal(t, dgconsensus.AuthorityIndex(1), st.Swap(1, 7, 1, []dgconsensus.AuthorityIndex{0}))

	_, err = dgleader.NewSwapTable(fx.Committee, scores, 34)
	require.Error(t, err)

	off, err := dgleader.NewSwapTable(fx.Committee, scores, 0)
	require.NoError(t, err)
	require.Equal(t, dgconsensus.AuthorityIndex(1), off.Swap(1, 7, 0, nil))
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)

	_, err := dgleader.NewSchedule(fx.Committee, 0, 0)
	require.Error(t, err)
	_, err = dgleader.NewSchedule(fx.Committee, 5, 0)
	require.Error(t, err)

	s, err := dgleader.NewSchedule(fx.Committee, 2, 0)
	require.NoError(t, err)
	require.True(t, s.Scores().IsEmpty())
	require.Equal(t, []dgconsensus.Slot{
		{Round: 3, Author: 3},
		{Round: 3, Author: 0},
	}, s.Leaders(3))

	require.Error(t, s.Publish(dgconsensus.ReputationScores{Scores: []uint64{1, 2}}, 0))

	scores := dgconsensus.ReputationScores{
		Scores:      []uint64{0, 0, 200, 0},
		CommitRange: dgconsensus.CommitRange{Start: 1, End: 50},
	}
	require.NoError(t, s.Publish(scores, 10))
	require.True(t, scores.Equal(s.Scores()))

	// Rounds before 10 keep round robin.
	for r := uint32(1); r < 10; r++ {
		require.Equal(t, dgconsensus.AuthorityIndex(r%4), s.Leader(r, 0))
	}
	for r := uint32(10); r < 30; r++ {
		require.Equal(t, dgleader.LeaderForRound(fx.Committee, r, 0, scores), s.Leader(r, 0))
	}

	// Publishing again retains only the immediately preceding scores.
	next := dgconsensus.ReputationScores{
		Scores:      []uint64{300, 0, 0, 0},
		CommitRange: dgconsensus.CommitRange{Start: 51, End: 100},
	}
	require.NoError(t, s.Publish(next, 20))
	for r := uint32(10); r < 20; r++ {
		require.Equal(t, dgleader.LeaderForRound(fx.Committee, r, 0, scores), s.Leader(r, 0))
	}
	for r := uint32(20); r < 40; r++ {
		require.Equal(t, dgleader.LeaderForRound(fx.Committee, r, 0, next), s.Leader(r, 0))
	}
	require.Equal(t, dgconsensus.Slot{Round: 25, Author: s.Leader(25, 1)}, s.Leaders(25)[1])

	require.Error(t, s.Publish(scores, 19))

	// A second publication from round 20 replaces next;
	// rounds before 20 still elect under scores.
	last := dgconsensus.ReputationScores{
		Scores:      []uint64{0, 0, 0, 300},
		CommitRange: dgconsensus.CommitRange{Start: 101, End: 101},
	}
	require.NoError(t, s.Publish(last, 20))
	require.True(t, last.Equal(s.Scores()))
	for r := uint32(10); r < 20; r++ {
		require.Equal(t, dgleader.LeaderForRound(fx.Committee, r, 0, scores), s.Leader(r, 0))
	}
	for r := uint32(20); r < 40; r++ {
		require.Equal(t, dgleader.LeaderForRound(fx.Committee, r, 0, last), s.Leader(r, 0))
	}
}

func TestSchedule_concurrentReaders(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	s, err := dgleader.NewSchedule(fx.Committee, 1, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := uint32(0); r < 500; r++ {
				_ = s.Leader(r, 0)
				_ = s.Scores()
			}
		}()
	}

	for i := uint32(1); i <= 20; i++ {
		require.NoError(t, s.Publish(dgconsensus.ReputationScores{
			Scores:      []uint64{uint64(i), 1, 2, 3},
			CommitRange: dgconsensus.CommitRange{Start: i, End: i},
		}, i*10))
	}
	wg.Wait()
}
