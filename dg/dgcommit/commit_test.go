package dgcommit_test

import (
	"testing"

	"github.com/gordian-engine/gdag/dg/dgcommit"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgconsensus/dgconsensustest"
	"github.com/gordian-engine/gdag/dg/dgleader"
	"github.com/gordian-engine/gdag/dg/dgstate"
	"github.com/gordian-engine/gdag/gassert/gasserttest"
	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	Fx    *dgconsensustest.Fixture
	Dag   *dgconsensustest.DagBuilder
	State *dgstate.DagState
	UC    *dgcommit.UniversalCommitter
}

func newFixture(t *testing.T, numLeaders uint32) *fixture {
	t.Helper()

	fx := dgconsensustest.NewFixture(4)
	state, err := dgstate.New(slogt.New(t), dgstate.Config{
		Committee:  fx.Committee,
		HashScheme: fx.HashScheme,
		AssertEnv:  gasserttest.DefaultEnv(),
	})
	require.NoError(t, err)

	sched, err := dgleader.NewSchedule(fx.Committee, numLeaders, 0)
	require.NoError(t, err)

	d := dgconsensustest.NewDagBuilder(fx)
	d.NumLeaders = numLeaders

	return &fixture{
		Fx:    fx,
		Dag:   d,
		State: state,
		UC: dgcommit.NewUniversalCommitter(slogt.New(t), state, sched, dgcommit.UniversalCommitterOptions{
			Pipeline: true,
		}),
	}
}

// Sync accepts every block the builder has produced so far.
func (f *fixture) Sync(t *testing.T) {
	t.Helper()
	_, err := f.State.AcceptBlocks(f.Dag.AllBlocks())
	require.NoError(t, err)
}

func slot(r uint32, a dgconsensus.AuthorityIndex) dgconsensus.Slot {
	return dgconsensus.Slot{Round: r, Author: a}
}

func kinds(ds []dgcommit.DecidedLeader) []dgcommit.Kind {
	out := make([]dgcommit.Kind, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func TestUniversalCommitter_fullyConnected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.Dag.Layers(1, 10).Build()
	f.Sync(t)

	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Len(t, decided, 8)
	for i, d := range decided {
		r := uint32(i + 1)
		require.Equal(t, dgcommit.Commit, d.Kind)
		require.True(t, d.Direct)
		require.Equal(t, slot(r, dgconsensus.AuthorityIndex(r%4)), d.Slot)

		lb, ok := f.Dag.LeaderBlock(r)
		require.True(t, ok)
		require.Equal(t, lb.Ref(), d.Block.Ref())
		require.Equal(t, "direct-commit", d.DecisionLabel())
	}

	// Nothing more until the DAG grows.
	require.Empty(t, f.UC.TryDecide(decided[len(decided)-1].Slot))

	// Deciding again from scratch gives the same answer.
	require.Equal(t, decided, f.UC.TryDecide(dgconsensus.Slot{}))
}

func TestUniversalCommitter_incremental(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)

	var (
		all  []dgcommit.DecidedLeader
		last dgconsensus.Slot
	)
	for r := uint32(1); r <= 10; r++ {
		f.Dag.Layer(r).Build()
		f.Sync(t)

		ds := f.UC.TryDecide(last)
		if r < 3 {
			require.Empty(t, ds)
		} else {
			// Each new round decides exactly one more leader.
			require.Len(t, ds, 1)
		}
		if len(ds) > 0 {
			last = ds[len(ds)-1].Slot
		}
		all = append(all, ds...)
	}

	require.Len(t, all, 8)
	for i, d := range all {
		require.Equal(t, uint32(i+1), d.Slot.Round)
	}
}

func TestUniversalCommitter_tooShallow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	require.Empty(t, f.UC.TryDecide(dgconsensus.Slot{}))

	f.Dag.Layers(1, 2).Build()
	f.Sync(t)
	require.Empty(t, f.UC.TryDecide(dgconsensus.Slot{}))
}

func TestUniversalCommitter_directSkip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.Dag.Layers(1, 3).Build()

	// No round 4 block links to the round 3 leader.
	f.Dag.Layer(4).NoLeaderLink(3)
	f.Dag.Layers(5, 6).Build()
	f.Sync(t)

	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Equal(t, []dgcommit.Kind{
		dgcommit.Commit, dgcommit.Commit, dgcommit.Skip, dgcommit.Commit,
	}, kinds(decided))

	require.Equal(t, slot(3, 3), decided[2].Slot)
	require.True(t, decided[2].Direct)
	require.Equal(t, "direct-skip", decided[2].DecisionLabel())
}

func TestUniversalCommitter_indirectCommit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.Dag.Layers(1, 4).Build()

	// Only authority 0's round 5 block sees a quorum of votes
	// for the round 3 leader, so it is the only certificate.
	// The same blocks also blame the round 4 leader, authority 0.
	f.Dag.Layer(5).Authorities(1, 2, 3).SkipAncestorLinks(0, 1)
	f.Dag.Layers(6, 8).Build()
	f.Sync(t)

	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Equal(t, []dgcommit.Kind{
		dgcommit.Commit, dgcommit.Commit, dgcommit.Commit,
		dgcommit.Skip, dgcommit.Commit, dgcommit.Commit,
	}, kinds(decided))

	d3 := decided[2]
	require.Equal(t, slot(3, 3), d3.Slot)
	require.False(t, d3.Direct)
	require.Equal(t, "indirect-commit", d3.DecisionLabel())

	require.Equal(t, slot(4, 0), decided[3].Slot)
	require.True(t, decided[3].Direct)
}

func TestUniversalCommitter_indirectSkip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.Dag.Layers(1, 3).Build()

	// Two blames are not enough to skip directly,
	// and two votes are not enough for any certificate.
	f.Dag.Layer(4).Authorities(0, 1).NoLeaderLink(3)
	f.Dag.Layers(5, 8).Build()
	f.Sync(t)

	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Equal(t, []dgcommit.Kind{
		dgcommit.Commit, dgcommit.Commit, dgcommit.Skip,
		dgcommit.Commit, dgcommit.Commit, dgcommit.Commit,
	}, kinds(decided))
	require.False(t, decided[2].Direct)
	require.Equal(t, "indirect-skip", decided[2].DecisionLabel())
}

func TestUniversalCommitter_undecidedStopsSequence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.Dag.Layers(1, 3).Build()
	f.Dag.Layer(4).Authorities(0, 1).NoLeaderLink(3)
	f.Dag.Layer(5).Build()
	f.Sync(t)

	// The round 3 leader has neither a quorum of blame nor of certificates,
	// and there is no later anchor yet.
	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Equal(t, []dgcommit.Kind{dgcommit.Commit, dgcommit.Commit}, kinds(decided))
}

func TestUniversalCommitter_multipleLeaders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	f.Dag.Layers(1, 6).Build()
	f.Sync(t)

	require.Equal(t, []dgconsensus.Slot{slot(5, 1), slot(5, 2)}, f.UC.GetLeaders(5))

	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.Len(t, decided, 8)
	for i, d := range decided {
		r := uint32(i/2 + 1)
		a := dgconsensus.AuthorityIndex((r + uint32(i%2)) % 4)
		require.Equal(t, slot(r, a), d.Slot)
		require.Equal(t, dgcommit.Commit, d.Kind)
	}

	// Resuming after the first leader of a round still decides the second.
	rest := f.UC.TryDecide(decided[4].Slot)
	require.Equal(t, decided[5:], rest)
}

func TestUniversalCommitter_equivocatingLeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	l1 := f.Dag.Layer(1).Authorities(1).Equivocate(1).Build().Blocks()
	f.Dag.Layers(2, 3).Build()
	f.Sync(t)

	// Every voter sees the first of the two leader blocks first,
	// so only that block can be certified.
	require.Equal(t, dgconsensus.AuthorityIndex(1), l1[1].Author)
	decided := f.UC.TryDecide(dgconsensus.Slot{})
	require.NotEmpty(t, decided)
	require.Equal(t, dgcommit.Commit, decided[0].Kind)
	require.Equal(t, l1[1].Ref(), decided[0].Block.Ref())
}

func TestUniversalCommitter_twoCertifiedBlocksPanics(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	fx := f.Fx
	g := fx.GenesisRefs()

	// Authority 1 leads round 1 and equivocates.
	a := fx.SignedBlock(1, 1, 1001, g, []byte("a"))
	b := fx.SignedBlock(1, 1, 1001, g, []byte("b"))
	var honest []dgconsensus.BlockRef
	blocks := []dgconsensus.Block{a, b}
	for _, au := range []dgconsensus.AuthorityIndex{0, 2, 3} {
		hb := fx.SignedBlock(1, au, 1000+uint64(au), g, nil)
		honest = append(honest, hb.Ref())
		blocks = append(blocks, hb)
	}

	// Authorities 0, 1, and 2 each vote for both leader blocks
	// in two equivocating blocks, and then certify each.
	var votesA, votesB []dgconsensus.BlockRef
	for _, au := range []dgconsensus.AuthorityIndex{0, 1, 2} {
		va := fx.SignedBlock(2, au, 2000, append([]dgconsensus.BlockRef{a.Ref()}, honest...), nil)
		vb := fx.SignedBlock(2, au, 2000, append([]dgconsensus.BlockRef{b.Ref()}, honest...), nil)
		votesA = append(votesA, va.Ref())
		votesB = append(votesB, vb.Ref())
		blocks = append(blocks, va, vb)
	}
	for _, au := range []dgconsensus.AuthorityIndex{0, 1, 2} {
		blocks = append(blocks,
			fx.SignedBlock(3, au, 3000, votesA, nil),
			fx.SignedBlock(3, au, 3000, votesB, nil),
		)
	}

	_, err := f.State.AcceptBlocks(blocks)
	require.NoError(t, err)

	var iv *dgconsensus.InvariantViolationError
	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			require.True(t, ok, "expected error panic, got %v", r)
			require.ErrorAs(t, err, &iv)
		}()
		f.UC.TryDecide(dgconsensus.Slot{})
	}()
	require.NotNil(t, iv)
}

func TestBaseCommitter_electLeader(t *testing.T) {
	t.Parallel()

	fx := dgconsensustest.NewFixture(4)
	sched, err := dgleader.NewSchedule(fx.Committee, 1, 0)
	require.NoError(t, err)
	state, err := dgstate.New(slogt.New(t), dgstate.Config{
		Committee:  fx.Committee,
		HashScheme: fx.HashScheme,
		AssertEnv:  gasserttest.DefaultEnv(),
	})
	require.NoError(t, err)

	c := dgcommit.NewBaseCommitter(slogt.New(t), state, sched, dgcommit.BaseCommitterOptions{
		WaveLength:  3,
		RoundOffset: 1,
	})

	_, ok := c.ElectLeader(0)
	require.False(t, ok)
	s, ok := c.ElectLeader(1)
	require.True(t, ok)
	require.Equal(t, slot(1, 1), s)
	_, ok = c.ElectLeader(2)
	require.False(t, ok)
	s, ok = c.ElectLeader(4)
	require.True(t, ok)
	require.Equal(t, slot(4, 0), s)

	require.Panics(t, func() {
		dgcommit.NewBaseCommitter(slogt.New(t), state, sched, dgcommit.BaseCommitterOptions{WaveLength: 2})
	})

	u := dgcommit.NewUniversalCommitter(slogt.New(t), state, sched, dgcommit.UniversalCommitterOptions{})
	require.Equal(t, []dgconsensus.Slot{slot(3, 3)}, u.GetLeaders(3))
	require.Empty(t, u.GetLeaders(4))
}
