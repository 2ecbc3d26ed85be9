package dgconsensustest

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// LeaderFunc elects the leader at a round and leader offset.
type LeaderFunc func(round uint32, offset uint32) dgconsensus.AuthorityIndex

// DagBuilder builds a DAG one layer (round) at a time.
// By default every block at round r references every block at round r-1.
// [LayerBuilder] options introduce the imperfections
// that commit rule tests need: missing leaders, missing votes,
// skipped authorities, partial connectivity, and equivocation.
type DagBuilder struct {
	Fx *Fixture

	// Leader decides which authority the leader options target.
	// Defaults to round robin.
	Leader LeaderFunc

	// NumLeaders is the number of leaders per round, defaulting to 1.
	NumLeaders uint32

	// Payload, if set, produces the payload of each block.
	Payload func(round uint32, author dgconsensus.AuthorityIndex) []byte

	blocks        map[dgconsensus.BlockRef]dgconsensus.Block
	genesis       []dgconsensus.Block
	lastAncestors []dgconsensus.BlockRef
}

func NewDagBuilder(fx *Fixture) *DagBuilder {
	g := fx.Genesis()
	refs := make([]dgconsensus.BlockRef, len(g))
	for i, b := range g {
		refs[i] = b.Ref()
	}

	n := uint32(fx.Committee.Size())
	return &DagBuilder{
		Fx: fx,
		Leader: func(round, offset uint32) dgconsensus.AuthorityIndex {
			return dgconsensus.AuthorityIndex((round + offset) % n)
		},
		NumLeaders: 1,

		blocks:        map[dgconsensus.BlockRef]dgconsensus.Block{},
		genesis:       g,
		lastAncestors: refs,
	}
}

// Layer starts configuring the single round r.
func (d *DagBuilder) Layer(r uint32) *LayerBuilder {
	return d.Layers(r, r)
}

// Layers starts configuring rounds lo through hi inclusive,
// applying the same options to every round.
func (d *DagBuilder) Layers(lo, hi uint32) *LayerBuilder {
	if lo == 0 {
		panic("genesis round is created by default")
	}
	return &LayerBuilder{
		d:           d,
		start:       lo,
		end:         hi,
		fullyLinked: true,
		ancestors:   slices.Clone(d.lastAncestors),
	}
}

// Genesis returns the genesis blocks.
func (d *DagBuilder) Genesis() []dgconsensus.Block {
	return slices.Clone(d.genesis)
}

// AllBlocks returns every non-genesis block built so far, in BlockRef order.
func (d *DagBuilder) AllBlocks() []dgconsensus.Block {
	out := make([]dgconsensus.Block, 0, len(d.blocks))
	for _, b := range d.blocks {
		out = append(out, b)
	}
	dgconsensus.SortBlocks(out)
	return out
}

// Blocks returns the blocks from rounds lo through hi inclusive, in BlockRef order.
// Genesis blocks are included when lo is zero.
func (d *DagBuilder) Blocks(lo, hi uint32) []dgconsensus.Block {
	var out []dgconsensus.Block
	if lo == 0 {
		out = append(out, d.genesis...)
	}
	for _, b := range d.blocks {
		if b.Round >= lo && b.Round <= hi {
			out = append(out, b)
		}
	}
	dgconsensus.SortBlocks(out)
	return out
}

// BlocksAtSlot returns the blocks at s, more than one if the author equivocated.
func (d *DagBuilder) BlocksAtSlot(s dgconsensus.Slot) []dgconsensus.Block {
	var out []dgconsensus.Block
	for _, b := range d.Blocks(s.Round, s.Round) {
		if b.Author == s.Author {
			out = append(out, b)
		}
	}
	return out
}

// LeaderBlock returns the first block of the leader at round r and offset 0.
func (d *DagBuilder) LeaderBlock(r uint32) (dgconsensus.Block, bool) {
	bs := d.BlocksAtSlot(dgconsensus.Slot{Round: r, Author: d.Leader(r, 0)})
	if len(bs) == 0 {
		return dgconsensus.Block{}, false
	}
	return bs[0], true
}

// LayerBuilder configures and builds one or more rounds of a [DagBuilder].
// Methods documented as terminal build the layer immediately.
type LayerBuilder struct {
	d *DagBuilder

	start, end uint32

	specified     []dgconsensus.AuthorityIndex
	equivocations int
	skipBlock     bool

	noLeaderBlock        bool
	noLeaderBlockOffsets []uint32

	fullyLinked bool

	skipLinks   bool
	skipLinksTo []dgconsensus.AuthorityIndex

	noLeaderLink        bool
	noLeaderLinkRound   uint32
	noLeaderLinkOffsets []uint32

	minLinks              bool
	minLinksIncludeLeader bool
	minLinksSeed          uint64

	ancestors []dgconsensus.BlockRef
	built     []dgconsensus.Block
}

// Authorities restricts the authority-scoped options
// (SkipBlock, Equivocate, SkipAncestorLinks, NoLeaderLink) to the given authorities.
func (l *LayerBuilder) Authorities(as ...dgconsensus.AuthorityIndex) *LayerBuilder {
	if l.specified != nil {
		panic("authorities already specified")
	}
	l.specified = as
	return l
}

// Equivocate makes each specified authority produce n extra blocks per round.
func (l *LayerBuilder) Equivocate(n int) *LayerBuilder {
	l.mustHaveAuthorities("Equivocate")
	l.equivocations = n
	return l
}

// SkipBlock makes the specified authorities produce no block.
func (l *LayerBuilder) SkipBlock() *LayerBuilder {
	l.mustHaveAuthorities("SkipBlock")
	l.skipBlock = true
	return l
}

// NoLeaderBlock omits the leader blocks at the layer rounds.
// With no offsets, every leader of the round is omitted.
func (l *LayerBuilder) NoLeaderBlock(offsets ...uint32) *LayerBuilder {
	l.noLeaderBlock = true
	l.noLeaderBlockOffsets = offsets
	return l
}

// SkipAncestorLinks drops links from the specified authorities
// (or from every authority, if none were specified)
// to the previous layer's blocks authored by skip.
// Terminal.
func (l *LayerBuilder) SkipAncestorLinks(skip ...dgconsensus.AuthorityIndex) *LayerBuilder {
	l.skipLinks = true
	l.skipLinksTo = skip
	l.fullyLinked = false
	return l.Build()
}

// NoLeaderLink drops links to the leaders of leaderRound
// from the specified authorities, or from every authority if none were specified.
// With no offsets, links to every leader of leaderRound are dropped.
// Terminal.
func (l *LayerBuilder) NoLeaderLink(leaderRound uint32, offsets ...uint32) *LayerBuilder {
	l.noLeaderLink = true
	l.noLeaderLinkRound = leaderRound
	l.noLeaderLinkOffsets = offsets
	l.fullyLinked = false
	return l.Build()
}

// MinAncestorLinks links each block to a random quorum (by count) of the previous layer,
// seeded by seed, always including the previous round's leaders if includeLeader is set.
// Terminal.
func (l *LayerBuilder) MinAncestorLinks(includeLeader bool, seed uint64) *LayerBuilder {
	l.minLinks = true
	l.minLinksIncludeLeader = includeLeader
	l.minLinksSeed = seed
	l.fullyLinked = false
	return l.Build()
}

// Build creates the configured rounds.
// The last created round becomes the ancestor set for the next layer.
func (l *LayerBuilder) Build() *LayerBuilder {
	for r := l.start; r <= l.end; r++ {
		l.createRound(r)
	}
	l.d.lastAncestors = slices.Clone(l.ancestors)
	return l
}

// Blocks returns the blocks created by this layer builder.
func (l *LayerBuilder) Blocks() []dgconsensus.Block {
	return slices.Clone(l.built)
}

func (l *LayerBuilder) mustHaveAuthorities(method string) {
	if l.specified == nil {
		panic(fmt.Errorf("%s requires Authorities to be set first", method))
	}
}

func (l *LayerBuilder) isSpecified(a dgconsensus.AuthorityIndex) bool {
	return l.specified != nil && slices.Contains(l.specified, a)
}

// appliesTo reports whether a link-dropping option affects a.
func (l *LayerBuilder) appliesTo(a dgconsensus.AuthorityIndex) bool {
	return l.specified == nil || l.isSpecified(a)
}

func (l *LayerBuilder) leadersAt(round uint32, offsets []uint32) []dgconsensus.AuthorityIndex {
	if len(offsets) == 0 {
		for o := range l.d.NumLeaders {
			offsets = append(offsets, o)
		}
	}
	out := make([]dgconsensus.AuthorityIndex, len(offsets))
	for i, o := range offsets {
		out[i] = l.d.Leader(round, o)
	}
	return out
}

func (l *LayerBuilder) ancestorsFor(author dgconsensus.AuthorityIndex, rng *rand.Rand) []dgconsensus.BlockRef {
	switch {
	case l.fullyLinked:
		return slices.Clone(l.ancestors)

	case l.skipLinks:
		if !l.appliesTo(author) {
			return slices.Clone(l.ancestors)
		}
		return filterOutAuthors(l.ancestors, l.skipLinksTo)

	case l.noLeaderLink:
		if !l.appliesTo(author) {
			return slices.Clone(l.ancestors)
		}
		return filterOutAuthors(l.ancestors, l.leadersAt(l.noLeaderLinkRound, l.noLeaderLinkOffsets))

	case l.minLinks:
		n := l.d.Fx.Committee.Size()
		quorum := int(dgconsensus.ByzantineMajority(uint64(n)))
		perm := rng.Perm(n)

		keep := make([]dgconsensus.AuthorityIndex, 0, quorum+1)
		for _, p := range perm[:quorum] {
			keep = append(keep, dgconsensus.AuthorityIndex(p))
		}
		if l.minLinksIncludeLeader && len(l.ancestors) > 0 {
			prevRound := l.ancestors[0].Round
			keep = append(keep, l.leadersAt(prevRound, nil)...)
		}

		var out []dgconsensus.BlockRef
		for _, a := range l.ancestors {
			if slices.Contains(keep, a.Author) {
				out = append(out, a)
			}
		}
		return out
	}

	panic("unreachable")
}

func (l *LayerBuilder) skip(round uint32, a dgconsensus.AuthorityIndex) bool {
	if l.skipBlock && l.isSpecified(a) {
		return true
	}
	if l.noLeaderBlock && slices.Contains(l.leadersAt(round, l.noLeaderBlockOffsets), a) {
		return true
	}
	return false
}

func (l *LayerBuilder) createRound(round uint32) {
	rng := rand.New(rand.NewPCG(l.minLinksSeed, uint64(round)))

	var refs []dgconsensus.BlockRef
	for i := range l.d.Fx.Committee.Size() {
		a := dgconsensus.AuthorityIndex(i)
		if l.skip(round, a) {
			continue
		}

		anc := l.ancestorsFor(a, rng)

		n := 1
		if l.isSpecified(a) {
			n += l.equivocations
		}
		for k := range n {
			var payload []byte
			if l.d.Payload != nil {
				payload = l.d.Payload(round, a)
			}
			ts := uint64(round)*1000 + uint64(a) + uint64(round) + uint64(k)
			b := l.d.Fx.SignedBlock(round, a, ts, slices.Clone(anc), payload)

			refs = append(refs, b.Ref())
			l.d.blocks[b.Ref()] = b
			l.built = append(l.built, b)
		}
	}

	l.ancestors = refs
}

func filterOutAuthors(refs []dgconsensus.BlockRef, drop []dgconsensus.AuthorityIndex) []dgconsensus.BlockRef {
	out := make([]dgconsensus.BlockRef, 0, len(refs))
	for _, r := range refs {
		if !slices.Contains(drop, r.Author) {
			out = append(out, r)
		}
	}
	return out
}
