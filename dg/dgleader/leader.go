// Package dgleader elects the leaders of each round.
//
// Without reputation scores, leaders rotate round robin through the committee.
// Once scores are published, each election is a deterministic weighted draw
// favoring authorities with higher scores.
// Every honest authority holding the same scores elects the same leaders.
package dgleader

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/gordian-engine/gdag/dg/dgconsensus"
	"github.com/gordian-engine/gdag/dg/dgscore"
	"golang.org/x/crypto/blake2b"
)

// LeaderForRound elects the leader at round and offset.
// It depends only on its arguments.
//
// Authorities elected at lower offsets of the same round are excluded,
// so the leaders of a round are always distinct.
// offset must be less than the committee size.
func LeaderForRound(
	c dgconsensus.Committee,
	round uint32,
	offset uint32,
	scores dgconsensus.ReputationScores,
) dgconsensus.AuthorityIndex {
	return electLeaders(c, round, offset+1, scores, SwapTable{})[offset]
}

// electLeaders elects the first count leaders of round,
// applying swap to each in turn.
func electLeaders(
	c dgconsensus.Committee,
	round uint32,
	count uint32,
	scores dgconsensus.ReputationScores,
	swap SwapTable,
) []dgconsensus.AuthorityIndex {
	n := uint32(c.Size())
	if count > n {
		panic(fmt.Errorf(
			"cannot elect %d distinct leaders from committee of size %d", count, n,
		))
	}

	out := make([]dgconsensus.AuthorityIndex, 0, count)
	if scores.IsEmpty() || len(scores.Scores) != int(n) {
		for o := range count {
			out = append(out, dgconsensus.AuthorityIndex((round+o)%n))
		}
		return out
	}

	ranked := dgscore.AuthoritiesByScoreDesc(scores)
	for o := range count {
		l := weightedPick(ranked, out, electionRand(round, o, scores.CommitRange))
		out = append(out, swap.Swap(l, round, o, out))
	}
	return out
}

// weightedPick draws one authority not in taken, weighted by 1+score.
func weightedPick(
	ranked []dgscore.AuthorityScore,
	taken []dgconsensus.AuthorityIndex,
	rng *rand.Rand,
) dgconsensus.AuthorityIndex {
	var total uint64
	for _, a := range ranked {
		if !slices.Contains(taken, a.Author) {
			total += 1 + a.Score
		}
	}

	pick := rng.Uint64N(total)
	for _, a := range ranked {
		if slices.Contains(taken, a.Author) {
			continue
		}
		w := 1 + a.Score
		if pick < w {
			return a.Author
		}
		pick -= w
	}

	panic("weighted leader draw exhausted candidates")
}

// electionRand returns a PRNG seeded from the election inputs.
func electionRand(round, offset uint32, cr dgconsensus.CommitRange) *rand.Rand {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:], round)
	binary.BigEndian.PutUint32(buf[4:], cr.Start)
	binary.BigEndian.PutUint32(buf[8:], cr.End)
	binary.BigEndian.PutUint32(buf[12:], offset)

	sum := blake2b.Sum256(buf[:])
	return rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
}
