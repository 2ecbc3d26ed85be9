package dgconsensus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gordian-engine/gdag/gcrypto"
)

// Authority is a single committee member.
type Authority struct {
	Index AuthorityIndex
	Stake uint64

	// PubKey verifies the authority's block signatures.
	// It may be nil when signatures are checked elsewhere.
	PubKey gcrypto.PubKey

	Hostname string
}

// Committee is the fixed set of authorities for an epoch.
// Authorities are indexed 0..n-1 and the Committee is never mutated after construction,
// so it is safe to share by value across goroutines.
type Committee struct {
	authorities []Authority
	totalStake  uint64
}

// NewCommittee validates and returns a Committee.
// Each authority's Index must equal its position in auths,
// and every authority must carry positive stake.
func NewCommittee(auths []Authority) (Committee, error) {
	if len(auths) == 0 {
		return Committee{}, errors.New("committee must have at least one authority")
	}
	if len(auths) > 1<<16 {
		return Committee{}, fmt.Errorf("committee size %d exceeds authority index range", len(auths))
	}

	var total uint64
	for i, a := range auths {
		if int(a.Index) != i {
			return Committee{}, fmt.Errorf("authority at position %d has index %d", i, a.Index)
		}
		if a.Stake == 0 {
			return Committee{}, fmt.Errorf("authority %d has zero stake", i)
		}
		total += a.Stake
	}

	return Committee{
		authorities: slices.Clone(auths),
		totalStake:  total,
	}, nil
}

// Size returns the number of authorities.
func (c Committee) Size() int {
	return len(c.authorities)
}

// Authorities returns a copy of the authority list.
func (c Committee) Authorities() []Authority {
	return slices.Clone(c.authorities)
}

// Authority returns the authority at idx.
func (c Committee) Authority(idx AuthorityIndex) (Authority, bool) {
	if int(idx) >= len(c.authorities) {
		return Authority{}, false
	}
	return c.authorities[idx], true
}

// IsValidIndex reports whether idx names a committee member.
func (c Committee) IsValidIndex(idx AuthorityIndex) bool {
	return int(idx) < len(c.authorities)
}

// Stake returns the stake of idx, or zero for an unknown index.
func (c Committee) Stake(idx AuthorityIndex) uint64 {
	if int(idx) >= len(c.authorities) {
		return 0
	}
	return c.authorities[idx].Stake
}

func (c Committee) TotalStake() uint64 {
	return c.totalStake
}

// QuorumThreshold is the stake needed for a quorum, 2f+1 of 3f+1.
func (c Committee) QuorumThreshold() uint64 {
	return ByzantineMajority(c.totalStake)
}

// ValidityThreshold is the stake guaranteeing at least one honest member, f+1 of 3f+1.
func (c Committee) ValidityThreshold() uint64 {
	return ByzantineMinority(c.totalStake)
}
