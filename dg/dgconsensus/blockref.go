package dgconsensus

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/gordian-engine/gdag/internal/glog"
)

// AuthorityIndex identifies a committee member by its position in the [Committee].
type AuthorityIndex uint16

// DigestLength is the byte length of a block digest.
const DigestLength = 32

// Digest is the hash of a block, as computed by a [HashScheme].
type Digest [DigestLength]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:4])
}

func (d Digest) LogValue() slog.Value {
	return glog.ShortHex(d[:]).LogValue()
}

// BlockRef is the immutable identity of a block.
//
// BlockRefs order by round, then author, then digest bytes.
// That order is used wherever a deterministic tie-break between blocks is needed.
type BlockRef struct {
	Round  uint32
	Author AuthorityIndex
	Digest Digest
}

// Compare returns -1, 0, or 1 following the BlockRef order.
func (r BlockRef) Compare(o BlockRef) int {
	if c := cmp.Compare(r.Round, o.Round); c != 0 {
		return c
	}
	if c := cmp.Compare(r.Author, o.Author); c != 0 {
		return c
	}
	return bytes.Compare(r.Digest[:], o.Digest[:])
}

// Less reports whether r sorts before o.
func (r BlockRef) Less(o BlockRef) bool {
	return r.Compare(o) < 0
}

// Slot returns the (round, author) position of r.
func (r BlockRef) Slot() Slot {
	return Slot{Round: r.Round, Author: r.Author}
}

func (r BlockRef) String() string {
	return fmt.Sprintf("B%d(%d,%s)", r.Round, r.Author, r.Digest)
}

func (r BlockRef) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("round", uint64(r.Round)),
		slog.Uint64("author", uint64(r.Author)),
		slog.Any("digest", r.Digest),
	)
}

// Slot is a (round, author) position in the DAG.
// An honest author produces at most one block per slot;
// an equivocating author may produce several.
type Slot struct {
	Round  uint32
	Author AuthorityIndex
}

func (s Slot) Compare(o Slot) int {
	if c := cmp.Compare(s.Round, o.Round); c != 0 {
		return c
	}
	return cmp.Compare(s.Author, o.Author)
}

func (s Slot) String() string {
	return fmt.Sprintf("S%d(%d)", s.Round, s.Author)
}

func (s Slot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("round", uint64(s.Round)),
		slog.Uint64("author", uint64(s.Author)),
	)
}
