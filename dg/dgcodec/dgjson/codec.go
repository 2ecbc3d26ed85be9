// Package dgjson is a JSON implementation of [dgcodec.MarshalCodec].
package dgjson

import (
	"encoding/json"
	"fmt"

	"github.com/gordian-engine/gdag/dg/dgcodec"
	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// MarshalCodec translates dgconsensus values to and from JSON.
type MarshalCodec struct{}

var _ dgcodec.MarshalCodec = MarshalCodec{}

type jsonRef struct {
	R uint32
	A uint16
	D []byte
}

func toJSONRef(r dgconsensus.BlockRef) jsonRef {
	return jsonRef{R: r.Round, A: uint16(r.Author), D: r.Digest[:]}
}

func (j jsonRef) toRef() (dgconsensus.BlockRef, error) {
	if len(j.D) != dgconsensus.DigestLength {
		return dgconsensus.BlockRef{}, fmt.Errorf("digest has length %d, want %d", len(j.D), dgconsensus.DigestLength)
	}
	r := dgconsensus.BlockRef{Round: j.R, Author: dgconsensus.AuthorityIndex(j.A)}
	copy(r.Digest[:], j.D)
	return r, nil
}

func toJSONRefs(in []dgconsensus.BlockRef) []jsonRef {
	out := make([]jsonRef, len(in))
	for i, r := range in {
		out[i] = toJSONRef(r)
	}
	return out
}

func fromJSONRefs(in []jsonRef) ([]dgconsensus.BlockRef, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]dgconsensus.BlockRef, len(in))
	for i, j := range in {
		r, err := j.toRef()
		if err != nil {
			return nil, fmt.Errorf("ref %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

type jsonBlock struct {
	Round       uint32
	Author      uint16
	TimestampMs uint64
	Ancestors   []jsonRef
	Payload     []byte
	Signature   []byte
	Digest      []byte
}

func (MarshalCodec) MarshalBlock(b dgconsensus.Block) ([]byte, error) {
	return json.Marshal(jsonBlock{
		Round:       b.Round,
		Author:      uint16(b.Author),
		TimestampMs: b.TimestampMs,
		Ancestors:   toJSONRefs(b.Ancestors),
		Payload:     b.Payload,
		Signature:   b.Signature,
		Digest:      b.Digest[:],
	})
}

func (MarshalCodec) UnmarshalBlock(data []byte, b *dgconsensus.Block) error {
	var jb jsonBlock
	if err := json.Unmarshal(data, &jb); err != nil {
		return err
	}

	anc, err := fromJSONRefs(jb.Ancestors)
	if err != nil {
		return fmt.Errorf("failed to decode ancestors: %w", err)
	}
	if len(jb.Digest) != dgconsensus.DigestLength {
		return fmt.Errorf("block digest has length %d", len(jb.Digest))
	}

	*b = dgconsensus.Block{
		Round:       jb.Round,
		Author:      dgconsensus.AuthorityIndex(jb.Author),
		TimestampMs: jb.TimestampMs,
		Ancestors:   anc,
		Payload:     jb.Payload,
		Signature:   jb.Signature,
	}
	copy(b.Digest[:], jb.Digest)
	return nil
}

type jsonCommit struct {
	Index       uint32
	Leader      jsonRef
	RoundStart  uint32
	RoundEnd    uint32
	Blocks      []jsonRef
	TimestampMs uint64
}

func (MarshalCodec) MarshalCommit(c dgconsensus.Commit) ([]byte, error) {
	return json.Marshal(jsonCommit{
		Index:       c.Index,
		Leader:      toJSONRef(c.Leader),
		RoundStart:  c.Rounds.Start,
		RoundEnd:    c.Rounds.End,
		Blocks:      toJSONRefs(c.Blocks),
		TimestampMs: c.TimestampMs,
	})
}

func (MarshalCodec) UnmarshalCommit(data []byte, c *dgconsensus.Commit) error {
	var jc jsonCommit
	if err := json.Unmarshal(data, &jc); err != nil {
		return err
	}

	leader, err := jc.Leader.toRef()
	if err != nil {
		return fmt.Errorf("failed to decode leader: %w", err)
	}
	blocks, err := fromJSONRefs(jc.Blocks)
	if err != nil {
		return fmt.Errorf("failed to decode sub-dag: %w", err)
	}

	*c = dgconsensus.Commit{
		Index:       jc.Index,
		Leader:      leader,
		Rounds:      dgconsensus.RoundRange{Start: jc.RoundStart, End: jc.RoundEnd},
		Blocks:      blocks,
		TimestampMs: jc.TimestampMs,
	}
	return nil
}
