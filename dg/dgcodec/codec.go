// Package dgcodec defines how blocks and commits are serialized
// for storage and transmission.
package dgcodec

import (
	"github.com/gordian-engine/gdag/dg/dgconsensus"
)

// Marshaler serializes dgconsensus values to byte slices.
type Marshaler interface {
	MarshalBlock(dgconsensus.Block) ([]byte, error)
	MarshalCommit(dgconsensus.Commit) ([]byte, error)
}

// Unmarshaler deserializes byte slices into dgconsensus values.
type Unmarshaler interface {
	UnmarshalBlock([]byte, *dgconsensus.Block) error
	UnmarshalCommit([]byte, *dgconsensus.Commit) error
}

// MarshalCodec marshals and unmarshals dgconsensus values.
type MarshalCodec interface {
	Marshaler
	Unmarshaler
}
