package dgconsensus

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// HashScheme determines how blocks are hashed and what bytes are signed.
//
// Every authority in a network must use the same HashScheme,
// otherwise block references will not agree.
type HashScheme interface {
	// Block returns the digest of b, covering its signed content and signature.
	Block(b Block) (Digest, error)

	// SigningContent returns the bytes an author signs for b.
	SigningContent(b Block) ([]byte, error)
}

// Blake2bHashScheme hashes a length-prefixed big-endian encoding of the block with blake2b-256.
type Blake2bHashScheme struct{}

var _ HashScheme = Blake2bHashScheme{}

func (Blake2bHashScheme) SigningContent(b Block) ([]byte, error) {
	return appendSigningContent(nil, b), nil
}

func (Blake2bHashScheme) Block(b Block) (Digest, error) {
	buf := appendSigningContent(nil, b)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Signature)))
	buf = append(buf, b.Signature...)

	return blake2b.Sum256(buf), nil
}

func appendSigningContent(buf []byte, b Block) []byte {
	buf = append(buf, "gdag.block.v1"...)
	buf = binary.BigEndian.AppendUint32(buf, b.Round)
	buf = binary.BigEndian.AppendUint16(buf, uint16(b.Author))
	buf = binary.BigEndian.AppendUint64(buf, b.TimestampMs)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Ancestors)))
	for _, a := range b.Ancestors {
		buf = binary.BigEndian.AppendUint32(buf, a.Round)
		buf = binary.BigEndian.AppendUint16(buf, uint16(a.Author))
		buf = append(buf, a.Digest[:]...)
	}

	buf = binary.BigEndian.AppendUint64(buf, uint64(len(b.Payload)))
	buf = append(buf, b.Payload...)
	return buf
}
