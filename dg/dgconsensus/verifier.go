package dgconsensus

import (
	"context"
	"fmt"

	"github.com/gordian-engine/gdag/gcrypto"
)

// BlockVerifier checks a block before it is accepted into DAG state.
type BlockVerifier interface {
	Verify(b Block) error
}

// SignatureVerifier is a [BlockVerifier] that checks structure, digest,
// and the author's signature against the committee's public keys.
type SignatureVerifier struct {
	Committee  Committee
	HashScheme HashScheme
}

var _ BlockVerifier = SignatureVerifier{}

func (v SignatureVerifier) Verify(b Block) error {
	auth, ok := v.Committee.Authority(b.Author)
	if !ok {
		return &VerificationError{Block: b.Ref(), Reason: "unknown author"}
	}

	if err := b.ValidateAncestors(); err != nil {
		return &VerificationError{Block: b.Ref(), Reason: err.Error()}
	}
	for _, a := range b.Ancestors {
		if !v.Committee.IsValidIndex(a.Author) {
			return &VerificationError{
				Block:  b.Ref(),
				Reason: fmt.Sprintf("ancestor %s has unknown author", a),
			}
		}
	}

	d, err := v.HashScheme.Block(b)
	if err != nil {
		return fmt.Errorf("failed to hash block: %w", err)
	}
	if d != b.Digest {
		return &VerificationError{Block: b.Ref(), Reason: "digest mismatch"}
	}

	if b.IsGenesis() {
		return nil
	}

	if auth.PubKey == nil {
		return &VerificationError{Block: b.Ref(), Reason: "author has no public key"}
	}
	content, err := v.HashScheme.SigningContent(b)
	if err != nil {
		return fmt.Errorf("failed to build signing content: %w", err)
	}
	if !auth.PubKey.Verify(content, b.Signature) {
		return &VerificationError{Block: b.Ref(), Reason: "invalid signature"}
	}
	return nil
}

// SignBlock fills in b's signature and digest using signer.
func SignBlock(ctx context.Context, hs HashScheme, signer gcrypto.Signer, b *Block) error {
	content, err := hs.SigningContent(*b)
	if err != nil {
		return fmt.Errorf("failed to build signing content: %w", err)
	}
	sig, err := signer.Sign(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to sign block: %w", err)
	}
	b.Signature = sig

	b.Digest, err = hs.Block(*b)
	if err != nil {
		return fmt.Errorf("failed to hash block: %w", err)
	}
	return nil
}
