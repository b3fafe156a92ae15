// Package prooftest provides a transparent stand-in for the groth16 scheme.
//
// Its proofs reveal the preimage instead of hiding it, so it is sound (a
// verifier accepts only writes whose author knows the preimage, bound to the
// exact ciphertext) but has no zero-knowledge whatsoever. It exists so unit
// and end-to-end tests can exercise the full write protocol without paying
// for SNARK proving on every message.
package prooftest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/hushwire/hushwire/internal/params"
	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/proof"
)

// Scheme identifies the transparent test scheme.
const Scheme = "cleartext-preimage-test-v1"

// Clear implements proof.Prover and proof.Verifier by shipping the preimage
// in the proof bytes.
type Clear struct{}

// New returns a Clear scheme.
func New() *Clear { return &Clear{} }

// Prove implements proof.Prover.
func (*Clear) Prove(ctx context.Context, id hashchain.ChannelID, n uint64, h hashchain.SequenceHash, ciphertext []byte) (*proof.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hashchain.DeriveSequenceHash(id, n) != h {
		return nil, proof.ErrCircuitUnsatisfiable
	}
	pre := hashchain.SequencePreimage(id, n)
	tag := proof.BindingTag(pre, ciphertext)
	return &proof.Envelope{
		Scheme:     Scheme,
		BindingTag: tag[:],
		Proof:      pre,
	}, nil
}

// Verify implements proof.Verifier by evaluating the relation in the clear.
func (*Clear) Verify(h hashchain.SequenceHash, ciphertext []byte, envelope []byte) error {
	env, err := proof.ParseEnvelope(envelope)
	if err != nil {
		return err
	}
	if env.Scheme != Scheme {
		return fmt.Errorf("%w: unknown scheme %q", proof.ErrInvalidProof, env.Scheme)
	}
	pre := env.Proof
	if len(pre) != params.ChannelIDSize+params.SequenceRestSize {
		return fmt.Errorf("%w: preimage has %d bytes", proof.ErrInvalidProof, len(pre))
	}

	first := sha256.Sum256(pre)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:], h.Bytes()) {
		return fmt.Errorf("%w: preimage does not hash to sequence hash", proof.ErrInvalidProof)
	}

	tag := proof.BindingTag(pre, ciphertext)
	if !bytes.Equal(tag[:], env.BindingTag) {
		return fmt.Errorf("%w: binding tag does not match ciphertext", proof.ErrInvalidProof)
	}
	return nil
}
