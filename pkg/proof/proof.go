// Package proof gates repository writes behind zero-knowledge proofs.
//
// Every write of (h, c) must carry a proof that the writer knows the secret
// preimage of the sequence hash h, with the ciphertext c bound into the
// proven relation. An interceptor who observes a pending write cannot
// substitute its own ciphertext: no valid proof for the new ciphertext exists
// without the channel secret, so the honest write either lands first or the
// substituted one is rejected.
//
// The relation is fixed and public (a single well-known circuit):
//
//	SHA256d(key ‖ rest) = h  ∧  SHA256(key ‖ rest ‖ SHA256(c)) = tag
//
// with public inputs (h, SHA256(c), tag) and private inputs (key, rest). The
// key is the channel identifier, itself derived from the shared secret; rest
// encodes the sequence index.
package proof

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/hushwire/hushwire/pkg/hashchain"
)

var (
	// ErrCircuitUnsatisfiable indicates the supplied witnesses do not satisfy
	// the relation. This is a caller bug, not a security event.
	ErrCircuitUnsatisfiable = errors.New("proof: witnesses do not satisfy the relation")

	// ErrInvalidProof indicates a malformed proof, an unknown scheme, or a
	// proof that does not verify against the public inputs.
	ErrInvalidProof = errors.New("proof: invalid proof")
)

// Prover constructs proofs for outgoing writes. Proof generation is CPU-bound
// and may be long-running; it respects ctx cancellation and touches no shared
// mutable state.
type Prover interface {
	Prove(ctx context.Context, id hashchain.ChannelID, n uint64, h hashchain.SequenceHash, ciphertext []byte) (*Envelope, error)
}

// Verifier checks a proof against the public write. It is deterministic,
// side-effect-free and requires no secrets, so any repository node or proxy
// can run it, in parallel across independent writes.
type Verifier interface {
	Verify(h hashchain.SequenceHash, ciphertext []byte, envelope []byte) error
}

// Envelope is the wire form of a proof: the scheme identifier, the binding
// tag the relation commits to, and the scheme-specific proof bytes.
type Envelope struct {
	Scheme     string `cbor:"1,keyasint"`
	BindingTag []byte `cbor:"2,keyasint"`
	Proof      []byte `cbor:"3,keyasint"`
}

// envelopeRaw is Envelope without its methods; cbor.Marshal on *Envelope
// would call MarshalBinary again via the BinaryMarshaler interface and
// recurse forever.
type envelopeRaw Envelope

// MarshalBinary encodes the envelope.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	return cbor.Marshal((*envelopeRaw)(e))
}

// ParseEnvelope decodes an envelope, rejecting malformed input with
// ErrInvalidProof.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: envelope: %s", ErrInvalidProof, err)
	}
	return &e, nil
}

// BindingTag computes SHA256(preimage ‖ SHA256(ciphertext)), the public value
// tying a proof of preimage knowledge to one specific ciphertext.
func BindingTag(preimage, ciphertext []byte) [32]byte {
	cd := sha256.Sum256(ciphertext)
	h := sha256.New()
	h.Write(preimage)
	h.Write(cd[:])
	var tag [32]byte
	copy(tag[:], h.Sum(nil))
	return tag
}
