package proof

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/math/uints"

	"github.com/hushwire/hushwire/internal/params"
	"github.com/hushwire/hushwire/pkg/hashchain"
)

// SchemeGroth16 identifies the production proof scheme.
const SchemeGroth16 = "groth16-bn254-sha256d-v1"

// Groth is the groth16 implementation of Prover and Verifier over the fixed
// relation circuit. A verify-only Groth carries just the verifying key.
type Groth struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// Setup compiles the circuit and runs the groth16 setup.
//
// The setup here is single-party: whoever runs it learns the toxic waste. A
// production deployment must generate the parameters in a multi-party
// ceremony and distribute only the outputs.
func Setup() (*Groth, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &relationCircuit{})
	if err != nil {
		return nil, fmt.Errorf("proof: compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("proof: groth16 setup: %w", err)
	}
	return &Groth{ccs: ccs, pk: pk, vk: vk}, nil
}

// Prove implements Prover. The relation is checked in the clear first so that
// unsatisfiable witnesses are reported as ErrCircuitUnsatisfiable instead of
// an opaque constraint-solver failure.
func (g *Groth) Prove(ctx context.Context, id hashchain.ChannelID, n uint64, h hashchain.SequenceHash, ciphertext []byte) (*Envelope, error) {
	if g.pk == nil {
		return nil, fmt.Errorf("proof: verify-only parameters cannot prove")
	}
	if hashchain.DeriveSequenceHash(id, n) != h {
		return nil, ErrCircuitUnsatisfiable
	}

	pre := hashchain.SequencePreimage(id, n)
	cd := sha256.Sum256(ciphertext)
	tag := BindingTag(pre, ciphertext)

	assignment := newAssignment(pre, h, cd, tag)
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("proof: build witness: %w", err)
	}

	type result struct {
		proof groth16.Proof
		err   error
	}
	done := make(chan result, 1)
	go func() {
		p, err := groth16.Prove(g.ccs, g.pk, witness)
		done <- result{p, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("proof: groth16 prove: %w", r.err)
		}
		var buf bytes.Buffer
		if _, err := r.proof.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("proof: serialize proof: %w", err)
		}
		return &Envelope{
			Scheme:     SchemeGroth16,
			BindingTag: tag[:],
			Proof:      buf.Bytes(),
		}, nil
	}
}

// Verify implements Verifier.
func (g *Groth) Verify(h hashchain.SequenceHash, ciphertext []byte, envelope []byte) error {
	env, err := ParseEnvelope(envelope)
	if err != nil {
		return err
	}
	if env.Scheme != SchemeGroth16 {
		return fmt.Errorf("%w: unknown scheme %q", ErrInvalidProof, env.Scheme)
	}
	if len(env.BindingTag) != sha256.Size {
		return fmt.Errorf("%w: binding tag has %d bytes", ErrInvalidProof, len(env.BindingTag))
	}

	p := groth16.NewProof(ecc.BN254)
	if _, err := p.ReadFrom(bytes.NewReader(env.Proof)); err != nil {
		return fmt.Errorf("%w: proof bytes: %s", ErrInvalidProof, err)
	}

	cd := sha256.Sum256(ciphertext)
	var tag [32]byte
	copy(tag[:], env.BindingTag)

	public := newAssignment(nil, h, cd, tag)
	witness, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("proof: build public witness: %w", err)
	}
	if err := groth16.Verify(p, g.vk, witness); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err)
	}
	return nil
}

// newAssignment fills a circuit assignment. preimage may be nil when only the
// public part is needed.
func newAssignment(preimage []byte, h hashchain.SequenceHash, cd, tag [32]byte) *relationCircuit {
	var a relationCircuit
	if preimage != nil {
		copy(a.Key[:], uints.NewU8Array(preimage[:params.ChannelIDSize]))
		copy(a.Rest[:], uints.NewU8Array(preimage[params.ChannelIDSize:]))
	}
	copy(a.SequenceHash[:], uints.NewU8Array(h[:]))
	copy(a.CiphertextDigest[:], uints.NewU8Array(cd[:]))
	copy(a.BindingTag[:], uints.NewU8Array(tag[:]))
	return &a
}

// WriteTo serializes the full parameter set (constraint system, proving key,
// verifying key) for provers.
func (g *Groth) WriteTo(w io.Writer) (int64, error) {
	if g.ccs == nil || g.pk == nil {
		return 0, fmt.Errorf("proof: verify-only parameters cannot be serialized for proving")
	}
	var total int64
	for _, wt := range []io.WriterTo{g.ccs, g.pk, g.vk} {
		n, err := wt.WriteTo(w)
		total += n
		if err != nil {
			return total, fmt.Errorf("proof: write params: %w", err)
		}
	}
	return total, nil
}

// ReadGroth deserializes a full parameter set written by WriteTo.
func ReadGroth(r io.Reader) (*Groth, error) {
	ccs := groth16.NewCS(ecc.BN254)
	if _, err := ccs.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("proof: read constraint system: %w", err)
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("proof: read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("proof: read verifying key: %w", err)
	}
	return &Groth{ccs: ccs, pk: pk, vk: vk}, nil
}

// WriteVerifyingKey serializes only the verifying key, the part repository
// nodes need.
func (g *Groth) WriteVerifyingKey(w io.Writer) (int64, error) {
	return g.vk.WriteTo(w)
}

// ReadVerifier deserializes a verifying key into a verify-only Groth.
func ReadVerifier(r io.Reader) (*Groth, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("proof: read verifying key: %w", err)
	}
	return &Groth{vk: vk}, nil
}

// LoadVerifierFile reads a verifying key from a file.
func LoadVerifierFile(path string) (*Groth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proof: open verifying key: %w", err)
	}
	defer f.Close()
	return ReadVerifier(f)
}

// SaveFile writes the full parameter set to a file.
func (g *Groth) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("proof: create params file: %w", err)
	}
	if _, err := g.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a full parameter set from a file.
func LoadFile(path string) (*Groth, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proof: open params file: %w", err)
	}
	defer f.Close()
	return ReadGroth(f)
}
