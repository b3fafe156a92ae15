package proof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/sha2"
	"github.com/consensys/gnark/std/math/uints"

	"github.com/hushwire/hushwire/internal/params"
)

// relationCircuit is the single well-known circuit. Versioned additions would
// get their own scheme identifier and circuit type; the verifier rejects
// anything but the scheme it was built for.
type relationCircuit struct {
	// private witnesses: the channel identifier and the sequence-index
	// encoding, together the SHA-256d preimage of the sequence hash
	Key  [params.ChannelIDSize]uints.U8    `gnark:",secret"`
	Rest [params.SequenceRestSize]uints.U8 `gnark:",secret"`

	SequenceHash     [params.SequenceHashSize]uints.U8 `gnark:",public"`
	CiphertextDigest [32]uints.U8                      `gnark:",public"`
	BindingTag       [32]uints.U8                      `gnark:",public"`
}

func (c *relationCircuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}

	// SHA256d(key ‖ rest) = h
	inner, err := sha2.New(api)
	if err != nil {
		return err
	}
	inner.Write(c.Key[:])
	inner.Write(c.Rest[:])

	outer, err := sha2.New(api)
	if err != nil {
		return err
	}
	outer.Write(inner.Sum())
	digest := outer.Sum()
	for i := range c.SequenceHash {
		uapi.ByteAssertEq(digest[i], c.SequenceHash[i])
	}

	// SHA256(key ‖ rest ‖ SHA256(c)) = tag
	binder, err := sha2.New(api)
	if err != nil {
		return err
	}
	binder.Write(c.Key[:])
	binder.Write(c.Rest[:])
	binder.Write(c.CiphertextDigest[:])
	tag := binder.Sum()
	for i := range c.BindingTag {
		uapi.ByteAssertEq(tag[i], c.BindingTag[i])
	}
	return nil
}
