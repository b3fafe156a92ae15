// Package hash provides the domain-separated keyed hashing used throughout
// hushwire for identifier derivation and key derivation.
package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/hushwire/hushwire/internal/params"
)

// DigestLengthBytes is the length of the output of Sum.
const DigestLengthBytes = params.ChannelIDSize

// Hash is a wrapper around a blake3 hasher, accepting domain-separated input.
type Hash struct {
	h *blake3.Hasher
}

// New creates an unkeyed Hash.
func New() *Hash {
	return &Hash{h: blake3.New()}
}

// NewKeyed creates a Hash keyed with the given 32-byte key. All output of a
// keyed Hash is a PRF of the key: without it, digests over different inputs
// are computationally unlinkable.
func NewKeyed(key []byte) (*Hash, error) {
	h, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, fmt.Errorf("hash: keyed init: %w", err)
	}
	return &Hash{h: h}, nil
}

// Digest returns a reader for the current output of the function.
//
// This finalizes the current state of the hash, and returns what's
// essentially a stream of random bytes.
func (hash *Hash) Digest() io.Reader {
	return hash.h.Digest()
}

// Sum returns a slice of length DigestLengthBytes resulting from the current
// hash state. If a different length is required, use
// io.ReadFull(hash.Digest(), out) instead.
func (hash *Hash) Sum() []byte {
	out := make([]byte, DigestLengthBytes)
	if _, err := io.ReadFull(hash.Digest(), out); err != nil {
		panic(fmt.Sprintf("hash.Sum: internal hash failure: %v", err))
	}
	return out
}

// WriteAny writes data to the hash state, each element in its own domain.
//
// Currently supported types:
//
//   - []byte
//   - uint64
//   - hash.WriterToWithDomain
//
// The first two types get this function's own domain separation. The last
// carries its own domain, which is respected.
func (hash *Hash) WriteAny(data ...interface{}) error {
	for _, d := range data {
		switch t := d.(type) {
		case []byte:
			err := writeWithDomain(hash.h, BytesWithDomain{
				TheDomain: "[]byte",
				Bytes:     t,
			})
			if err != nil {
				return fmt.Errorf("hash.Hash: write []byte: %w", err)
			}
		case uint64:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], t)
			err := writeWithDomain(hash.h, BytesWithDomain{
				TheDomain: "uint64",
				Bytes:     b[:],
			})
			if err != nil {
				return fmt.Errorf("hash.Hash: write uint64: %w", err)
			}
		case WriterToWithDomain:
			if err := writeWithDomain(hash.h, t); err != nil {
				return fmt.Errorf("hash.Hash: write %q: %w", t.Domain(), err)
			}
		default:
			panic("hash.Hash: unsupported type")
		}
	}
	return nil
}

// Clone returns a copy of the Hash in its current state.
func (hash *Hash) Clone() *Hash {
	return &Hash{h: hash.h.Clone()}
}
