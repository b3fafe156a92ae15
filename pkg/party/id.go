package party

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/hushwire/hushwire/internal/params"
)

// ID identifies a channel member.
//
// It is the lowercase hex encoding of the member's compressed secp256k1
// public key, so the lexicographic order on IDs coincides with the byte order
// on keys and every holder of the same member set derives the same canonical
// ordering.
type ID string

// IDFromPublicKey returns the ID for a public key.
func IDFromPublicKey(pk *secp256k1.PublicKey) ID {
	return ID(hex.EncodeToString(pk.SerializeCompressed()))
}

// Validate returns an error if the ID does not encode a compressed secp256k1
// public key.
func (id ID) Validate() error {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return fmt.Errorf("party: ID is not hex: %w", err)
	}
	if len(b) != params.CompressedPointSize {
		return fmt.Errorf("party: ID encodes %d bytes, expected %d", len(b), params.CompressedPointSize)
	}
	if _, err := secp256k1.ParsePubKey(b); err != nil {
		return fmt.Errorf("party: ID is not a valid public key: %w", err)
	}
	return nil
}

// Bytes returns the raw compressed public key the ID encodes.
func (id ID) Bytes() ([]byte, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("party: ID is not hex: %w", err)
	}
	return b, nil
}

// PublicKey parses the public key the ID encodes.
func (id ID) PublicKey() (*secp256k1.PublicKey, error) {
	b, err := id.Bytes()
	if err != nil {
		return nil, err
	}
	pk, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("party: ID is not a valid public key: %w", err)
	}
	return pk, nil
}

func (id ID) String() string {
	return string(id)
}

// WriteTo implements io.WriterTo, and should be used within a hash.Hash.
func (id ID) WriteTo(w io.Writer) (int64, error) {
	if id == "" {
		return 0, io.ErrUnexpectedEOF
	}
	n, err := w.Write([]byte(id))
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within
// hash.Hash.
func (ID) Domain() string {
	return "ID"
}
