// Package hashchain derives channel identifiers and per-index sequence hashes
// from a channel's shared secret.
//
// The channel identifier is a PRF of the shared secret over the canonical
// member ordering, so all members derive the same value independently. Each
// sequence hash is SHA-256d over the identifier and the sequence index;
// knowledge of the identifier therefore yields every sequence hash of the
// channel, past and future, which is why the identifier itself must be kept
// as secret as the shared secret and is never persisted to the repository.
package hashchain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hushwire/hushwire/internal/params"
	"github.com/hushwire/hushwire/pkg/hash"
	"github.com/hushwire/hushwire/pkg/party"
)

var (
	// ErrInvalidSecret indicates a shared secret of the wrong length.
	ErrInvalidSecret = errors.New("hashchain: invalid secret length")
	// ErrInvalidMembership indicates an empty or non-canonical member set.
	ErrInvalidMembership = errors.New("hashchain: invalid membership")
)

type (
	// Secret is a channel's shared secret, established by an external
	// key-agreement collaborator and never transmitted.
	Secret [params.SecretSize]byte

	// ChannelID is the derived channel identifier. Treat it as secret.
	ChannelID [params.ChannelIDSize]byte

	// SequenceHash is the repository key of one message slot.
	SequenceHash [params.SequenceHashSize]byte
)

// SecretFromBytes copies b into a Secret, rejecting wrong lengths.
func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != params.SecretSize {
		return s, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSecret, len(b), params.SecretSize)
	}
	copy(s[:], b)
	return s, nil
}

// DeriveChannelID derives the channel identifier for a member set sharing a
// secret. The members are canonicalized before hashing, so the result is
// independent of the order the caller lists them in.
func DeriveChannelID(secret Secret, members party.IDSlice) (ChannelID, error) {
	var id ChannelID
	canonical := members.Copy()
	if !canonical.Valid() {
		return id, ErrInvalidMembership
	}

	h, err := hash.NewKeyed(secret[:])
	if err != nil {
		return id, fmt.Errorf("%w: %s", ErrInvalidSecret, err)
	}
	if err := h.WriteAny(hash.BytesWithDomain{TheDomain: "hushwire/channel-id", Bytes: nil}, canonical); err != nil {
		return id, err
	}
	copy(id[:], h.Sum())
	return id, nil
}

// SequencePreimage returns the exact byte string whose SHA-256d digest is the
// sequence hash for index n: the channel identifier followed by the
// little-endian encoding of n. The proof circuit constrains this same layout,
// with the identifier as the secret key part and the index encoding as the
// rest of the preimage.
func SequencePreimage(id ChannelID, n uint64) []byte {
	buf := make([]byte, params.ChannelIDSize+params.SequenceRestSize)
	copy(buf, id[:])
	binary.LittleEndian.PutUint64(buf[params.ChannelIDSize:], n)
	return buf
}

// DeriveSequenceHash derives the repository key for the n-th message of the
// channel.
func DeriveSequenceHash(id ChannelID, n uint64) SequenceHash {
	first := sha256.Sum256(SequencePreimage(id, n))
	return SequenceHash(sha256.Sum256(first[:]))
}

// Bytes returns the hash as a slice.
func (h SequenceHash) Bytes() []byte {
	return h[:]
}

// String returns the hex encoding of the hash.
func (h SequenceHash) String() string {
	return hex.EncodeToString(h[:])
}

// SequenceHashFromBytes copies b into a SequenceHash, rejecting wrong lengths.
func SequenceHashFromBytes(b []byte) (SequenceHash, error) {
	var h SequenceHash
	if len(b) != params.SequenceHashSize {
		return h, fmt.Errorf("hashchain: sequence hash must be %d bytes, got %d", params.SequenceHashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}
