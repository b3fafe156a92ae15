// Package repository defines the interface to the public append-only
// key-value store the protocol writes through, and the proof gate in front of
// it.
//
// The store authenticates nobody. All security rests on the proof gate and on
// cryptographic addressing: keys are sequence hashes only channel members can
// derive, and a write is accepted only with a proof of preimage knowledge
// bound to its exact ciphertext.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/notify"
)

var (
	// ErrDuplicateKey indicates the key already holds an entry. Keys are never
	// overwritten, regardless of proof validity. A writer seeing this for a
	// write it believed novel is either retrying its own earlier success
	// (benign) or reusing an index (a bug that must be investigated).
	ErrDuplicateKey = errors.New("repository: sequence hash already exists")

	// ErrUnavailable indicates a transport or backend failure. Safe to retry
	// with backoff: writes are idempotent under the no-overwrite rule.
	ErrUnavailable = errors.New("repository: unavailable")
)

// Entry is a stored ciphertext together with the repository's own record of
// when it was accepted.
type Entry struct {
	Ciphertext []byte
	StoredAt   time.Time
}

// Client is the repository as consumed by the protocol core.
type Client interface {
	// Write submits (h, ciphertext, proof). It fails with
	// proof.ErrInvalidProof if the proof does not verify, ErrDuplicateKey if
	// the key exists, or ErrUnavailable on transport failure.
	Write(ctx context.Context, h hashchain.SequenceHash, ciphertext, proofEnvelope []byte) error

	// Read returns the entry at h, or (nil, nil) if absent. Absence is a
	// normal outcome, never an error.
	Read(ctx context.Context, h hashchain.SequenceHash) (*Entry, error)

	// CurrentFilter returns the open epoch's notification filter.
	CurrentFilter(ctx context.Context) (*notify.Filter, error)

	// ArchivedFilter returns a sealed epoch's filter.
	ArchivedFilter(ctx context.Context, epoch uint64) (*notify.Filter, error)

	// Epochs lists archived epoch identifiers in order. History may be
	// bounded: very old epochs can be pruned by retention policy.
	Epochs(ctx context.Context) ([]uint64, error)
}

// Store is the narrow storage interface a backend must provide. PutIfAbsent
// must be atomic per key: of concurrent calls for the same key exactly one
// succeeds and the rest observe ErrDuplicateKey. This is the only concurrency
// primitive the protocol leans on.
type Store interface {
	PutIfAbsent(ctx context.Context, h hashchain.SequenceHash, e Entry) error
	Get(ctx context.Context, h hashchain.SequenceHash) (*Entry, error)
}
