// Package keyring is the PKI collaborator of the messaging core: a registry
// mapping account names to member public keys, and pairwise key agreement
// producing channel secrets.
//
// The core treats both as opaque services. Any key-agreement mechanism that
// yields a shared secret works; the one here is secp256k1 ECDH followed by a
// keyed KDF over the sorted pair of identities.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/hushwire/hushwire/pkg/hash"
	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/party"
)

// ErrNotFound indicates that no public key is registered for an account.
var ErrNotFound = errors.New("keyring: account not found")

// Registry maps account names to member identities. Lookup returns
// ErrNotFound for unregistered accounts. Publishing a new key for an existing
// account replaces the old one.
type Registry interface {
	Lookup(ctx context.Context, account string) (party.ID, error)
	Publish(ctx context.Context, account string, id party.ID) error
}

// GenerateIdentity creates a fresh member identity.
func GenerateIdentity() (*secp256k1.PrivateKey, party.ID, error) {
	sk, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, "", fmt.Errorf("keyring: generate identity: %w", err)
	}
	return sk, party.IDFromPublicKey(sk.PubKey()), nil
}

// Agree derives the pairwise channel secret between the holder of priv and
// the peer identity. Both sides derive the same value: the ECDH point is
// symmetric and the two identities are hashed in canonical order.
func Agree(priv *secp256k1.PrivateKey, peer party.ID) (hashchain.Secret, error) {
	pk, err := peer.PublicKey()
	if err != nil {
		return hashchain.Secret{}, err
	}

	shared := secp256k1.GenerateSharedSecret(priv, pk)
	h, err := hash.NewKeyed(shared)
	if err != nil {
		return hashchain.Secret{}, fmt.Errorf("keyring: agree: %w", err)
	}

	self := party.IDFromPublicKey(priv.PubKey())
	pair := party.NewIDSlice([]party.ID{self, peer})
	if err := h.WriteAny(hash.BytesWithDomain{TheDomain: "hushwire/pairwise-secret", Bytes: nil}, pair); err != nil {
		return hashchain.Secret{}, err
	}
	return hashchain.SecretFromBytes(h.Sum())
}

// MemRegistry is an in-memory Registry, used in tests and single-process
// deployments.
type MemRegistry struct {
	mu sync.RWMutex
	m  map[string]party.ID
}

// NewMemRegistry returns an empty MemRegistry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{m: make(map[string]party.ID)}
}

// Lookup implements Registry.
func (r *MemRegistry) Lookup(_ context.Context, account string) (party.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.m[account]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// Publish implements Registry.
func (r *MemRegistry) Publish(_ context.Context, account string, id party.ID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[account] = id
	return nil
}
