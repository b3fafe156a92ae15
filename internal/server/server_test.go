package server_test

import (
	"context"
	"crypto/rand"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/internal/server"
	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/keyring"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/party"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/proof/prooftest"
	"github.com/hushwire/hushwire/pkg/repository"
	"github.com/hushwire/hushwire/pkg/repository/httprepo"
	"github.com/hushwire/hushwire/pkg/repository/mem"
)

// newStack spins up a full server over an in-memory store and returns a
// remote client talking to it over real HTTP.
func newStack(t *testing.T) (*httprepo.Client, *httprepo.Registry) {
	t.Helper()
	gate := repository.NewGate(mem.NewStore(), prooftest.New(), notify.NewAggregator())
	srv := server.New(gate, keyring.NewMemRegistry(), nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	client := httprepo.NewClient(ts.URL)
	return client, httprepo.NewRegistry(client)
}

func testChannelID(t *testing.T) hashchain.ChannelID {
	t.Helper()
	var id hashchain.ChannelID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

func provenWrite(t *testing.T, id hashchain.ChannelID, n uint64, ciphertext []byte) (hashchain.SequenceHash, []byte) {
	t.Helper()
	h := hashchain.DeriveSequenceHash(id, n)
	env, err := prooftest.New().Prove(context.Background(), id, n, h, ciphertext)
	require.NoError(t, err)
	blob, err := env.MarshalBinary()
	require.NoError(t, err)
	return h, blob
}

func TestServer_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := newStack(t)
	id := testChannelID(t)

	ciphertext := []byte("opaque bytes")
	h, blob := provenWrite(t, id, 0, ciphertext)

	require.NoError(t, client.Write(ctx, h, ciphertext, blob))

	entry, err := client.Read(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ciphertext, entry.Ciphertext)
	assert.False(t, entry.StoredAt.IsZero())

	// absent key reads as (nil, nil), not an error
	absent, err := client.Read(ctx, hashchain.DeriveSequenceHash(id, 99))
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestServer_WriteDuplicate(t *testing.T) {
	ctx := context.Background()
	client, _ := newStack(t)
	id := testChannelID(t)

	h, blob := provenWrite(t, id, 0, []byte("first"))
	require.NoError(t, client.Write(ctx, h, []byte("first"), blob))

	_, blob2 := provenWrite(t, id, 0, []byte("second"))
	err := client.Write(ctx, h, []byte("second"), blob2)
	assert.ErrorIs(t, err, repository.ErrDuplicateKey)

	// the original entry is untouched
	entry, err := client.Read(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("first"), entry.Ciphertext)
}

func TestServer_WriteInvalidProof(t *testing.T) {
	ctx := context.Background()
	client, _ := newStack(t)
	id := testChannelID(t)

	ciphertext := []byte("payload")
	h, blob := provenWrite(t, id, 0, ciphertext)

	// proof bound to a different ciphertext must be rejected
	err := client.Write(ctx, h, []byte("swapped"), blob)
	assert.ErrorIs(t, err, proof.ErrInvalidProof)

	entry, err := client.Read(ctx, h)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestServer_Filter(t *testing.T) {
	ctx := context.Background()
	client, _ := newStack(t)
	id := testChannelID(t)

	h, blob := provenWrite(t, id, 0, []byte("x"))
	require.NoError(t, client.Write(ctx, h, []byte("x"), blob))

	f, err := client.CurrentFilter(ctx)
	require.NoError(t, err)
	assert.True(t, f.Test(h))
	assert.False(t, f.Test(hashchain.DeriveSequenceHash(id, 1)))

	epochs, err := client.Epochs(ctx)
	require.NoError(t, err)
	assert.Empty(t, epochs)

	_, err = client.ArchivedFilter(ctx, 0)
	assert.ErrorIs(t, err, notify.ErrUnknownEpoch)
}

func TestServer_Keys(t *testing.T) {
	ctx := context.Background()
	_, registry := newStack(t)

	id := party.RandomIDs(1)[0]
	require.NoError(t, registry.Publish(ctx, "alice.near", id))

	got, err := registry.Lookup(ctx, "alice.near")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = registry.Lookup(ctx, "nobody.near")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}
