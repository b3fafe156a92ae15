package proof

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/party"
)

// The groth16 tests compile the SHA-256d circuit and run a trusted setup,
// which takes a while; skipped under -short.

func grothSetup(t *testing.T) *Groth {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping groth16 setup in short mode")
	}
	g, err := Setup()
	require.NoError(t, err)
	return g
}

func testChannelID(t *testing.T) hashchain.ChannelID {
	t.Helper()
	var secret hashchain.Secret
	_, err := rand.Read(secret[:])
	require.NoError(t, err)
	id, err := hashchain.DeriveChannelID(secret, party.RandomIDs(2))
	require.NoError(t, err)
	return id
}

func TestGroth_ProveVerify(t *testing.T) {
	g := grothSetup(t)
	ctx := context.Background()
	id := testChannelID(t)

	const n = 7
	h := hashchain.DeriveSequenceHash(id, n)
	ciphertext := []byte("sealed payload")

	env, err := g.Prove(ctx, id, n, h, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, SchemeGroth16, env.Scheme)

	blob, err := env.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, g.Verify(h, ciphertext, blob))

	// the same proof must not validate a substituted ciphertext
	err = g.Verify(h, []byte("sniped payload"), blob)
	assert.ErrorIs(t, err, ErrInvalidProof)

	// nor a different sequence hash
	err = g.Verify(hashchain.DeriveSequenceHash(id, n+1), ciphertext, blob)
	assert.ErrorIs(t, err, ErrInvalidProof)

	// verify-only parameters accept the honest triplet
	var vkBuf bytes.Buffer
	_, err = g.WriteVerifyingKey(&vkBuf)
	require.NoError(t, err)
	verifier, err := ReadVerifier(&vkBuf)
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(h, ciphertext, blob))

	_, err = verifier.Prove(ctx, id, n, h, ciphertext)
	assert.Error(t, err)
}

func TestGroth_Unsatisfiable(t *testing.T) {
	g := grothSetup(t)
	id := testChannelID(t)

	h := hashchain.DeriveSequenceHash(id, 1)
	_, err := g.Prove(context.Background(), id, 0, h, []byte("m"))
	assert.ErrorIs(t, err, ErrCircuitUnsatisfiable)
}

func TestGroth_MalformedProof(t *testing.T) {
	g := grothSetup(t)
	id := testChannelID(t)
	h := hashchain.DeriveSequenceHash(id, 0)

	err := g.Verify(h, []byte("m"), []byte("garbage"))
	assert.ErrorIs(t, err, ErrInvalidProof)

	env := &Envelope{Scheme: "unknown-scheme", BindingTag: make([]byte, 32), Proof: []byte{1}}
	blob, err := env.MarshalBinary()
	require.NoError(t, err)
	err = g.Verify(h, []byte("m"), blob)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestGroth_ProveCancellation(t *testing.T) {
	g := grothSetup(t)
	id := testChannelID(t)
	h := hashchain.DeriveSequenceHash(id, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Prove(ctx, id, 0, h, []byte("m"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := &Envelope{Scheme: SchemeGroth16, BindingTag: bytes.Repeat([]byte{7}, 32), Proof: []byte{1, 2, 3}}
	blob, err := env.MarshalBinary()
	require.NoError(t, err)

	got, err := ParseEnvelope(blob)
	require.NoError(t, err)
	assert.Equal(t, env, got)

	_, err = ParseEnvelope([]byte{0xff, 0x00, 0x01})
	assert.ErrorIs(t, err, ErrInvalidProof)
}
