package hash

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_KeyedDeterministic(t *testing.T) {
	key := make([]byte, 32)
	_, _ = rand.Read(key)

	h1, err := NewKeyed(key)
	require.NoError(t, err)
	h2, err := NewKeyed(key)
	require.NoError(t, err)

	require.NoError(t, h1.WriteAny([]byte("input"), uint64(42)))
	require.NoError(t, h2.WriteAny([]byte("input"), uint64(42)))
	assert.Equal(t, h1.Sum(), h2.Sum())
}

func TestHash_KeySeparation(t *testing.T) {
	k1 := make([]byte, 32)
	k2 := make([]byte, 32)
	k2[0] = 1

	h1, err := NewKeyed(k1)
	require.NoError(t, err)
	h2, err := NewKeyed(k2)
	require.NoError(t, err)

	require.NoError(t, h1.WriteAny([]byte("input")))
	require.NoError(t, h2.WriteAny([]byte("input")))
	assert.NotEqual(t, h1.Sum(), h2.Sum())
}

func TestHash_DomainSeparation(t *testing.T) {
	h1 := New()
	h2 := New()

	require.NoError(t, h1.WriteAny(BytesWithDomain{TheDomain: "A", Bytes: []byte("x")}))
	require.NoError(t, h2.WriteAny(BytesWithDomain{TheDomain: "B", Bytes: []byte("x")}))
	assert.NotEqual(t, h1.Sum(), h2.Sum())
}

func TestHash_Clone(t *testing.T) {
	h := New()
	require.NoError(t, h.WriteAny([]byte("prefix")))

	c := h.Clone()
	require.NoError(t, c.WriteAny([]byte("suffix")))

	require.NoError(t, h.WriteAny([]byte("other")))
	assert.False(t, bytes.Equal(h.Sum(), c.Sum()))
}

func TestHash_BadKey(t *testing.T) {
	_, err := NewKeyed(make([]byte, 16))
	assert.Error(t, err)
}
