package channel

import (
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/party"
)

func randomChannelID(t *testing.T) hashchain.ChannelID {
	t.Helper()
	var id hashchain.ChannelID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

func TestFileCounterStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.cbor")
	store := NewFileCounterStore(path)

	id := randomChannelID(t)
	self := party.RandomIDs(1)[0]

	_, ok, err := store.Load(id, self)
	require.NoError(t, err)
	assert.False(t, ok)

	want := CounterState{NextSend: 7, LastSeen: map[string]int64{string(self): 12}}
	require.NoError(t, store.Store(id, self, want))

	// a fresh store over the same file sees the persisted state
	got, ok, err := NewFileCounterStore(path).Load(id, self)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// updating overwrites in place
	want.NextSend = 8
	require.NoError(t, store.Store(id, self, want))
	got, ok, err = store.Load(id, self)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestFileCounterStore_SeparateChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.cbor")
	store := NewFileCounterStore(path)
	self := party.RandomIDs(1)[0]

	idA, idB := randomChannelID(t), randomChannelID(t)
	require.NoError(t, store.Store(idA, self, CounterState{NextSend: 1}))
	require.NoError(t, store.Store(idB, self, CounterState{NextSend: 2}))

	a, ok, err := store.Load(idA, self)
	require.NoError(t, err)
	require.True(t, ok)
	b, ok, err := store.Load(idB, self)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), a.NextSend)
	assert.Equal(t, uint64(2), b.NextSend)
}
