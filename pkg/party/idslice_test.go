package party

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSlice_Canonical(t *testing.T) {
	ids := RandomIDs(8)
	require.True(t, ids.Valid())

	// shuffling the input must not change the resulting order
	shuffled := []ID{ids[3], ids[7], ids[0], ids[5], ids[1], ids[6], ids[2], ids[4]}
	assert.Equal(t, ids, NewIDSlice(shuffled))
}

func TestIDSlice_GetIndex(t *testing.T) {
	ids := RandomIDs(5)
	for i, id := range ids {
		assert.Equal(t, i, ids.GetIndex(id))
		assert.True(t, ids.Contains(id))
	}
	other := RandomIDs(1)[0]
	assert.Equal(t, -1, ids.GetIndex(other))
	assert.False(t, ids.Contains(other))
}

func TestIDSlice_Valid(t *testing.T) {
	assert.False(t, IDSlice{}.Valid())

	ids := RandomIDs(3)
	assert.True(t, ids.Valid())

	dup := append(ids.Copy(), ids[0])
	assert.False(t, NewIDSlice(dup).Valid())
}

func TestID_Validate(t *testing.T) {
	id := RandomIDs(1)[0]
	require.NoError(t, id.Validate())

	pk, err := id.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, id, IDFromPublicKey(pk))

	assert.Error(t, ID("not hex").Validate())
	assert.Error(t, ID("abcd").Validate())
}
