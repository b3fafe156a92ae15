package channel_test

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/pkg/channel"
	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/party"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/proof/prooftest"
	"github.com/hushwire/hushwire/pkg/repository"
	"github.com/hushwire/hushwire/pkg/repository/mem"
)

func testSecret(t *testing.T) hashchain.Secret {
	t.Helper()
	var b [32]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	secret, err := hashchain.SecretFromBytes(b[:])
	require.NoError(t, err)
	return secret
}

func testClient() repository.Client {
	return repository.NewGate(mem.NewStore(), prooftest.New(), notify.NewAggregator())
}

func sendAll(t *testing.T, ctx context.Context, ch *channel.Channel, client repository.Client, prover proof.Prover, plaintexts ...string) []*channel.Outgoing {
	t.Helper()
	outs := make([]*channel.Outgoing, 0, len(plaintexts))
	for _, p := range plaintexts {
		out, err := ch.Send([]byte(p))
		require.NoError(t, err)
		require.NoError(t, ch.Submit(ctx, client, prover, out))
		outs = append(outs, out)
	}
	return outs
}

func TestChannel_PairDelivery(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()

	alice, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	bob, err := channel.Open(members, members[1], secret)
	require.NoError(t, err)

	sendAll(t, ctx, alice, client, prover, "a", "b", "c")

	msgs, tampered, err := bob.TryReceive(ctx, client, 2)
	require.NoError(t, err)
	assert.Empty(t, tampered)
	require.Len(t, msgs, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, uint64(i), msgs[i].Local)
		assert.Equal(t, members[0], msgs[i].Sender)
		assert.Equal(t, want, string(msgs[i].Plaintext))
	}

	seen, err := bob.LastSeen(members[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), seen)

	// the same window again is empty: indices deliver exactly once
	msgs, tampered, err = bob.TryReceive(ctx, client, 2)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, tampered)
}

func TestChannel_GapHaltsDelivery(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()

	alice, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	bob, err := channel.Open(members, members[1], secret)
	require.NoError(t, err)

	// prepare three sends but only submit the first and the third
	out0, err := alice.Send([]byte("a"))
	require.NoError(t, err)
	out1, err := alice.Send([]byte("b"))
	require.NoError(t, err)
	out2, err := alice.Send([]byte("c"))
	require.NoError(t, err)
	require.NoError(t, alice.Submit(ctx, client, prover, out0))
	require.NoError(t, alice.Submit(ctx, client, prover, out2))

	msgs, _, err := bob.TryReceive(ctx, client, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "delivery must halt at the missing index")
	assert.Equal(t, "a", string(msgs[0].Plaintext))

	// once the gap fills, the cached entry behind it is delivered in order
	require.NoError(t, alice.Submit(ctx, client, prover, out1))
	msgs, _, err = bob.TryReceive(ctx, client, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", string(msgs[0].Plaintext))
	assert.Equal(t, "c", string(msgs[1].Plaintext))
}

func TestChannel_TamperedEntrySkipped(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()

	alice, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	bob, err := channel.Open(members, members[1], secret)
	require.NoError(t, err)

	out0, err := alice.Send([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, alice.Submit(ctx, client, prover, out0))

	// someone who learned the channel identifier squats alice's next index
	// with garbage under a valid proof
	out1, err := alice.Send([]byte("b"))
	require.NoError(t, err)
	id, err := hashchain.DeriveChannelID(secret, members)
	require.NoError(t, err)
	garbage := []byte("not a channel ciphertext")
	env, err := prover.Prove(ctx, id, out1.Index, out1.SequenceHash, garbage)
	require.NoError(t, err)
	blob, err := env.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, client.Write(ctx, out1.SequenceHash, garbage, blob))

	out2, err := alice.Send([]byte("c"))
	require.NoError(t, err)
	require.NoError(t, alice.Submit(ctx, client, prover, out2))

	msgs, tampered, err := bob.TryReceive(ctx, client, 2)
	require.NoError(t, err)
	require.Len(t, tampered, 1)
	assert.Equal(t, out1.Index, tampered[0].Index)
	assert.ErrorIs(t, tampered[0].Err, channel.ErrTamperedEntry)

	// the stream advances past the tampered entry
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Plaintext))
	assert.Equal(t, "c", string(msgs[1].Plaintext))
}

func TestChannel_GroupInterleaving(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(3)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()

	chans := make([]*channel.Channel, len(members))
	for i, m := range members {
		ch, err := channel.Open(members, m, secret)
		require.NoError(t, err)
		chans[i] = ch
	}

	// slot 1 writes locals 0 and 1, landing at globals 1 and 4
	outs := sendAll(t, ctx, chans[1], client, prover, "x", "y")
	assert.Equal(t, uint64(1), outs[0].Index)
	assert.Equal(t, uint64(4), outs[1].Index)

	sendAll(t, ctx, chans[0], client, prover, "p")
	sendAll(t, ctx, chans[2], client, prover, "q")

	msgs, tampered, err := chans[0].TryReceive(ctx, client, 1)
	require.NoError(t, err)
	assert.Empty(t, tampered)
	require.Len(t, msgs, 4)

	// merged delivery is ordered by global index: 0=p, 1=x, 2=q, 4=y
	assert.Equal(t, []string{"p", "x", "q", "y"}, []string{
		string(msgs[0].Plaintext),
		string(msgs[1].Plaintext),
		string(msgs[2].Plaintext),
		string(msgs[3].Plaintext),
	})
	assert.Equal(t, members[0], msgs[0].Sender)
	assert.Equal(t, members[1], msgs[1].Sender)
	assert.Equal(t, members[2], msgs[2].Sender)
	assert.Equal(t, members[1], msgs[3].Sender)
}

func TestChannel_CounterSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()
	counters := channel.NewFileCounterStore(filepath.Join(t.TempDir(), "counters.cbor"))

	alice, err := channel.Open(members, members[0], secret, channel.WithCounterStore(counters))
	require.NoError(t, err)
	first := sendAll(t, ctx, alice, client, prover, "a", "b")

	// a restarted instance continues from the persisted counter
	alice2, err := channel.Open(members, members[0], secret, channel.WithCounterStore(counters))
	require.NoError(t, err)
	next, err := alice2.NextIndex()
	require.NoError(t, err)
	assert.Greater(t, next, first[1].Index, "restart must never reuse an index")
}

func TestChannel_ReceivePositionSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()
	counters := channel.NewFileCounterStore(filepath.Join(t.TempDir(), "counters.cbor"))

	alice, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	sendAll(t, ctx, alice, client, prover, "a", "b")

	bob, err := channel.Open(members, members[1], secret, channel.WithCounterStore(counters))
	require.NoError(t, err)
	msgs, _, err := bob.TryReceive(ctx, client, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	bob2, err := channel.Open(members, members[1], secret, channel.WithCounterStore(counters))
	require.NoError(t, err)
	msgs, _, err = bob2.TryReceive(ctx, client, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs, "consumed indices must not be redelivered after restart")
}

func TestChannel_ResyncSendCounter(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	secret := testSecret(t)
	client := testClient()
	prover := prooftest.New()

	alice, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	sendAll(t, ctx, alice, client, prover, "a", "b", "c")

	// fresh instance with no counter store: resync recovers from history
	amnesiac, err := channel.Open(members, members[0], secret)
	require.NoError(t, err)
	local, err := amnesiac.ResyncSendCounter(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), local)

	out, err := amnesiac.Send([]byte("d"))
	require.NoError(t, err)
	require.NoError(t, amnesiac.Submit(ctx, client, prover, out))
}

func TestChannel_OutsiderCannotDecrypt(t *testing.T) {
	ctx := context.Background()
	members := party.RandomIDs(2)
	client := testClient()
	prover := prooftest.New()

	alice, err := channel.Open(members, members[0], testSecret(t))
	require.NoError(t, err)
	sendAll(t, ctx, alice, client, prover, "a")

	// same membership, wrong secret: a different channel entirely
	eve, err := channel.Open(members, members[1], testSecret(t))
	require.NoError(t, err)
	msgs, tampered, err := eve.TryReceive(ctx, client, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, tampered)
}

func TestChannel_OpenRejectsNonMember(t *testing.T) {
	members := party.RandomIDs(2)
	outsider := party.RandomIDs(1)[0]
	_, err := channel.Open(members, outsider, testSecret(t))
	assert.ErrorIs(t, err, channel.ErrNotMember)
}
