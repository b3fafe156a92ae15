// Package channel implements the ordered, encrypted message stream among a
// fixed membership sharing one secret.
//
// A channel derives its identifier from the shared secret once, allocates
// sequence indices to members by slot so writes can never race, encrypts
// with the sequence hash as associated data so an entry cannot be replayed
// into another slot, and consumes each member's stream in contiguous order so
// every index is delivered exactly once.
package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sync/errgroup"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/party"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/repository"
)

var (
	// ErrNotMember indicates self is not part of the member set.
	ErrNotMember = errors.New("channel: self is not a member")

	// ErrTamperedEntry indicates a stored entry that does not decrypt under
	// the channel secret. Expected for decoy or foreign entries; never fatal.
	ErrTamperedEntry = errors.New("channel: entry is tampered or foreign")
)

// readConcurrency bounds parallel repository reads during TryReceive.
const readConcurrency = 8

// Message is a delivered plaintext.
type Message struct {
	// Index is the global sequence index, unique across the channel.
	Index uint64
	// Local is the sender's own message counter for this entry.
	Local     uint64
	Sender    party.ID
	Plaintext []byte
	StoredAt  time.Time
}

// Tampered reports a present entry that was skipped because it did not
// decrypt. The sender's stream advances past it.
type Tampered struct {
	Index        uint64
	SequenceHash hashchain.SequenceHash
	Err          error
}

// Outgoing is a prepared send: the allocated index, the repository key and
// the ciphertext. It still has to be proven and written.
type Outgoing struct {
	Index        uint64
	SequenceHash hashchain.SequenceHash
	Ciphertext   []byte
}

type pendingEntry struct {
	msg      Message
	tampered *Tampered
}

// stream tracks one member's slot on the receive side: the last contiguously
// consumed local index, and decrypted entries waiting behind a gap.
type stream struct {
	lastSeen int64
	pending  map[uint64]pendingEntry
}

// Channel is one member's view of a channel. Each instance owns its own copy
// of the shared secret and identifier, sourced from the external key-store;
// nothing here is process-global.
type Channel struct {
	members  party.IDSlice
	self     party.ID
	selfSlot uint64
	width    uint64
	secret   hashchain.Secret
	id       hashchain.ChannelID

	mu       sync.Mutex
	nextSend uint64
	streams  []*stream
	counters CounterStore
}

// Option configures a Channel.
type Option func(*Channel)

// WithCounterStore sets the durable counter store. The default is an
// in-memory store that does not survive restarts.
func WithCounterStore(cs CounterStore) Option {
	return func(c *Channel) { c.counters = cs }
}

// Open derives the channel identifier for the member set and restores the
// member's persisted position.
func Open(members party.IDSlice, self party.ID, secret hashchain.Secret, opts ...Option) (*Channel, error) {
	canonical := members.Copy()
	id, err := hashchain.DeriveChannelID(secret, canonical)
	if err != nil {
		return nil, err
	}
	slot := Slot(canonical, self)
	if slot < 0 {
		return nil, ErrNotMember
	}

	c := &Channel{
		members:  canonical,
		self:     self,
		selfSlot: uint64(slot),
		width:    uint64(len(canonical)),
		secret:   secret,
		id:       id,
		streams:  make([]*stream, len(canonical)),
		counters: NewMemCounterStore(),
	}
	for i := range c.streams {
		c.streams[i] = &stream{lastSeen: -1, pending: make(map[uint64]pendingEntry)}
	}
	for _, opt := range opts {
		opt(c)
	}

	state, ok, err := c.counters.Load(id, self)
	if err != nil {
		return nil, err
	}
	if ok {
		c.nextSend = state.NextSend
		for i, member := range c.members {
			if seen, ok := state.LastSeen[string(member)]; ok {
				c.streams[i].lastSeen = seen
			}
		}
	}
	return c, nil
}

// Members returns the canonical member ordering.
func (c *Channel) Members() party.IDSlice {
	return c.members.Copy()
}

// LastSeen returns the last contiguously consumed local index of a member's
// stream, or -1 if nothing was consumed yet.
func (c *Channel) LastSeen(member party.ID) (int64, error) {
	slot := Slot(c.members, member)
	if slot < 0 {
		return 0, ErrNotMember
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[slot].lastSeen, nil
}

// counterState assembles the persistent state. Caller holds c.mu.
func (c *Channel) counterState() CounterState {
	state := CounterState{NextSend: c.nextSend, LastSeen: make(map[string]int64, len(c.members))}
	for i, member := range c.members {
		state.LastSeen[string(member)] = c.streams[i].lastSeen
	}
	return state
}

// NextIndex allocates the member's next global sequence index. The advanced
// counter is persisted before the index is handed out: an index the store
// could not record is never used.
func (c *Channel) NextIndex() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := GlobalIndex(c.selfSlot, c.width, c.nextSend)
	state := c.counterState()
	state.NextSend = c.nextSend + 1
	if err := c.counters.Store(c.id, c.self, state); err != nil {
		return 0, fmt.Errorf("channel: persist send counter: %w", err)
	}
	c.nextSend++
	return n, nil
}

// Send allocates an index and encrypts the plaintext for it. It does not
// touch the repository; submit the result through a prover and a repository
// client, or use Submit.
func (c *Channel) Send(plaintext []byte) (*Outgoing, error) {
	n, err := c.NextIndex()
	if err != nil {
		return nil, err
	}
	h := hashchain.DeriveSequenceHash(c.id, n)
	ciphertext, err := c.seal(n, h, plaintext)
	if err != nil {
		return nil, err
	}
	return &Outgoing{Index: n, SequenceHash: h, Ciphertext: ciphertext}, nil
}

// Submit proves and writes a prepared send. A submission interrupted before
// confirmation is safe to retry with the same Outgoing: it either lands or
// fails with ErrDuplicateKey because the original landed.
func (c *Channel) Submit(ctx context.Context, client repository.Client, prover proof.Prover, out *Outgoing) error {
	env, err := prover.Prove(ctx, c.id, out.Index, out.SequenceHash, out.Ciphertext)
	if err != nil {
		return err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	return client.Write(ctx, out.SequenceHash, out.Ciphertext, blob)
}

// TryReceive polls every member's stream for local indices up to and
// including uptoLocal, one repository read per member per index. This is the
// receive-side cost of slot allocation, linear in the member count.
//
// Delivery is contiguous per stream: a local index with no entry yet halts
// that stream's advancement, and entries found beyond the gap are cached for
// a later call rather than delivered out of order. Present entries that do
// not decrypt are skipped and reported as Tampered. The call is idempotent
// and resumable; callers choose their own polling cadence around it.
func (c *Channel) TryReceive(ctx context.Context, client repository.Client, uptoLocal uint64) ([]Message, []Tampered, error) {
	type target struct {
		slot  uint64
		local uint64
	}

	c.mu.Lock()
	var targets []target
	for slot := uint64(0); slot < c.width; slot++ {
		st := c.streams[slot]
		for local := uint64(st.lastSeen + 1); local <= uptoLocal; local++ {
			if _, ok := st.pending[local]; !ok {
				targets = append(targets, target{slot: slot, local: local})
			}
		}
	}
	c.mu.Unlock()

	fetched := make(map[target]*repository.Entry, len(targets))
	var fetchedMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for _, tg := range targets {
		tg := tg
		g.Go(func() error {
			n := GlobalIndex(tg.slot, c.width, tg.local)
			entry, err := client.Read(gctx, hashchain.DeriveSequenceHash(c.id, n))
			if err != nil {
				return err
			}
			if entry != nil {
				fetchedMu.Lock()
				fetched[tg] = entry
				fetchedMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for tg, entry := range fetched {
		n := GlobalIndex(tg.slot, c.width, tg.local)
		h := hashchain.DeriveSequenceHash(c.id, n)
		plaintext, err := c.open(n, h, entry.Ciphertext)
		if err != nil {
			c.streams[tg.slot].pending[tg.local] = pendingEntry{tampered: &Tampered{Index: n, SequenceHash: h, Err: err}}
			continue
		}
		c.streams[tg.slot].pending[tg.local] = pendingEntry{msg: Message{
			Index:     n,
			Local:     tg.local,
			Sender:    c.members[tg.slot],
			Plaintext: plaintext,
			StoredAt:  entry.StoredAt,
		}}
	}

	var msgs []Message
	var tampered []Tampered
	for slot := uint64(0); slot < c.width; slot++ {
		st := c.streams[slot]
		for local := uint64(st.lastSeen + 1); local <= uptoLocal; local++ {
			p, ok := st.pending[local]
			if !ok {
				break
			}
			delete(st.pending, local)
			if p.tampered != nil {
				tampered = append(tampered, *p.tampered)
			} else {
				msgs = append(msgs, p.msg)
			}
			st.lastSeen = int64(local)
		}
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Index < msgs[j].Index })
	sort.Slice(tampered, func(i, j int) bool { return tampered[i].Index < tampered[j].Index })

	if err := c.counters.Store(c.id, c.self, c.counterState()); err != nil {
		return msgs, tampered, fmt.Errorf("channel: persist last seen: %w", err)
	}
	return msgs, tampered, nil
}

// ResyncSendCounter recovers a safe send counter from repository history by
// scanning the member's own slot forward until the first absent index. Use
// after counter-store loss; normal operation never needs it.
func (c *Channel) ResyncSendCounter(ctx context.Context, client repository.Client) (uint64, error) {
	c.mu.Lock()
	local := c.nextSend
	c.mu.Unlock()

	for {
		n := GlobalIndex(c.selfSlot, c.width, local)
		entry, err := client.Read(ctx, hashchain.DeriveSequenceHash(c.id, n))
		if err != nil {
			return 0, err
		}
		if entry == nil {
			break
		}
		local++
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSend = local
	if err := c.counters.Store(c.id, c.self, c.counterState()); err != nil {
		return 0, fmt.Errorf("channel: persist resynced counter: %w", err)
	}
	return local, nil
}

// nonceFor builds the AEAD nonce for global index n: the little-endian index
// padded to the nonce size. Global indices are unique per channel, so nonces
// never repeat under one secret.
func nonceFor(n uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce, n)
	return nonce
}

func (c *Channel) seal(n uint64, h hashchain.SequenceHash, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.secret[:])
	if err != nil {
		return nil, fmt.Errorf("channel: init aead: %w", err)
	}
	return aead.Seal(nil, nonceFor(n), plaintext, h[:]), nil
}

func (c *Channel) open(n uint64, h hashchain.SequenceHash, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.secret[:])
	if err != nil {
		return nil, fmt.Errorf("channel: init aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonceFor(n), ciphertext, h[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTamperedEntry, err)
	}
	return plaintext, nil
}
