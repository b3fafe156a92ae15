package channel

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/party"
)

// CounterState is the durable per-channel position of one member: the next
// local send counter, and the last contiguously consumed local index of each
// member's stream.
type CounterState struct {
	NextSend uint64           `cbor:"1,keyasint"`
	LastSeen map[string]int64 `cbor:"2,keyasint,omitempty"`
}

// CounterStore persists counter state between restarts. Losing this state is
// a fatal precondition violation for the channel: a reused send index would
// collide with the member's own earlier write. ResyncSendCounter can recover
// a safe value from repository history.
type CounterStore interface {
	Load(id hashchain.ChannelID, self party.ID) (CounterState, bool, error)
	Store(id hashchain.ChannelID, self party.ID, state CounterState) error
}

type counterKey struct {
	id   hashchain.ChannelID
	self party.ID
}

// MemCounterStore keeps counters in memory only. Suitable for tests; a real
// deployment wants FileCounterStore or equivalent durable storage.
type MemCounterStore struct {
	mu sync.Mutex
	m  map[counterKey]CounterState
}

// NewMemCounterStore returns an empty MemCounterStore.
func NewMemCounterStore() *MemCounterStore {
	return &MemCounterStore{m: make(map[counterKey]CounterState)}
}

// Load implements CounterStore.
func (s *MemCounterStore) Load(id hashchain.ChannelID, self party.ID) (CounterState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[counterKey{id, self}]
	return st, ok, nil
}

// Store implements CounterStore.
func (s *MemCounterStore) Store(id hashchain.ChannelID, self party.ID, state CounterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[counterKey{id, self}] = state
	return nil
}

// FileCounterStore persists counters in a single cbor file. Writes go through
// a temp file and rename, so a crash never leaves a torn state behind.
type FileCounterStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCounterStore returns a store backed by the file at path. The file is
// created on first Store.
func NewFileCounterStore(path string) *FileCounterStore {
	return &FileCounterStore{path: path}
}

type fileCounterEntry struct {
	ChannelID []byte       `cbor:"1,keyasint"`
	Self      string       `cbor:"2,keyasint"`
	State     CounterState `cbor:"3,keyasint"`
}

func (s *FileCounterStore) load() ([]fileCounterEntry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("channel: read counter file: %w", err)
	}
	var entries []fileCounterEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("channel: counter file corrupt: %w", err)
	}
	return entries, nil
}

// Load implements CounterStore.
func (s *FileCounterStore) Load(id hashchain.ChannelID, self party.ID) (CounterState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return CounterState{}, false, err
	}
	for _, e := range entries {
		if string(e.ChannelID) == string(id[:]) && party.ID(e.Self) == self {
			return e.State, true, nil
		}
	}
	return CounterState{}, false, nil
}

// Store implements CounterStore.
func (s *FileCounterStore) Store(id hashchain.ChannelID, self party.ID, state CounterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	found := false
	for i := range entries {
		if string(entries[i].ChannelID) == string(id[:]) && party.ID(entries[i].Self) == self {
			entries[i].State = state
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, fileCounterEntry{ChannelID: id[:], Self: string(self), State: state})
	}

	data, err := cbor.Marshal(entries)
	if err != nil {
		return fmt.Errorf("channel: encode counter file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("channel: write counter file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("channel: replace counter file: %w", err)
	}
	return nil
}
