package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hushwire/hushwire/internal/params"
	"github.com/hushwire/hushwire/pkg/hashchain"
)

// ErrUnknownEpoch indicates a filter request for an epoch that was never
// sealed.
var ErrUnknownEpoch = errors.New("notify: unknown epoch")

// Aggregator maintains the repository-side filters: one open filter for the
// current epoch, and an archive of sealed ones.
//
// Epoch boundaries are count-based: after a fixed, public number of accepted
// writes the current filter is sealed and a fresh epoch begins. The boundary
// never depends on any client input, so observing it leaks nothing about a
// client's sync schedule.
type Aggregator struct {
	mu       sync.Mutex
	capacity uint64
	current  *Filter
	archive  []*Filter
}

// NewAggregator returns an Aggregator with the default epoch capacity.
func NewAggregator() *Aggregator {
	return NewAggregatorWithCapacity(params.FilterEpochCapacity)
}

// NewAggregatorWithCapacity returns an Aggregator sealing epochs after
// capacity insertions.
func NewAggregatorWithCapacity(capacity uint64) *Aggregator {
	if capacity == 0 {
		capacity = params.FilterEpochCapacity
	}
	return &Aggregator{
		capacity: capacity,
		current:  newFilter(0, capacity),
	}
}

// Add records an accepted sequence hash in the current epoch's filter,
// sealing it first if it is full.
func (a *Aggregator) Add(h hashchain.SequenceHash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current.count >= a.capacity {
		a.current.sealedAt = time.Now()
		a.archive = append(a.archive, a.current)
		a.current = newFilter(a.current.epoch+1, a.capacity)
	}
	a.current.add(h)
}

// Current returns a snapshot of the open epoch's filter.
func (a *Aggregator) Current() *Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.clone()
}

// Archived returns the sealed filter for an epoch.
func (a *Aggregator) Archived(epoch uint64) (*Filter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epoch >= uint64(len(a.archive)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEpoch, epoch)
	}
	return a.archive[epoch].clone(), nil
}

// Epochs lists the archived epoch identifiers in order.
func (a *Aggregator) Epochs() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]uint64, len(a.archive))
	for i := range a.archive {
		out[i] = a.archive[i].epoch
	}
	return out
}

// FiltersSince returns the filters sealed after t, oldest first, followed by
// a snapshot of the current one. A receiver that synced at t tests exactly
// these to catch up.
func (a *Aggregator) FiltersSince(t time.Time) []*Filter {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*Filter
	for i := len(a.archive) - 1; i >= 0; i-- {
		if !a.archive[i].sealedAt.After(t) {
			break
		}
		out = append(out, a.archive[i])
	}
	// reverse into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	snapshots := make([]*Filter, 0, len(out)+1)
	for _, f := range out {
		snapshots = append(snapshots, f.clone())
	}
	return append(snapshots, a.current.clone())
}
