// Package notify implements the private notification mechanism: Bloom filters
// over the sequence hashes written during an epoch.
//
// A receiver downloads a filter and tests the hashes it is waiting for
// locally, revealing nothing about which hashes interest it. A hit is only
// "possibly present" (the filter has a bounded false-positive rate and no
// false negatives); confirming it requires a direct read, which reintroduces
// a narrow direct-query signal the caller should be aware of.
package notify

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/hushwire/hushwire/internal/params"
	"github.com/hushwire/hushwire/pkg/hashchain"
)

// Filter is one epoch's membership structure over posted sequence hashes.
type Filter struct {
	epoch    uint64
	sealedAt time.Time // zero while the epoch is still open
	count    uint64
	bf       *bloom.BloomFilter
}

func newFilter(epoch uint64, capacity uint64) *Filter {
	return &Filter{
		epoch: epoch,
		bf:    bloom.NewWithEstimates(uint(capacity), params.FilterFalsePositiveRate),
	}
}

// Epoch returns the filter's epoch identifier.
func (f *Filter) Epoch() uint64 { return f.epoch }

// Count returns the number of hashes inserted so far.
func (f *Filter) Count() uint64 { return f.count }

// SealedAt returns the time the epoch was sealed, or the zero time if the
// epoch is still open.
func (f *Filter) SealedAt() time.Time { return f.sealedAt }

// Test reports whether h is possibly present. False means definitely absent:
// the filter has no false negatives.
func (f *Filter) Test(h hashchain.SequenceHash) bool {
	return f.bf.Test(h[:])
}

func (f *Filter) add(h hashchain.SequenceHash) {
	f.bf.Add(h[:])
	f.count++
}

func (f *Filter) clone() *Filter {
	return &Filter{
		epoch:    f.epoch,
		sealedAt: f.sealedAt,
		count:    f.count,
		bf:       f.bf.Copy(),
	}
}

// filterBlob is the wire form of a Filter.
type filterBlob struct {
	Epoch      uint64 `cbor:"1,keyasint"`
	SealedAtMs int64  `cbor:"2,keyasint,omitempty"`
	Count      uint64 `cbor:"3,keyasint"`
	Bits       []byte `cbor:"4,keyasint"`
}

// Marshal encodes the filter for transport.
func (f *Filter) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.bf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("notify: marshal filter: %w", err)
	}
	blob := filterBlob{
		Epoch: f.epoch,
		Count: f.count,
		Bits:  buf.Bytes(),
	}
	if !f.sealedAt.IsZero() {
		blob.SealedAtMs = f.sealedAt.UnixMilli()
	}
	return cbor.Marshal(blob)
}

// Unmarshal decodes a filter received from a repository.
func Unmarshal(data []byte) (*Filter, error) {
	var blob filterBlob
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("notify: unmarshal filter: %w", err)
	}
	bf := bloom.New(1, 1)
	if _, err := bf.ReadFrom(bytes.NewReader(blob.Bits)); err != nil {
		return nil, fmt.Errorf("notify: unmarshal filter bits: %w", err)
	}
	f := &Filter{
		epoch: blob.Epoch,
		count: blob.Count,
		bf:    bf,
	}
	if blob.SealedAtMs != 0 {
		f.sealedAt = time.UnixMilli(blob.SealedAtMs)
	}
	return f, nil
}
