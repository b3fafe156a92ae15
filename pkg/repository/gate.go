package repository

import (
	"context"
	"time"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/proof"
)

// Gate is a proof-verifying Client over a Store. It is the repository-side
// write path: verify the proof, insert-if-absent, record the accepted hash in
// the current notification filter.
type Gate struct {
	store    Store
	verifier proof.Verifier
	agg      *notify.Aggregator
}

// NewGate builds a Gate. The aggregator may be shared with other gates over
// the same store.
func NewGate(store Store, verifier proof.Verifier, agg *notify.Aggregator) *Gate {
	return &Gate{store: store, verifier: verifier, agg: agg}
}

// Write implements Client. Duplicate detection runs before proof
// verification would matter: an existing key is rejected no matter how valid
// the proof is, so no overwrite can ever happen.
func (g *Gate) Write(ctx context.Context, h hashchain.SequenceHash, ciphertext, proofEnvelope []byte) error {
	if err := g.verifier.Verify(h, ciphertext, proofEnvelope); err != nil {
		return err
	}
	err := g.store.PutIfAbsent(ctx, h, Entry{Ciphertext: ciphertext, StoredAt: time.Now()})
	if err != nil {
		return err
	}
	g.agg.Add(h)
	return nil
}

// Read implements Client.
func (g *Gate) Read(ctx context.Context, h hashchain.SequenceHash) (*Entry, error) {
	return g.store.Get(ctx, h)
}

// CurrentFilter implements Client.
func (g *Gate) CurrentFilter(context.Context) (*notify.Filter, error) {
	return g.agg.Current(), nil
}

// ArchivedFilter implements Client.
func (g *Gate) ArchivedFilter(_ context.Context, epoch uint64) (*notify.Filter, error) {
	return g.agg.Archived(epoch)
}

// Epochs implements Client.
func (g *Gate) Epochs(context.Context) ([]uint64, error) {
	return g.agg.Epochs(), nil
}
