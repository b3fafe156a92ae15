// Package redisrepo backs the repository store with Redis. SetNX gives the
// atomic insert-if-absent the no-overwrite rule needs.
package redisrepo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/repository"
)

const keyPrefix = "hushwire:entry:"

// Store implements repository.Store on a Redis client.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps an existing Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

type entryBlob struct {
	Ciphertext []byte `cbor:"1,keyasint"`
	StoredAtMs int64  `cbor:"2,keyasint"`
}

func entryKey(h hashchain.SequenceHash) string {
	return keyPrefix + hex.EncodeToString(h[:])
}

// PutIfAbsent implements repository.Store.
func (s *Store) PutIfAbsent(ctx context.Context, h hashchain.SequenceHash, e repository.Entry) error {
	data, err := cbor.Marshal(entryBlob{
		Ciphertext: e.Ciphertext,
		StoredAtMs: e.StoredAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("redisrepo: encode entry: %w", err)
	}
	set, err := s.rdb.SetNX(ctx, entryKey(h), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
	}
	if !set {
		return repository.ErrDuplicateKey
	}
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(ctx context.Context, h hashchain.SequenceHash) (*repository.Entry, error) {
	data, err := s.rdb.Get(ctx, entryKey(h)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnavailable, err)
	}
	var blob entryBlob
	if err := cbor.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("redisrepo: decode entry: %w", err)
	}
	return &repository.Entry{
		Ciphertext: blob.Ciphertext,
		StoredAt:   time.UnixMilli(blob.StoredAtMs),
	}, nil
}
