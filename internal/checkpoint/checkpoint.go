// Package checkpoint implements the optional Redis-backed recovery store
// (SPEC_FULL.md A4). It is never authoritative — spec.md §1 Non-goals:
// "Persistent on-disk state is not required for correctness: the
// destination's replay-protection ... is authoritative against double
// delivery; the relayer's own store is an optimisation." A checkpoint
// only shortens the max_lookback replay window after a clean restart.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/shieldedusdc/relayer/internal/store"
)

const keyPrefix = "relayer:"

// Store persists LastProcessedBlock checkpoints and a PendingTransfer
// snapshot to Redis.
type Store struct {
	client *redis.Client
}

// New dials redisURL (a standard redis:// connection string).
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse REDIS_URL")
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveLastProcessedBlock checkpoints a source chain's scan position.
func (s *Store) SaveLastProcessedBlock(ctx context.Context, chainName string, block uint64) error {
	return s.client.Set(ctx, keyPrefix+"last_block:"+chainName, block, 0).Err()
}

// LoadLastProcessedBlock returns a prior checkpoint, or ok=false if none
// exists (first run, or Redis unavailable — callers fall back to
// max(0, head-max_lookback) per spec.md §3).
func (s *Store) LoadLastProcessedBlock(ctx context.Context, chainName string) (uint64, bool) {
	val, err := s.client.Get(ctx, keyPrefix+"last_block:"+chainName).Uint64()
	if err != nil {
		return 0, false
	}
	return val, true
}

// pendingSnapshot is the JSON-serializable form of a PendingTransfer,
// keyed identically to store.Key so it round-trips through a map.
type pendingSnapshot struct {
	SourceChainName      string    `json:"source_chain"`
	DestinationChainName string    `json:"destination_chain"`
	BurnNonce            uint64    `json:"burn_nonce"`
	MessageHash          string    `json:"message_hash"`
	MessageBytes         string    `json:"message_bytes"`
	EnqueuedAt           time.Time `json:"enqueued_at"`
	Retries              int       `json:"retries"`
	State                string    `json:"state"`
}

// SavePending mirrors one transfer's current snapshot. The Supervisor's
// pending checkpointer calls it for each insert or mutation that the
// Store's onChange hook forwards to it (spec.md §4.4 note: "the
// Dispatcher reports outcomes back to C5 for application" — this mirrors
// whatever C5 applies, after the fact, never gating it).
func (s *Store) SavePending(ctx context.Context, t *store.PendingTransfer) error {
	snap := pendingSnapshot{
		SourceChainName:      t.SourceChain.Name,
		DestinationChainName: t.DestinationChain.Name,
		BurnNonce:            t.BurnNonce,
		MessageHash:          t.MessageHash.Hex(),
		MessageBytes:         fmt.Sprintf("%x", t.MessageBytes),
		EnqueuedAt:           t.EnqueuedAt,
		Retries:              t.Retries,
		State:                t.State.String(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal pending snapshot")
	}
	field := fmt.Sprintf("%d:%d", t.SourceChain.DomainID, t.BurnNonce)
	return s.client.HSet(ctx, keyPrefix+"pending", field, data).Err()
}

// DeletePending removes a transfer's snapshot once it reaches a
// terminal state.
func (s *Store) DeletePending(ctx context.Context, key store.Key) error {
	field := fmt.Sprintf("%d:%d", key.SourceDomain, key.BurnNonce)
	return s.client.HDel(ctx, keyPrefix+"pending", field).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
