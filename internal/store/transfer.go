// Package store implements the Pending Store (spec.md §3, §4.4): the
// in-memory, single-writer/many-reader table of PendingTransfer entries
// keyed by (source domain, burn nonce).
package store

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shieldedusdc/relayer/internal/config"
)

// State is a PendingTransfer's position in the state machine of
// spec.md §4.4.
type State int

const (
	// Attesting is the initial state: polling the attestation endpoint.
	Attesting State = iota
	// Relaying: attestation obtained, dispatch in flight.
	Relaying
	// Delivered is terminal: the message was received (or another
	// relayer already delivered it — DispatchDuplicate).
	Delivered
	// Failed is terminal: the destination call reverted for a reason
	// other than a duplicate, or timed out waiting for confirmation.
	Failed
	// GivenUp is terminal: attestation polling exhausted max_poll_retries.
	GivenUp
)

func (s State) String() string {
	switch s {
	case Attesting:
		return "attesting"
	case Relaying:
		return "relaying"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case GivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s removes the entry from the store, per
// spec.md §3 invariant 5.
func (s State) IsTerminal() bool {
	return s == Delivered || s == Failed || s == GivenUp
}

// Key uniquely identifies a PendingTransfer, per spec.md §3 invariant 1.
type Key struct {
	SourceDomain uint32
	BurnNonce    uint64
}

// PendingTransfer is the core mutable entity of spec.md §3. It is
// created once by the Correlator, mutated only by the Attestation
// Poller, and destroyed on reaching a terminal State.
type PendingTransfer struct {
	SourceChain      config.ChainConfig
	DestinationChain config.ChainConfig
	BurnNonce        uint64
	MessageHash      common.Hash
	MessageBytes     []byte

	EnqueuedAt     time.Time
	Retries        int
	LastAttemptAt  time.Time
	State          State
}

// Key returns this transfer's composite key.
func (p *PendingTransfer) Key() Key {
	return Key{SourceDomain: p.SourceChain.DomainID, BurnNonce: p.BurnNonce}
}
