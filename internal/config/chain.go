package config

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainConfig is the immutable, per-chain configuration resolved at
// startup. Once the Supervisor has constructed a Connector from it, its
// fields are never mutated.
type ChainConfig struct {
	ChainID  uint64
	Name     string
	DomainID uint32

	RPCURL string

	// BridgeAddress is the contract emitting Initiation events. A zero
	// address means this chain is destination-only.
	BridgeAddress common.Address

	// MessageTransmitterAddress emits MessageSent and accepts
	// receive_message.
	MessageTransmitterAddress common.Address

	EventFilteringSupported bool

	Confirmations uint64
	PollInterval  time.Duration
	MaxLookback   uint64
	ChunkSize     uint64
}

// IsSource reports whether this chain can be scanned for Initiation
// events, per spec.md §3: a chain with no BridgeAddress is
// destination-only.
func (c ChainConfig) IsSource() bool {
	return c.BridgeAddress != (common.Address{}) && c.EventFilteringSupported
}

// IsDestination reports whether this chain can receive relayed messages.
func (c ChainConfig) IsDestination() bool {
	return c.MessageTransmitterAddress != (common.Address{})
}
