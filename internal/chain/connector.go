// Package chain implements the Chain Connector (spec.md §4.1): a thin,
// uniform wrapper around a JSON-RPC endpoint that the Scanner, Correlator,
// and Dispatcher drive without ever touching an ethclient.Client directly.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Log is the minimal decoded-log shape the Scanner and Correlator need.
// It mirrors go-ethereum's types.Log field-for-field so Connector
// implementations can return it directly.
type Log = types.Log

// Receipt is the subset of a transaction receipt the Correlator and
// Dispatcher inspect.
type Receipt struct {
	Logs        []Log
	BlockNumber uint64
	Status      uint64 // 1 = success, 0 = failure, per go-ethereum convention
	TxHash      common.Hash
}

// FeeSuggestion is the result of suggest_fees (spec.md §4.1).
type FeeSuggestion struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// FeeOverrides are applied on top of a connector's own fee suggestion
// when SendTx is called directly with explicit fees (used by the
// Dispatcher after applying its 2x multiplier, spec.md §4.6).
type FeeOverrides struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Connector is the uniform interface abstracting a single chain's
// JSON-RPC endpoint, per spec.md §4.1. Implementations must never block
// on chain state from HeadBlock; suspension points are GetLogs,
// GetReceipt, SendTx, and WaitTx.
type Connector interface {
	// HeadBlock returns the current head block number. Fails with
	// ErrTransientRPC on I/O failure.
	HeadBlock(ctx context.Context) (uint64, error)

	// GetLogs returns logs in the inclusive range [fromBlock, toBlock]
	// matching address and topic0. Tolerates toBlock < fromBlock by
	// returning an empty slice. Implementations subdivide internally on
	// RPC range-limit errors; callers assume a single call suffices.
	GetLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]Log, error)

	// GetReceipt returns the receipt for txHash, or (nil, nil) if the
	// transaction is not yet mined.
	GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error)

	// SendTx signs and submits a transaction with the configured relayer
	// key. It does not wait for confirmation.
	SendTx(ctx context.Context, to common.Address, calldata []byte, value *big.Int, gasLimit uint64, fees FeeOverrides) (common.Hash, error)

	// WaitTx blocks until txHash is mined or timeout elapses. Returns
	// ErrConfirmTimeout in the latter case.
	WaitTx(ctx context.Context, txHash common.Hash, timeout time.Duration) (*Receipt, error)

	// SuggestFees returns the chain's current fee estimate. Callers that
	// need a floor or multiplier (the Dispatcher) apply it themselves.
	SuggestFees(ctx context.Context) (FeeSuggestion, error)

	// ReplayRevertReason re-executes a failed call as an eth_call against
	// the block it was mined in, returning any ABI-encoded revert string
	// the node surfaces. Used by the Dispatcher to classify a reverted
	// receive_message as DispatchDuplicate vs. a genuine failure
	// (spec.md §4.6 step 5). Returns "" if no revert string is decodable.
	ReplayRevertReason(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) string
}
