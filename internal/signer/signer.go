// Package signer provides the relayer's transaction-signing backends:
// a local private key (the default) or a remote AWS KMS key (A6 in
// SPEC_FULL.md), selected by the Supervisor at construction time.
package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer produces a signed transaction for the relayer's address. Both
// backends implement the same interface so the Connector never knows
// which one it is using.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}
