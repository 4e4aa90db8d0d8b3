// Package dispatcher implements the Dispatcher (spec.md §4.6): submits
// the destination chain's receive_message transaction for a fully
// attested transfer and classifies the outcome.
package dispatcher

import (
	"context"
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/metrics"
)

// Outcome classifies a dispatch attempt's result, feeding the
// PendingTransfer state transitions of spec.md §4.4.
type Outcome int

const (
	// OutcomeDelivered: the message was received, or another relayer
	// already delivered it (DispatchDuplicate, treated identically).
	OutcomeDelivered Outcome = iota
	// OutcomeFailed: reverted for a non-duplicate reason, or timed out.
	OutcomeFailed
)

// Result is the full outcome of one Dispatch call.
type Result struct {
	Outcome Outcome
	TxHash  common.Hash
	Reason  string
}

// duplicateReason matches revert reasons indicating the nonce was
// already consumed by another relayer, per spec.md §4.6 step 5.
var duplicateReason = regexp.MustCompile(`(?i)nonce already used|already received`)

// receiveMessageGasLimit is "empirically sufficient for message
// verification + mint", per spec.md §4.6 step 3.
const receiveMessageGasLimit = 500_000

// minPriorityFeeWei is the absolute floor applied to the priority fee,
// guarding against zero-suggested-fee L2s (spec.md §4.6 step 2).
var minPriorityFeeWei = big.NewInt(1_000_000_000) // 1 gwei

var receiveMessageArgs = abi.Arguments{
	{Name: "message", Type: mustType("bytes")},
	{Name: "attestation", Type: mustType("bytes")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// receiveMessageSelector is the 4-byte selector for
// receive_message(bytes,bytes), matching spec.md §6's destination call.
var receiveMessageSelector = crypto.Keccak256([]byte("receiveMessage(bytes,bytes)"))[:4]

// Dispatcher submits receive_message calls, serialising at-most-one
// outstanding send per destination chain (spec.md §5).
type Dispatcher struct {
	connectors map[uint32]chain.Connector
	sems       map[uint32]*semaphore.Weighted
	timeout    time.Duration
	metrics    *metrics.Registry
	logger     *zap.Logger
}

// New builds a Dispatcher over one Connector per destination domain.
func New(connectors map[uint32]chain.Connector, timeout time.Duration, m *metrics.Registry, logger *zap.Logger) *Dispatcher {
	sems := make(map[uint32]*semaphore.Weighted, len(connectors))
	for domain := range connectors {
		sems[domain] = semaphore.NewWeighted(1)
	}
	return &Dispatcher{
		connectors: connectors,
		sems:       sems,
		timeout:    timeout,
		metrics:    m,
		logger:     logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch implements spec.md §4.6. The caller (the Attestation Poller)
// invokes this synchronously; the per-destination semaphore ensures no
// two transfers race for the same chain's nonce.
func (d *Dispatcher) Dispatch(ctx context.Context, destination config.ChainConfig, messageBytes, attestationBytes []byte) (Result, error) {
	connector, ok := d.connectors[destination.DomainID]
	if !ok {
		return Result{}, errors.Errorf("no connector configured for destination domain %d", destination.DomainID)
	}
	sem := d.sems[destination.DomainID]

	if err := sem.Acquire(ctx, 1); err != nil {
		return Result{}, errors.Wrap(err, "acquire destination semaphore")
	}
	defer sem.Release(1)

	calldata, err := packReceiveMessage(messageBytes, attestationBytes)
	if err != nil {
		return Result{}, errors.Wrap(err, "encode receive_message calldata")
	}

	fees, err := connector.SuggestFees(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "suggest_fees")
	}
	fees = doubleWithFloor(fees)

	txHash, err := connector.SendTx(ctx, destination.MessageTransmitterAddress, calldata, big.NewInt(0), receiveMessageGasLimit, chain.FeeOverrides{
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "send receive_message transaction")
	}

	receipt, err := connector.WaitTx(ctx, txHash, d.timeout)
	if err != nil {
		if errors.Is(err, chain.ErrConfirmTimeout) {
			d.metrics.DispatchFailed.Inc()
			return Result{Outcome: OutcomeFailed, TxHash: txHash, Reason: "confirm timeout"}, nil
		}
		return Result{}, err
	}

	if receipt.Status == 1 {
		d.metrics.DispatchSuccess.Inc()
		return Result{Outcome: OutcomeDelivered, TxHash: txHash}, nil
	}

	reason := connector.ReplayRevertReason(ctx, destination.MessageTransmitterAddress, calldata, receipt.BlockNumber)
	if duplicateReason.MatchString(reason) {
		d.metrics.DispatchDuplicate.Inc()
		return Result{Outcome: OutcomeDelivered, TxHash: txHash, Reason: reason}, nil
	}
	d.metrics.DispatchFailed.Inc()
	return Result{Outcome: OutcomeFailed, TxHash: txHash, Reason: reason}, nil
}

// doubleWithFloor applies the 2x multiplier to both fee fields and the
// 1 gwei priority-fee floor, per spec.md §4.6 step 2 / §8 B4.
func doubleWithFloor(fees chain.FeeSuggestion) chain.FeeSuggestion {
	maxFee := new(big.Int).Mul(fees.MaxFeePerGas, big.NewInt(2))
	priority := new(big.Int).Mul(fees.MaxPriorityFeePerGas, big.NewInt(2))
	if priority.Cmp(minPriorityFeeWei) < 0 {
		priority = new(big.Int).Set(minPriorityFeeWei)
	}
	if maxFee.Cmp(priority) < 0 {
		maxFee = new(big.Int).Set(priority)
	}
	return chain.FeeSuggestion{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: priority}
}

func packReceiveMessage(message, attestationBytes []byte) ([]byte, error) {
	packed, err := receiveMessageArgs.Pack(message, attestationBytes)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, receiveMessageSelector...), packed...), nil
}
