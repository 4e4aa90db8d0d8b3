package chain

import (
	"context"
	"math/big"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shieldedusdc/relayer/internal/signer"
)

// minChunkSize is the floor GetLogs subdivides down to before giving up
// and surfacing the underlying RPC error, per spec.md §4.1 "implementations
// may subdivide and retry internally".
const minChunkSize = 32

// EthConnector implements Connector over go-ethereum's ethclient.Client.
type EthConnector struct {
	client  *ethclient.Client
	signer  signer.Signer
	chainID *big.Int
}

// NewEthConnector dials rpcURL and resolves the chain ID reported by the
// node (used for EIP-155 signing).
func NewEthConnector(ctx context.Context, rpcURL string, s signer.Signer) (*EthConnector, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(ErrTransientRPC, "dial %s: %s", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrTransientRPC, "fetch chain id from %s: %s", rpcURL, err)
	}
	return &EthConnector{client: client, signer: s, chainID: chainID}, nil
}

func (c *EthConnector) HeadBlock(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(ErrTransientRPC, err.Error())
	}
	return n, nil
}

func (c *EthConnector) GetLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]Log, error) {
	if toBlock < fromBlock {
		return nil, nil
	}
	return c.getLogsChunked(ctx, fromBlock, toBlock, address, topic0, toBlock-fromBlock+1)
}

func (c *EthConnector) getLogsChunked(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash, chunk uint64) ([]Log, error) {
	query := gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic0}},
	}
	logs, err := c.client.FilterLogs(ctx, query)
	if err == nil {
		return logs, nil
	}

	if chunk <= minChunkSize {
		return nil, errors.Wrap(ErrTransientRPC, err.Error())
	}

	// Treat the failure as a range-too-large condition and subdivide,
	// per spec.md §4.1 / §7 (RangeTooLarge is handled internally).
	mid := fromBlock + (toBlock-fromBlock)/2
	half := chunk / 2
	first, err1 := c.getLogsChunked(ctx, fromBlock, mid, address, topic0, half)
	if err1 != nil {
		return nil, err1
	}
	second, err2 := c.getLogsChunked(ctx, mid+1, toBlock, address, topic0, half)
	if err2 != nil {
		return nil, err2
	}
	return append(first, second...), nil
}

func (c *EthConnector) GetReceipt(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	r, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, gethereum.NotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(ErrTransientRPC, err.Error())
	}
	return toReceipt(r), nil
}

func toReceipt(r *types.Receipt) *Receipt {
	logs := make([]Log, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = *l
	}
	return &Receipt{
		Logs:        logs,
		BlockNumber: r.BlockNumber.Uint64(),
		Status:      r.Status,
		TxHash:      r.TxHash,
	}
}

func (c *EthConnector) SendTx(ctx context.Context, to common.Address, calldata []byte, value *big.Int, gasLimit uint64, fees FeeOverrides) (common.Hash, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return common.Hash{}, errors.Wrap(ErrTransientRPC, err.Error())
	}
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		Gas:       gasLimit,
		GasFeeCap: fees.MaxFeePerGas,
		GasTipCap: fees.MaxPriorityFeePerGas,
		Data:      calldata,
	})

	signedTx, err := c.signer.SignTx(ctx, tx, c.chainID)
	if err != nil {
		return common.Hash{}, err
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errors.Wrap(ErrTransientRPC, err.Error())
	}
	return signedTx.Hash(), nil
}

func (c *EthConnector) WaitTx(ctx context.Context, txHash common.Hash, timeout time.Duration) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.GetReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrConfirmTimeout
			}
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrConfirmTimeout
		case <-ticker.C:
		}
	}
}

func (c *EthConnector) SuggestFees(ctx context.Context) (FeeSuggestion, error) {
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeSuggestion{}, errors.Wrap(ErrTransientRPC, err.Error())
	}

	header, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeSuggestion{}, errors.Wrap(ErrTransientRPC, err.Error())
	}

	baseFee := big.NewInt(0)
	if header.BaseFee != nil {
		baseFee = header.BaseFee
	}
	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	return FeeSuggestion{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: tip,
	}, nil
}

// dataError is the interface go-ethereum's RPC error types implement
// when a revert carries ABI-encoded return data.
type dataError interface {
	error
	ErrorData() interface{}
}

func (c *EthConnector) ReplayRevertReason(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) string {
	_, err := c.client.CallContract(ctx, gethereum.CallMsg{To: &to, Data: calldata}, new(big.Int).SetUint64(blockNumber))
	if err == nil {
		return ""
	}

	var derr dataError
	if !errors.As(err, &derr) {
		return ""
	}
	raw, ok := derr.ErrorData().(string)
	if !ok {
		return ""
	}

	reason, unpackErr := abi.UnpackRevert(common.FromHex(raw))
	if unpackErr != nil {
		return ""
	}
	return reason
}
