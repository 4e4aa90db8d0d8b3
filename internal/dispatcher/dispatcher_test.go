package dispatcher

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/config"
	"github.com/shieldedusdc/relayer/internal/metrics"
)

// fakeConnector is a hand-written chain.Connector stub: tests drive its
// behaviour directly rather than generating a mock, since Dispatch's
// contract is small enough to fake by hand.
type fakeConnector struct {
	sendErr      error
	waitReceipt  *chain.Receipt
	waitErr      error
	revertReason string
	sentCalldata []byte
}

func (f *fakeConnector) HeadBlock(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeConnector) GetLogs(ctx context.Context, from, to uint64, addr common.Address, topic0 common.Hash) ([]chain.Log, error) {
	return nil, nil
}

func (f *fakeConnector) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error) {
	return nil, nil
}

func (f *fakeConnector) SendTx(ctx context.Context, to common.Address, calldata []byte, value *big.Int, gasLimit uint64, fees chain.FeeOverrides) (common.Hash, error) {
	f.sentCalldata = calldata
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	return common.HexToHash("0xabc"), nil
}

func (f *fakeConnector) WaitTx(ctx context.Context, txHash common.Hash, timeout time.Duration) (*chain.Receipt, error) {
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.waitReceipt, nil
}

func (f *fakeConnector) SuggestFees(ctx context.Context) (chain.FeeSuggestion, error) {
	return chain.FeeSuggestion{
		MaxFeePerGas:         big.NewInt(10),
		MaxPriorityFeePerGas: big.NewInt(1),
	}, nil
}

func (f *fakeConnector) ReplayRevertReason(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) string {
	return f.revertReason
}

var destChain = config.ChainConfig{
	Name:                      "avalanche",
	DomainID:                  1,
	MessageTransmitterAddress: common.HexToAddress("0x77"),
}

func newDispatcherHarness(conn chain.Connector) *Dispatcher {
	m := metrics.New(prometheus.NewRegistry())
	return New(map[uint32]chain.Connector{1: conn}, time.Second, m, zap.NewNop())
}

func TestDispatchReturnsDeliveredOnSuccess(t *testing.T) {
	conn := &fakeConnector{waitReceipt: &chain.Receipt{Status: 1, BlockNumber: 10}}
	d := newDispatcherHarness(conn)

	result, err := d.Dispatch(context.Background(), destChain, []byte("message"), []byte("attestation"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)
	assert.NotEmpty(t, conn.sentCalldata)
}

func TestDispatchClassifiesDuplicateRevertAsDelivered(t *testing.T) {
	conn := &fakeConnector{
		waitReceipt:  &chain.Receipt{Status: 0, BlockNumber: 10},
		revertReason: "nonce already used",
	}
	d := newDispatcherHarness(conn)

	result, err := d.Dispatch(context.Background(), destChain, []byte("message"), []byte("attestation"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, result.Outcome)
}

func TestDispatchClassifiesGenuineRevertAsFailed(t *testing.T) {
	conn := &fakeConnector{
		waitReceipt:  &chain.Receipt{Status: 0, BlockNumber: 10},
		revertReason: "insufficient balance",
	}
	d := newDispatcherHarness(conn)

	result, err := d.Dispatch(context.Background(), destChain, []byte("message"), []byte("attestation"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestDispatchClassifiesConfirmTimeoutAsFailed(t *testing.T) {
	conn := &fakeConnector{waitErr: chain.ErrConfirmTimeout}
	d := newDispatcherHarness(conn)

	result, err := d.Dispatch(context.Background(), destChain, []byte("message"), []byte("attestation"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Equal(t, "confirm timeout", result.Reason)
}

func TestDispatchErrorsWhenNoConnectorForDomain(t *testing.T) {
	d := newDispatcherHarness(&fakeConnector{waitReceipt: &chain.Receipt{Status: 1}})
	unknown := config.ChainConfig{DomainID: 99}

	_, err := d.Dispatch(context.Background(), unknown, []byte("m"), []byte("a"))
	assert.Error(t, err)
}

func TestDoubleWithFloorAppliesMultiplierAndFloor(t *testing.T) {
	fees := chain.FeeSuggestion{MaxFeePerGas: big.NewInt(10), MaxPriorityFeePerGas: big.NewInt(1)}
	doubled := doubleWithFloor(fees)

	assert.Equal(t, big.NewInt(1_000_000_000), doubled.MaxPriorityFeePerGas)
	assert.True(t, doubled.MaxFeePerGas.Cmp(doubled.MaxPriorityFeePerGas) >= 0)
}
