package tests

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/shieldedusdc/relayer/internal/chain"
	"github.com/shieldedusdc/relayer/internal/event"
)

// fakeConnector is a chain.Connector backed by in-memory logs and
// receipts, standing in for a JSON-RPC endpoint across these scenarios.
type fakeConnector struct {
	mu sync.Mutex

	head     uint64
	logs     []chain.Log
	receipts map[common.Hash]*chain.Receipt

	sendCount    int
	sendCalldata [][]byte

	waitReceipt *chain.Receipt
	waitErr     error

	revertReason string
	sendErr      error
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{receipts: make(map[common.Hash]*chain.Receipt)}
}

func (f *fakeConnector) HeadBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeConnector) GetLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]chain.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if toBlock < fromBlock {
		return nil, nil
	}
	var out []chain.Log
	for _, l := range f.logs {
		if l.BlockNumber < fromBlock || l.BlockNumber > toBlock {
			continue
		}
		if l.Address != address {
			continue
		}
		if len(l.Topics) == 0 || l.Topics[0] != topic0 {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeConnector) GetReceipt(ctx context.Context, txHash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (f *fakeConnector) SendTx(ctx context.Context, to common.Address, calldata []byte, value *big.Int, gasLimit uint64, fees chain.FeeOverrides) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sendCount++
	f.sendCalldata = append(f.sendCalldata, calldata)
	return common.BigToHash(big.NewInt(int64(f.sendCount))), nil
}

func (f *fakeConnector) WaitTx(ctx context.Context, txHash common.Hash, timeout time.Duration) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.waitReceipt, nil
}

func (f *fakeConnector) SuggestFees(ctx context.Context) (chain.FeeSuggestion, error) {
	return chain.FeeSuggestion{MaxFeePerGas: big.NewInt(100), MaxPriorityFeePerGas: big.NewInt(2)}, nil
}

func (f *fakeConnector) ReplayRevertReason(ctx context.Context, to common.Address, calldata []byte, blockNumber uint64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revertReason
}

func (f *fakeConnector) setHead(head uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

func (f *fakeConnector) addEvent(l chain.Log, r *chain.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	f.receipts[l.TxHash] = r
}

func (f *fakeConnector) setDispatchOutcome(receipt *chain.Receipt, revertReason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitReceipt = receipt
	f.revertReason = revertReason
}

func (f *fakeConnector) sendCountSnapshot() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCount
}

func (f *fakeConnector) headSnapshot() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head
}

// nonIndexedArgs mirrors the unexported shape internal/event uses to
// pack an Initiation log's data field; redeclared here since a test in
// an external package cannot reach it directly.
var nonIndexedArgs = abi.Arguments{
	{Name: "recipient_commitment", Type: mustType("bytes32")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "nullifier", Type: mustType("bytes32")},
	{Name: "new_sender_commitment", Type: mustType("bytes32")},
	{Name: "sender_leaf_index", Type: mustType("uint256")},
}

var messageBytesArgs = abi.Arguments{
	{Name: "message", Type: mustType("bytes")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// initiationLog builds a raw Initiation log as a source chain would
// emit it, per spec.md §6.
func initiationLog(bridge common.Address, burnNonce uint64, destDomain uint32, blockNumber uint64, txHash common.Hash) chain.Log {
	data, err := nonIndexedArgs.Pack([32]byte{}, big.NewInt(0), [32]byte{}, [32]byte{}, big.NewInt(0))
	if err != nil {
		panic(err)
	}
	return chain.Log{
		Address: bridge,
		Topics: []common.Hash{
			event.InitiationTopic,
			common.BigToHash(new(big.Int).SetUint64(burnNonce)),
			common.BigToHash(big.NewInt(0)),
			common.BigToHash(new(big.Int).SetUint64(uint64(destDomain))),
		},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      txHash,
		Index:       0,
	}
}

// messageSentLog builds the outer MessageSent log carrying payload,
// emitted by the source chain's message transmitter in the same
// transaction as the Initiation event.
func messageSentLog(transmitter common.Address, payload []byte, blockNumber uint64, txHash common.Hash) chain.Log {
	data, err := messageBytesArgs.Pack(payload)
	if err != nil {
		panic(err)
	}
	return chain.Log{
		Address:     transmitter,
		Topics:      []common.Hash{event.MessageSentTopic},
		Data:        data,
		BlockNumber: blockNumber,
		TxHash:      txHash,
		Index:       1,
	}
}

func successReceipt(blockNumber uint64, txHash common.Hash, logs ...chain.Log) *chain.Receipt {
	return &chain.Receipt{Logs: logs, BlockNumber: blockNumber, Status: 1, TxHash: txHash}
}

// newAttestationServer replies "pending" to the first completeAfterCalls
// requests for a given message hash path, then "complete" thereafter.
// Counts are tracked per path so concurrent transfers don't interfere.
func newAttestationServer(completeAfterCalls int) *httptest.Server {
	var mu sync.Mutex
	counts := map[string]int{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		counts[r.URL.Path]++
		n := counts[r.URL.Path]
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n > completeAfterCalls {
			_, _ = w.Write([]byte(`{"status":"complete","attestation":"0xAB"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
}

// newPendingForeverServer never completes, used to exercise attestation
// retry exhaustion (spec.md §8 scenario 3).
func newPendingForeverServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
}
