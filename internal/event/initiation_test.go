package event

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeInitiationLog(t *testing.T, burnNonce, metadataNonce uint64, destDomain uint32) types.Log {
	t.Helper()

	recipient := common.HexToHash("0xaa")
	nullifier := common.HexToHash("0xbb")
	newSender := common.HexToHash("0xcc")

	data, err := nonIndexedArgs.Pack(
		[32]byte(recipient),
		big.NewInt(1000),
		[32]byte(nullifier),
		[32]byte(newSender),
		big.NewInt(7),
	)
	require.NoError(t, err)

	return types.Log{
		Topics: []common.Hash{
			InitiationTopic,
			common.BigToHash(new(big.Int).SetUint64(burnNonce)),
			common.BigToHash(new(big.Int).SetUint64(metadataNonce)),
			common.BigToHash(new(big.Int).SetUint64(uint64(destDomain))),
		},
		Data:        data,
		TxHash:      common.HexToHash("0x1234"),
		BlockNumber: 100,
		Index:       3,
	}
}

func TestDecodeInitiationRoundTrips(t *testing.T) {
	log := encodeInitiationLog(t, 42, 7, 1)

	decoded, err := DecodeInitiation(log)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), decoded.BurnNonce)
	assert.Equal(t, uint64(7), decoded.MetadataNonce)
	assert.Equal(t, uint32(1), decoded.DestinationDomain)
	assert.Equal(t, big.NewInt(1000), decoded.Amount)
	assert.Equal(t, common.HexToHash("0x1234"), decoded.SourceTxHash)
	assert.Equal(t, uint64(100), decoded.SourceBlockNumber)
}

func TestDecodeInitiationRejectsWrongTopicCount(t *testing.T) {
	log := encodeInitiationLog(t, 1, 1, 0)
	log.Topics = log.Topics[:2]

	_, err := DecodeInitiation(log)
	assert.Error(t, err)
}

func TestDecodeInitiationRejectsWrongTopic0(t *testing.T) {
	log := encodeInitiationLog(t, 1, 1, 0)
	log.Topics[0] = common.Hash{}

	_, err := DecodeInitiation(log)
	assert.Error(t, err)
}

// ensure the package-level ABI arguments stay internally consistent,
// guarding against an accidental type/arg-count drift.
func TestNonIndexedArgsShape(t *testing.T) {
	require.Len(t, nonIndexedArgs, 5)
	for _, arg := range nonIndexedArgs {
		assert.NotEqual(t, abi.Type{}, arg.Type)
	}
}
