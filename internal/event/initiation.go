// Package event defines the decoded shapes of the two on-chain logs the
// relayer correlates (spec.md §6): the source chain's Initiation event
// and the transmitter's outer MessageSent log.
package event

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// InitiationSignature is the canonical signature string hashed to
// produce the Initiation event's topic0, per spec.md §6.
const InitiationSignature = "Initiation(uint64,uint64,uint32,bytes32,uint256,bytes32,bytes32,uint256)"

// MessageSentSignature is the canonical signature string hashed to
// produce the outer message-sent log's topic0, per spec.md §6.
const MessageSentSignature = "MessageSent(bytes)"

// InitiationTopic and MessageSentTopic are the precomputed topic0
// values Scanner and Correlator filter/match against.
var (
	InitiationTopic  = crypto.Keccak256Hash([]byte(InitiationSignature))
	MessageSentTopic = crypto.Keccak256Hash([]byte(MessageSentSignature))
)

// InitiationEvent is the decoded form of the source-chain event
// (spec.md §3). Only BurnNonce and DestinationDomain drive routing; the
// rest is carried for observability.
type InitiationEvent struct {
	BurnNonce           uint64
	MetadataNonce       uint64
	DestinationDomain   uint32
	RecipientCommitment [32]byte
	Amount              *big.Int
	Nullifier           [32]byte
	NewSenderCommitment [32]byte
	SenderLeafIndex     *big.Int

	SourceTxHash     common.Hash
	SourceBlockNumber uint64
	LogIndex         uint
}

// nonIndexedArgs describes the ABI shape of the Initiation log's data
// field: everything not marked indexed in spec.md §6.
var nonIndexedArgs = abi.Arguments{
	{Name: "recipient_commitment", Type: mustType("bytes32")},
	{Name: "amount", Type: mustType("uint256")},
	{Name: "nullifier", Type: mustType("bytes32")},
	{Name: "new_sender_commitment", Type: mustType("bytes32")},
	{Name: "sender_leaf_index", Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// DecodeInitiation decodes a raw log known to match InitiationTopic into
// an InitiationEvent.
func DecodeInitiation(log types.Log) (*InitiationEvent, error) {
	if len(log.Topics) != 4 {
		return nil, errors.Errorf("initiation log: expected 4 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != InitiationTopic {
		return nil, errors.New("initiation log: topic0 mismatch")
	}

	values, err := nonIndexedArgs.Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unpack initiation log data")
	}

	recipientCommitment, ok := values[0].([32]byte)
	if !ok {
		return nil, errors.New("initiation log: unexpected recipient_commitment type")
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return nil, errors.New("initiation log: unexpected amount type")
	}
	nullifier, ok := values[2].([32]byte)
	if !ok {
		return nil, errors.New("initiation log: unexpected nullifier type")
	}
	newSenderCommitment, ok := values[3].([32]byte)
	if !ok {
		return nil, errors.New("initiation log: unexpected new_sender_commitment type")
	}
	senderLeafIndex, ok := values[4].(*big.Int)
	if !ok {
		return nil, errors.New("initiation log: unexpected sender_leaf_index type")
	}

	burnNonce := new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64()
	metadataNonce := new(big.Int).SetBytes(log.Topics[2].Bytes()).Uint64()
	destinationDomain := uint32(new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64())

	return &InitiationEvent{
		BurnNonce:           burnNonce,
		MetadataNonce:       metadataNonce,
		DestinationDomain:   destinationDomain,
		RecipientCommitment: recipientCommitment,
		Amount:              amount,
		Nullifier:           nullifier,
		NewSenderCommitment: newSenderCommitment,
		SenderLeafIndex:     senderLeafIndex,
		SourceTxHash:        log.TxHash,
		SourceBlockNumber:   log.BlockNumber,
		LogIndex:            log.Index,
	}, nil
}
