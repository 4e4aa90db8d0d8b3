package event

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var messageBytesArgs = abi.Arguments{
	{Name: "message", Type: mustType("bytes")},
}

// FindMessageSent locates the first log in logs whose topic0 matches
// MessageSentTopic and whose emitting address equals transmitter, per
// spec.md §4.3 step 1. Returns nil if absent — callers classify that as
// CorrelationMissing.
func FindMessageSent(logs []types.Log, transmitter common.Address) *types.Log {
	for i := range logs {
		l := &logs[i]
		if len(l.Topics) == 0 {
			continue
		}
		if l.Topics[0] == MessageSentTopic && l.Address == transmitter {
			return l
		}
	}
	return nil
}

// DecodeMessageBytes unpacks the non-indexed `bytes message` payload of
// a MessageSent log, per spec.md §4.3 step 2.
func DecodeMessageBytes(log *types.Log) ([]byte, error) {
	values, err := messageBytesArgs.Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "unpack message-sent payload")
	}
	message, ok := values[0].([]byte)
	if !ok {
		return nil, errors.New("message-sent log: unexpected message type")
	}
	return message, nil
}
