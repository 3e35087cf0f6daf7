package chain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"jobevents/internal/model"
)

const marketplaceABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "jobId", "type": "uint256"},
      {"indexed": false, "internalType": "uint8", "name": "eventType", "type": "uint8"},
      {"indexed": false, "internalType": "address", "name": "address_", "type": "address"},
      {"indexed": false, "internalType": "bytes", "name": "data_", "type": "bytes"},
      {"indexed": false, "internalType": "uint32", "name": "timestamp_", "type": "uint32"}
    ],
    "name": "JobEvent",
    "type": "event"
  }
]`

var (
	marketplaceABI     abi.ABI
	marketplaceABIOnce sync.Once
	marketplaceABIErr  error
)

// MarketplaceABI returns the parsed marketplace event ABI.
func MarketplaceABI() (abi.ABI, error) {
	marketplaceABIOnce.Do(func() {
		marketplaceABI, marketplaceABIErr = abi.JSON(strings.NewReader(marketplaceABIJSON))
	})
	return marketplaceABI, marketplaceABIErr
}

// JobEventABI returns the JobEvent event definition.
func JobEventABI() (abi.Event, error) {
	parsed, err := MarketplaceABI()
	if err != nil {
		return abi.Event{}, err
	}
	event, ok := parsed.Events["JobEvent"]
	if !ok {
		return abi.Event{}, fmt.Errorf("JobEvent missing from abi")
	}
	return event, nil
}

// DecodeLog converts a JobEvent log into its normalized record.
func DecodeLog(log types.Log, ingestedAt time.Time) (model.RawEventRecord, error) {
	event, err := JobEventABI()
	if err != nil {
		return model.RawEventRecord{}, err
	}
	if len(log.Topics) < 2 {
		return model.RawEventRecord{}, fmt.Errorf("job event log has %d topics", len(log.Topics))
	}
	if log.Topics[0] != event.ID {
		return model.RawEventRecord{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.RawEventRecord{}, fmt.Errorf("unpack job event: %w", err)
	}
	if len(values) != 4 {
		return model.RawEventRecord{}, fmt.Errorf("unexpected job event field count: %d", len(values))
	}

	eventType, ok := values[0].(uint8)
	if !ok {
		return model.RawEventRecord{}, fmt.Errorf("eventType has type %T", values[0])
	}
	sender, ok := values[1].(common.Address)
	if !ok {
		return model.RawEventRecord{}, fmt.Errorf("address_ has type %T", values[1])
	}
	data, ok := values[2].([]byte)
	if !ok {
		return model.RawEventRecord{}, fmt.Errorf("data_ has type %T", values[2])
	}
	timestamp, ok := values[3].(uint32)
	if !ok {
		return model.RawEventRecord{}, fmt.Errorf("timestamp_ has type %T", values[3])
	}

	record := model.NewRawEventRecord(JobIDFromTopic(log.Topics[1]), model.RawEvent{
		Type:        model.EventType(eventType),
		Address:     sender,
		Data:        data,
		Timestamp:   uint64(timestamp),
		BlockNumber: log.BlockNumber,
		LogIndex:    uint64(log.Index),
	})
	record.Contract = log.Address.Hex()
	record.BlockHash = log.BlockHash.Hex()
	record.TxHash = log.TxHash.Hex()
	record.Removed = log.Removed
	record.IngestedAt = ingestedAt.UTC().Format(time.RFC3339Nano)
	return record, nil
}

// JobIDFromTopic renders an indexed uint256 job id as a decimal string.
func JobIDFromTopic(topic common.Hash) string {
	return new(big.Int).SetBytes(topic.Bytes()).String()
}

// ParseJobID parses a decimal or 0x-prefixed job id.
func ParseJobID(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	id, ok := new(big.Int).SetString(input, 0)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("invalid job id: %q", input)
	}
	return id, nil
}
