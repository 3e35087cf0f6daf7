package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawEvent is a single job event as emitted by the marketplace contract.
type RawEvent struct {
	Type        EventType
	Address     common.Address
	Data        []byte
	Timestamp   uint64
	BlockNumber uint64
	LogIndex    uint64
	// Seq is the position of the event in the job's event list when the source knows it.
	Seq *uint64
}

// EventKey identifies an event for duplicate detection across sources.
type EventKey struct {
	Type      EventType
	Timestamp uint64
}

func (e RawEvent) Key() EventKey {
	return EventKey{Type: e.Type, Timestamp: e.Timestamp}
}

// Before reports whether e sorts strictly before other in chain order.
// Block and log index only take part when both events carry them.
func (e RawEvent) Before(other RawEvent) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	if e.BlockNumber == 0 || other.BlockNumber == 0 {
		return false
	}
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	return e.LogIndex < other.LogIndex
}

// RawEventRecord is the normalized JSON form of a job event used by JSONL files and the
// indexer database.
type RawEventRecord struct {
	JobID       string  `json:"job_id"`
	Contract    string  `json:"contract,omitempty"`
	BlockNumber uint64  `json:"block_number"`
	BlockHash   string  `json:"block_hash,omitempty"`
	TxHash      string  `json:"tx_hash,omitempty"`
	LogIndex    uint64  `json:"log_index"`
	Type        uint8   `json:"type"`
	Address     string  `json:"address"`
	Data        string  `json:"data"`
	Timestamp   uint64  `json:"timestamp"`
	Seq         *uint64 `json:"seq,omitempty"`
	Removed     bool    `json:"removed,omitempty"`
	IngestedAt  string  `json:"ingested_at,omitempty"`
}

// ToRawEvent validates and converts the record.
func (r RawEventRecord) ToRawEvent() (RawEvent, error) {
	if !common.IsHexAddress(r.Address) {
		return RawEvent{}, fmt.Errorf("invalid address: %q", r.Address)
	}

	var data []byte
	if trimmed := strings.TrimSpace(r.Data); trimmed != "" && trimmed != "0x" {
		decoded, err := hexutil.Decode(trimmed)
		if err != nil {
			return RawEvent{}, fmt.Errorf("invalid data: %w", err)
		}
		data = decoded
	}

	return RawEvent{
		Type:        EventType(r.Type),
		Address:     common.HexToAddress(r.Address),
		Data:        data,
		Timestamp:   r.Timestamp,
		BlockNumber: r.BlockNumber,
		LogIndex:    r.LogIndex,
		Seq:         r.Seq,
	}, nil
}

// NewRawEventRecord builds the wire form of ev for jobID.
func NewRawEventRecord(jobID string, ev RawEvent) RawEventRecord {
	return RawEventRecord{
		JobID:       jobID,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
		Type:        uint8(ev.Type),
		Address:     ev.Address.Hex(),
		Data:        hexutil.Encode(ev.Data),
		Timestamp:   ev.Timestamp,
		Seq:         ev.Seq,
	}
}
