package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FieldDiff is a single field-level change between two consecutive snapshots.
// Added and Removed are only set for set-valued fields.
type FieldDiff struct {
	Field    string      `json:"field"`
	Previous interface{} `json:"previous_value"`
	Next     interface{} `json:"new_value"`
	Added    []string    `json:"added,omitempty"`
	Removed  []string    `json:"removed,omitempty"`
}

// JobEventWithDiffs is a raw event enriched with its decoded details, the job snapshot
// as of and including the event, and the diffs against the previous snapshot.
type JobEventWithDiffs struct {
	JobID       string         `json:"job_id"`
	Type        EventType      `json:"type_"`
	Address     common.Address `json:"address_"`
	Data        hexutil.Bytes  `json:"data_"`
	Timestamp   uint64         `json:"timestamp_"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	LogIndex    uint64         `json:"log_index,omitempty"`
	Seq         *uint64        `json:"seq,omitempty"`
	Details     Details        `json:"details"`
	DecodeError string         `json:"decode_error,omitempty"`
	Job         Job            `json:"job"`
	Diffs       []FieldDiff    `json:"diffs"`
}

// Raw returns the raw event the record was built from.
func (e JobEventWithDiffs) Raw() RawEvent {
	return RawEvent{
		Type:        e.Type,
		Address:     e.Address,
		Data:        e.Data,
		Timestamp:   e.Timestamp,
		BlockNumber: e.BlockNumber,
		LogIndex:    e.LogIndex,
		Seq:         e.Seq,
	}
}

// WithDetails returns a copy of e carrying details.
func (e JobEventWithDiffs) WithDetails(details Details) JobEventWithDiffs {
	e.Details = details
	return e
}

// Resolvable reports whether the event references content the resolver can fill in.
func (e JobEventWithDiffs) Resolvable() bool {
	switch e.Details.(type) {
	case OwnerMessageDetails, WorkerMessageDetails, ArbitratedDetails, DisputedDetails:
		return true
	default:
		return false
	}
}
