package chain

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"jobevents/internal/model"
)

func TestDecodeLog(t *testing.T) {
	event, err := JobEventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	data, err := event.Inputs.NonIndexed().Pack(uint8(model.EventDelivered), sender, payload, uint32(1700000000))
	if err != nil {
		t.Fatalf("pack job event: %v", err)
	}

	contract := common.HexToAddress("0x1111111111111111111111111111111111111111")
	log := types.Log{
		Address:     contract,
		Topics:      []common.Hash{event.ID, common.BigToHash(big.NewInt(42))},
		Data:        data,
		BlockNumber: 12345,
		TxHash:      common.HexToHash("0xdef"),
		Index:       3,
	}

	record, err := DecodeLog(log, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("decode log: %v", err)
	}

	if record.JobID != "42" {
		t.Fatalf("job id mismatch: %s", record.JobID)
	}
	if record.Type != uint8(model.EventDelivered) || record.Timestamp != 1700000000 {
		t.Fatalf("fields mismatch: %+v", record)
	}
	if record.Address != sender.Hex() || record.Contract != contract.Hex() {
		t.Fatalf("address mismatch: %+v", record)
	}
	if record.Data != hexutil.Encode(payload) {
		t.Fatalf("data mismatch: %s", record.Data)
	}
	if record.BlockNumber != 12345 || record.LogIndex != 3 {
		t.Fatalf("position mismatch: %+v", record)
	}

	ev, err := record.ToRawEvent()
	if err != nil {
		t.Fatalf("to raw event: %v", err)
	}
	if ev.Type != model.EventDelivered || len(ev.Data) != 4 {
		t.Fatalf("raw event mismatch: %+v", ev)
	}
}

func TestDecodeLogRejectsForeignTopic(t *testing.T) {
	log := types.Log{Topics: []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}}
	if _, err := DecodeLog(log, time.Now()); err == nil {
		t.Fatalf("expected error for foreign topic")
	}
	if _, err := DecodeLog(types.Log{}, time.Now()); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func TestJobEventQuery(t *testing.T) {
	event, err := JobEventABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	query, err := JobEventQuery(nil, nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(query.Topics) != 1 || query.Topics[0][0] != event.ID {
		t.Fatalf("unexpected topics: %v", query.Topics)
	}

	query, err = JobEventQuery(nil, []*big.Int{big.NewInt(7)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(query.Topics) != 2 || query.Topics[1][0] != common.BigToHash(big.NewInt(7)) {
		t.Fatalf("unexpected job topic: %v", query.Topics)
	}
}

func TestParseJobID(t *testing.T) {
	for input, want := range map[string]int64{"42": 42, "0x2a": 42, " 7 ": 7} {
		got, err := ParseJobID(input)
		if err != nil {
			t.Fatalf("%q: %v", input, err)
		}
		if got.Int64() != want {
			t.Fatalf("%q: got %s", input, got)
		}
	}
	for _, input := range []string{"", "-1", "abc"} {
		if _, err := ParseJobID(input); err == nil {
			t.Fatalf("%q: expected error", input)
		}
	}
}
