package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleLogRecord() LogRecord {
	return LogRecord{
		ChainID:     31337,
		BlockNumber: 120,
		BlockHash:   "0xabc123",
		TxHash:      "0xdef456",
		TxIndex:     3,
		LogIndex:    1,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Timestamp:   1700000000,
		IngestedAt:  "2024-01-01T00:00:00Z",
	}
}

func TestLogRecordTopic0(t *testing.T) {
	record := sampleLogRecord()
	if got := record.Topic0(); got != "0xaaa" {
		t.Fatalf("unexpected topic0: %s", got)
	}
	record.Topics = nil
	if got := record.Topic0(); got != "" {
		t.Fatalf("expected empty topic0, got %s", got)
	}
}

func TestNewDecodeError(t *testing.T) {
	derr := NewDecodeError(sampleLogRecord(), errors.New("boom"))
	if derr.ChainID != 31337 || derr.BlockNumber != 120 || derr.LogIndex != 1 {
		t.Fatalf("unexpected location: %+v", derr)
	}
	if derr.Topic0 != "0xaaa" || derr.Error != "boom" {
		t.Fatalf("unexpected decode error: %+v", derr)
	}

	b, err := json.Marshal(derr)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(b, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"chain_id", "block_number", "tx_hash", "log_index", "address", "topic0", "error"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing key %s in %s", key, b)
		}
	}
}

func TestTypedEventRecordDecodePayload(t *testing.T) {
	rec := TypedEventRecord{EventName: EventMint, Decoded: json.RawMessage(`{"sender":"0x01","amount_a":"5","amount_b":"7","shares":"9"}`)}
	var mint MintEventData
	if err := rec.DecodePayload(&mint); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if mint.AmountA != "5" || mint.AmountB != "7" {
		t.Fatalf("unexpected payload: %+v", mint)
	}

	if err := (TypedEventRecord{}).DecodePayload(&mint); err == nil {
		t.Fatalf("expected error for missing payload")
	}
}
