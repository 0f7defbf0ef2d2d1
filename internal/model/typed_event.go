package model

import (
	"encoding/json"
	"errors"
)

var errMissingPayload = errors.New("missing decoded payload")

// TypedEvent is a decoded event log. Pool events carry the pool's metadata.
type TypedEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	BlockHash   string      `json:"block_hash"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
	PoolMeta    *PoolMeta   `json:"pool_meta,omitempty"`
	Raw         *RawLogRef  `json:"raw,omitempty"`
}

// TypedEventRecord reads a TypedEvent back, leaving the payload for the consumer to decode
// once EventName is known.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    *PoolMeta       `json:"pool_meta,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// DecodePayload unmarshals the payload into dst.
func (r TypedEventRecord) DecodePayload(dst interface{}) error {
	if len(r.Decoded) == 0 {
		return errMissingPayload
	}
	return json.Unmarshal(r.Decoded, dst)
}

// RawLogRef points back at the log a TypedEvent was decoded from.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
