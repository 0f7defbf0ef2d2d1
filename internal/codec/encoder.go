// Package codec converts emitted events to EVM-style logs and decodes those logs back into
// typed events.
package codec

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"liquidityChef/internal/fixedpoint"
	"liquidityChef/internal/model"
)

// LogContext positions an encoded log in the simulated chain.
type LogContext struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
}

// Encoder packs events with the events ABI.
type Encoder struct {
	eventsABI abi.ABI
}

// NewEncoder builds an encoder.
func NewEncoder() (*Encoder, error) {
	parsed, err := EventsABI()
	if err != nil {
		return nil, err
	}
	return &Encoder{eventsABI: parsed}, nil
}

// Encode converts event into a log.
func (e *Encoder) Encode(event model.Event, ctx LogContext) (types.Log, error) {
	spec, ok := e.eventsABI.Events[event.Name]
	if !ok {
		return types.Log{}, fmt.Errorf("unsupported event: %s", event.Name)
	}
	indexed, values, err := eventArguments(event)
	if err != nil {
		return types.Log{}, fmt.Errorf("encode %s: %w", event.Name, err)
	}
	if want := len(indexedArguments(spec.Inputs)); len(indexed) != want {
		return types.Log{}, fmt.Errorf("encode %s: %d indexed values, want %d", event.Name, len(indexed), want)
	}

	topics := make([]common.Hash, 0, len(indexed)+1)
	topics = append(topics, spec.ID)
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()))
	}
	data, err := spec.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", event.Name, err)
	}

	return types.Log{
		Address:     event.Address,
		Topics:      topics,
		Data:        data,
		BlockNumber: ctx.BlockNumber,
		BlockHash:   ctx.BlockHash,
		TxHash:      ctx.TxHash,
		TxIndex:     ctx.TxIndex,
		Index:       ctx.LogIndex,
	}, nil
}

// BuildLogRecord normalizes a log for storage.
func BuildLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}

func eventArguments(event model.Event) ([]common.Address, []interface{}, error) {
	switch data := event.Data.(type) {
	case model.TransferEventData:
		return addressesThenAmounts([]string{data.From, data.To}, data.Value)
	case model.ApprovalEventData:
		return addressesThenAmounts([]string{data.Owner, data.Spender}, data.Value)
	case model.MintEventData:
		return addressesThenAmounts([]string{data.Sender}, data.AmountA, data.AmountB, data.Shares)
	case model.BurnEventData:
		return addressesThenAmounts([]string{data.Sender}, data.AmountA, data.AmountB, data.Shares)
	case model.SwapEventData:
		return addressesThenAmounts([]string{data.Sender, data.AssetIn, data.AssetOut}, data.AmountIn, data.AmountOut, data.FeeShares)
	case model.StakeEventData:
		return addressesThenAmounts([]string{data.User}, data.Amount)
	case model.RewardRateEventData:
		return addressesThenAmounts(nil, data.OldRate, data.NewRate)
	default:
		return nil, nil, fmt.Errorf("unsupported payload %T", event.Data)
	}
}

func addressesThenAmounts(addresses []string, amounts ...string) ([]common.Address, []interface{}, error) {
	indexed := make([]common.Address, 0, len(addresses))
	for _, addr := range addresses {
		if !common.IsHexAddress(addr) {
			return nil, nil, fmt.Errorf("invalid address: %s", addr)
		}
		indexed = append(indexed, common.HexToAddress(addr))
	}
	values := make([]interface{}, 0, len(amounts))
	for _, amount := range amounts {
		parsed, err := fixedpoint.Parse(amount)
		if err != nil {
			return nil, nil, err
		}
		values = append(values, parsed.ToBig())
	}
	return indexed, values, nil
}
