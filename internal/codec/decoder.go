package codec

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityChef/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// DecodeContext provides shared dependencies for decoding.
type DecodeContext struct {
	PoolMetaCache *PoolMetaCache
	Logger        *zap.Logger
}

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Decoder decodes logs produced by Encoder.
type Decoder struct {
	eventsABI   abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a decoder. Topic0Map adds extra topic0 aliases for known event names.
func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	parsed, err := EventsABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(parsed, name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &Decoder{eventsABI: parsed, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent. Pool metadata is attached when the emitting
// address is a known pool.
func (d *Decoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	topic0 := log.Topic0()
	if topic0 == "" {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(topic0)]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", topic0)
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid address: %s", log.Address)
	}
	event := d.eventsABI.Events[name]

	addresses, err := d.decodeTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	amounts, err := unpackAmounts(event, log.Data)
	if err != nil {
		return nil, err
	}
	decoded, err := buildPayload(name, addresses, amounts)
	if err != nil {
		return nil, err
	}

	var meta *model.PoolMeta
	if ctx.PoolMetaCache != nil {
		if cached, ok := ctx.PoolMetaCache.Get(common.HexToAddress(log.Address)); ok {
			meta = &cached
		}
	}
	return buildTypedEvent(log, name, decoded, meta), nil
}

func (d *Decoder) decodeTopics(event abi.Event, topics []string) ([]string, error) {
	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}
	hashes, err := parseTopicHashes(topics[1:])
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(indexed))
	if err := abi.ParseTopicsIntoMap(out, indexed, hashes); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	addresses := make([]string, 0, len(indexed))
	for _, arg := range indexed {
		addr, err := asAddress(out[arg.Name])
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr.Hex())
	}
	return addresses, nil
}

func buildPayload(name string, addresses, amounts []string) (interface{}, error) {
	want := map[string][2]int{
		model.EventTransfer:          {2, 1},
		model.EventApproval:          {2, 1},
		model.EventMint:              {1, 3},
		model.EventBurn:              {1, 3},
		model.EventSwap:              {3, 3},
		model.EventDeposit:           {1, 1},
		model.EventWithdraw:          {1, 1},
		model.EventClaim:             {1, 1},
		model.EventEmergencyWithdraw: {1, 1},
		model.EventRewardRateUpdated: {0, 2},
	}[name]
	if len(addresses) != want[0] || len(amounts) != want[1] {
		return nil, fmt.Errorf("unexpected %s values: %d topics, %d amounts", name, len(addresses), len(amounts))
	}

	switch name {
	case model.EventTransfer:
		return model.TransferEventData{From: addresses[0], To: addresses[1], Value: amounts[0]}, nil
	case model.EventApproval:
		return model.ApprovalEventData{Owner: addresses[0], Spender: addresses[1], Value: amounts[0]}, nil
	case model.EventMint:
		return model.MintEventData{Sender: addresses[0], AmountA: amounts[0], AmountB: amounts[1], Shares: amounts[2]}, nil
	case model.EventBurn:
		return model.BurnEventData{Sender: addresses[0], AmountA: amounts[0], AmountB: amounts[1], Shares: amounts[2]}, nil
	case model.EventSwap:
		return model.SwapEventData{
			Sender:    addresses[0],
			AssetIn:   addresses[1],
			AssetOut:  addresses[2],
			AmountIn:  amounts[0],
			AmountOut: amounts[1],
			FeeShares: amounts[2],
		}, nil
	case model.EventDeposit, model.EventWithdraw, model.EventClaim, model.EventEmergencyWithdraw:
		return model.StakeEventData{User: addresses[0], Amount: amounts[0]}, nil
	case model.EventRewardRateUpdated:
		return model.RewardRateEventData{OldRate: amounts[0], NewRate: amounts[1]}, nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta *model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topic0(), Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

func normalizeEventName(parsed abi.ABI, name string) string {
	trimmed := strings.TrimSpace(name)
	for known := range parsed.Events {
		if strings.EqualFold(known, trimmed) {
			return known
		}
	}
	return ""
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackAmounts(event abi.Event, dataHex string) ([]string, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out = append(out, amount.String())
	}
	return out, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
