package model

import (
	"encoding/json"
	"testing"
)

func TestSwapEventDataJSONStringFields(t *testing.T) {
	payload := SwapEventData{
		Sender:    "0x1111111111111111111111111111111111111111",
		AssetIn:   "0x2222222222222222222222222222222222222222",
		AssetOut:  "0x3333333333333333333333333333333333333333",
		AmountIn:  "115792089237316195423570985008687907853269984665640564039457584007913129639935",
		AmountOut: "42",
		FeeShares: "900000000000000",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"amount_in", "amount_out", "fee_shares"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
}
