package model

// PoolMeta captures immutable pool metadata attached to decoded events.
type PoolMeta struct {
	AssetA     string `json:"asset_a"`
	AssetB     string `json:"asset_b"`
	ShareToken string `json:"share_token"`
	FeeNum     uint32 `json:"fee_num"`
	FeeDen     uint32 `json:"fee_den"`
	SymbolA    string `json:"symbol_a,omitempty"`
	SymbolB    string `json:"symbol_b,omitempty"`
}
