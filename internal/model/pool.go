package model

// Pool represents a pool metadata record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	AssetA         string `json:"asset_a"`
	AssetB         string `json:"asset_b"`
	ShareToken     string `json:"share_token"`
	FeeNum         uint32 `json:"fee_num"`
	FeeDen         uint32 `json:"fee_den"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
