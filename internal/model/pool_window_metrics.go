package model

// PoolWindowMetrics stores aggregated metrics for a pool block window.
// Net amounts are signed: positive when the pool's reserve grew.
type PoolWindowMetrics struct {
	ChainID     uint64 `json:"chain_id"`
	PoolAddress string `json:"pool_address"`
	WindowSize  uint64 `json:"window_size_blocks"`
	WindowStart uint64 `json:"window_start_block"`
	WindowEnd   uint64 `json:"window_end_block"`
	SwapCount   uint64 `json:"swap_count"`
	MintCount   uint64 `json:"mint_count"`
	BurnCount   uint64 `json:"burn_count"`
	VolumeA     string `json:"volume_a"`
	VolumeB     string `json:"volume_b"`
	FeeShares   string `json:"fee_shares"`
	NetA        string `json:"net_a"`
	NetB        string `json:"net_b"`
}
