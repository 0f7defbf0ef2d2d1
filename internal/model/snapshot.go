package model

// TokenMeta describes a ledger token. Address is the token's checksummed hex address.
type TokenMeta struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// TokenSnapshot is the serialisable state of an in-memory ledger.
type TokenSnapshot struct {
	Meta        TokenMeta                    `json:"meta"`
	TotalSupply string                       `json:"total_supply"`
	Balances    map[string]string            `json:"balances"`
	Allowances  map[string]map[string]string `json:"allowances,omitempty"`
}

// PoolSnapshot is the serialisable state of a liquidity pool.
type PoolSnapshot struct {
	Address  string        `json:"address"`
	AssetA   string        `json:"asset_a"`
	AssetB   string        `json:"asset_b"`
	ReserveA string        `json:"reserve_a"`
	ReserveB string        `json:"reserve_b"`
	K        string        `json:"k"`
	Shares   TokenSnapshot `json:"shares"`
}

// PositionSnapshot is the serialisable state of one stake position.
type PositionSnapshot struct {
	Staked     string `json:"staked"`
	RewardDebt string `json:"reward_debt"`
}

// ChefSnapshot is the serialisable state of a reward engine.
type ChefSnapshot struct {
	Address           string                      `json:"address"`
	Owner             string                      `json:"owner"`
	StakedToken       string                      `json:"staked_token"`
	RewardToken       string                      `json:"reward_token"`
	RewardPerBlock    string                      `json:"reward_per_block"`
	AccRewardPerShare string                      `json:"acc_reward_per_share"`
	LastRewardBlock   uint64                      `json:"last_reward_block"`
	TotalStaked       string                      `json:"total_staked"`
	Positions         map[string]PositionSnapshot `json:"positions"`
}
