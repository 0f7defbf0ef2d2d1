package model

import "github.com/ethereum/go-ethereum/common"

// Event names emitted by ledgers, the pool and the chef.
const (
	EventTransfer          = "Transfer"
	EventApproval          = "Approval"
	EventMint              = "Mint"
	EventBurn              = "Burn"
	EventSwap              = "Swap"
	EventDeposit           = "Deposit"
	EventWithdraw          = "Withdraw"
	EventClaim             = "Claim"
	EventEmergencyWithdraw = "EmergencyWithdraw"
	EventRewardRateUpdated = "RewardRateUpdated"
)

// Event is an emitted notification before it is encoded as a log.
type Event struct {
	Address common.Address
	Name    string
	Data    interface{}
}

// TransferEventData is the decoded Transfer event payload.
type TransferEventData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

// ApprovalEventData is the decoded Approval event payload.
type ApprovalEventData struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
}

// MintEventData is the decoded pool Mint (add liquidity) payload.
type MintEventData struct {
	Sender  string `json:"sender"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
	Shares  string `json:"shares"`
}

// BurnEventData is the decoded pool Burn (remove liquidity) payload.
type BurnEventData struct {
	Sender  string `json:"sender"`
	AmountA string `json:"amount_a"`
	AmountB string `json:"amount_b"`
	Shares  string `json:"shares"`
}

// SwapEventData is the decoded pool Swap payload.
type SwapEventData struct {
	Sender    string `json:"sender"`
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	FeeShares string `json:"fee_shares"`
}

// StakeEventData is the payload shared by Deposit, Withdraw, Claim and EmergencyWithdraw.
type StakeEventData struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

// RewardRateEventData is the decoded RewardRateUpdated payload.
type RewardRateEventData struct {
	OldRate string `json:"old_rate"`
	NewRate string `json:"new_rate"`
}
