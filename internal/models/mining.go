package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MiningReward tracks one account's reward-claim state. A missing row
// means the account has never claimed and is immediately eligible.
type MiningReward struct {
	AccountID   string          `json:"account_id" db:"account_id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"` // last awarded amount
	TotalMined  decimal.Decimal `json:"total_mined" db:"total_mined"`
	LastClaimAt time.Time       `json:"last_claim_at" db:"last_claim_at"`
}

// MiningConfig is the admin-owned mining configuration, read fresh on
// every claim attempt.
type MiningConfig struct {
	RewardAmount  decimal.Decimal `json:"daily_reward_amount" db:"daily_reward_amount"`
	CooldownHours int             `json:"cooldown_hours" db:"cooldown_hours"`
	TotalSupply   decimal.Decimal `json:"total_supply" db:"total_supply"`
}
