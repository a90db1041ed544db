package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
	TransactionTypeReward   = "reward"
)

// Balance is the custodial token balance held for one account.
type Balance struct {
	AccountID string          `json:"account_id" db:"account_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// TreasuryTransaction is one immutable entry in the per-account
// transaction log. Every balance mutation appends exactly one entry
// carrying the balance after the mutation.
type TreasuryTransaction struct {
	ID           int             `json:"id" db:"id"`
	AccountID    string          `json:"account_id" db:"account_id"`
	Type         string          `json:"transaction_type" db:"transaction_type"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// ProcessedTransaction records an external transaction hash that has
// already been consumed by a deposit. Unique on the hash across all
// accounts; rows are never updated or deleted.
type ProcessedTransaction struct {
	TransactionHash string          `json:"transaction_hash" db:"transaction_hash"`
	AccountID       string          `json:"account_id" db:"account_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Type            string          `json:"transaction_type" db:"transaction_type"`
	ProcessedAt     time.Time       `json:"processed_at" db:"processed_at"`
}
