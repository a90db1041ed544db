package services

import (
	"errors"
	"fmt"
	"time"
)

// Ledger error taxonomy. Every member except ErrReconciliationRequired
// guarantees that no state was changed by the failed operation.
var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrCooldownActive       = errors.New("cooldown active")
	ErrTransferFailed       = errors.New("transfer failed")

	// ErrReconciliationRequired means tokens left custody on-chain but
	// the matching ledger debit did not commit. Not safe to retry.
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// CooldownError reports how long until the account may claim again.
type CooldownError struct {
	Remaining      time.Duration
	NextEligibleAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: %s remaining", e.Remaining)
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }
