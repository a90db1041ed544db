package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yrclabs/treasury/internal/chain"
	"github.com/yrclabs/treasury/internal/models"
)

// LedgerService maintains custodial balances, the append-only
// transaction log, deposit deduplication and the mining reward
// cooldown. All compound read-check-mutate sequences run inside a
// single database transaction with row-level locks scoped to one
// account, so operations on different accounts never contend.
type LedgerService struct {
	db      *sql.DB
	gateway chain.Gateway
	config  *MiningConfigService
	now     func() time.Time
}

func NewLedgerService(db *sql.DB, gateway chain.Gateway) *LedgerService {
	return &LedgerService{
		db:      db,
		gateway: gateway,
		config:  NewMiningConfigService(db),
		now:     time.Now,
	}
}

type DepositResult struct {
	NewBalance decimal.Decimal
}

type WithdrawResult struct {
	NewBalance decimal.Decimal
	TransferID string
}

type ClaimResult struct {
	Amount         decimal.Decimal
	TotalClaimed   decimal.Decimal
	NewBalance     decimal.Decimal
	NextEligibleAt time.Time
}

// Deposit credits amount to the account, at most once per external
// transaction hash. Recording the hash, crediting the balance and
// appending the log entry commit as one unit.
func (s *LedgerService) Deposit(ctx context.Context, accountID, transactionHash string, amount decimal.Decimal) (*DepositResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin deposit: %w", err)
	}
	defer tx.Rollback()

	// Insert first so a concurrent replay of the same hash blocks on
	// the unique index instead of racing a separate existence check.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO processed_transactions (transaction_hash, account_id, amount, transaction_type, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (transaction_hash) DO NOTHING`,
		transactionHash, accountID, amount, models.TransactionTypeDeposit, s.now())
	if err != nil {
		return nil, fmt.Errorf("record external reference: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		log.Printf("[LEDGER] Duplicate deposit rejected: account=%s hash=%s", accountID, transactionHash)
		return nil, ErrDuplicateTransaction
	}

	newBalance, err := s.creditBalance(ctx, tx, accountID, amount)
	if err != nil {
		return nil, err
	}

	if err := s.appendEntry(ctx, tx, accountID, models.TransactionTypeDeposit, amount, newBalance); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deposit: %w", err)
	}

	log.Printf("[LEDGER] Deposit applied: account=%s hash=%s amount=%s balance=%s",
		accountID, transactionHash, amount, newBalance)
	return &DepositResult{NewBalance: newBalance}, nil
}

// Withdraw debits the balance and sends tokens to the destination
// address. The on-chain transfer is submitted before the internal
// debit: a gateway failure leaves the ledger untouched and is safe to
// retry, while a failure after the gateway confirmed is escalated as
// a reconciliation event and must not be retried blindly.
func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, destination string) (*WithdrawResult, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin withdrawal: %w", err)
	}
	defer tx.Rollback()

	// The row lock serializes check and debit per account. It stays
	// held across the gateway call, which blocks only this account's
	// own operations.
	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM balances WHERE account_id = $1 FOR UPDATE`,
		accountID).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	if balance.LessThan(amount) {
		return nil, ErrInsufficientBalance
	}

	transferID, err := s.gateway.Transfer(ctx, destination, amount)
	if err != nil {
		log.Printf("[LEDGER] Transfer failed: account=%s amount=%s dest=%s err=%v",
			accountID, amount, destination, err)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	newBalance := balance.Sub(amount)
	if err := s.debitBalance(ctx, tx, accountID, newBalance); err != nil {
		return nil, s.escalateReconciliation(accountID, transferID, amount, err)
	}
	if err := s.appendEntry(ctx, tx, accountID, models.TransactionTypeWithdraw, amount, newBalance); err != nil {
		return nil, s.escalateReconciliation(accountID, transferID, amount, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, s.escalateReconciliation(accountID, transferID, amount, err)
	}

	log.Printf("[LEDGER] Withdrawal applied: account=%s amount=%s transfer=%s balance=%s",
		accountID, amount, transferID, newBalance)
	return &WithdrawResult{NewBalance: newBalance, TransferID: transferID}, nil
}

// ClaimReward awards the configured mining reward if the account's
// cooldown has elapsed. The first claim of an account is always
// eligible. Configuration is read fresh on every attempt.
func (s *LedgerService) ClaimReward(ctx context.Context, accountID string) (*ClaimResult, error) {
	cfg, err := s.config.Read(ctx)
	if err != nil {
		return nil, err
	}
	cooldown := time.Duration(cfg.CooldownHours) * time.Hour

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	const lockRecord = `
		SELECT last_claim_at, total_mined FROM mining_rewards WHERE account_id = $1 FOR UPDATE`

	var lastClaimAt time.Time
	var total decimal.Decimal
	firstClaim := false
	err = tx.QueryRowContext(ctx, lockRecord, accountID).Scan(&lastClaimAt, &total)
	if err == sql.ErrNoRows {
		// FOR UPDATE locks nothing when the row is absent, so two
		// first claims can both race past the select. The conflict
		// guard lets exactly one insert through; the loser re-locks
		// the winner's committed row and takes the cooldown path.
		res, insErr := tx.ExecContext(ctx, `
			INSERT INTO mining_rewards (account_id, amount, total_mined, last_claim_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id) DO NOTHING`,
			accountID, cfg.RewardAmount, cfg.RewardAmount, now)
		if insErr != nil {
			return nil, fmt.Errorf("create mining record: %w", insErr)
		}
		inserted, insErr := res.RowsAffected()
		if insErr != nil {
			return nil, insErr
		}
		if inserted == 1 {
			firstClaim = true
			total = cfg.RewardAmount
		} else if err = tx.QueryRowContext(ctx, lockRecord, accountID).Scan(&lastClaimAt, &total); err != nil {
			return nil, fmt.Errorf("lock mining record: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("lock mining record: %w", err)
	}

	if !firstClaim {
		nextEligibleAt := lastClaimAt.Add(cooldown)
		if now.Before(nextEligibleAt) {
			return nil, &CooldownError{
				Remaining:      nextEligibleAt.Sub(now),
				NextEligibleAt: nextEligibleAt,
			}
		}
		total = total.Add(cfg.RewardAmount)
		_, err = tx.ExecContext(ctx, `
			UPDATE mining_rewards SET amount = $1, total_mined = $2, last_claim_at = $3 WHERE account_id = $4`,
			cfg.RewardAmount, total, now, accountID)
		if err != nil {
			return nil, fmt.Errorf("update mining record: %w", err)
		}
	}

	newBalance, err := s.creditBalance(ctx, tx, accountID, cfg.RewardAmount)
	if err != nil {
		return nil, err
	}
	if err := s.appendEntry(ctx, tx, accountID, models.TransactionTypeReward, cfg.RewardAmount, newBalance); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	log.Printf("[LEDGER] Reward claimed: account=%s amount=%s total=%s", accountID, cfg.RewardAmount, total)
	return &ClaimResult{
		Amount:         cfg.RewardAmount,
		TotalClaimed:   total,
		NewBalance:     newBalance,
		NextEligibleAt: now.Add(cooldown),
	}, nil
}

// Balance returns the account's current balance. Accounts that have
// never been credited read as zero.
func (s *LedgerService) Balance(ctx context.Context, accountID string) (*models.Balance, error) {
	b := &models.Balance{AccountID: accountID, Balance: decimal.Zero}
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, updated_at FROM balances WHERE account_id = $1`,
		accountID).Scan(&b.Balance, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	return b, nil
}

// History returns the account's transaction log, newest first.
func (s *LedgerService) History(ctx context.Context, accountID string, limit int) ([]models.TreasuryTransaction, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, transaction_type, amount, balance_after, created_at
		FROM treasury_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.TreasuryTransaction{}
	for rows.Next() {
		var t models.TreasuryTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// MiningStatus reports the account's current claim state so the
// client can render a countdown without polling the claim endpoint.
func (s *LedgerService) MiningStatus(ctx context.Context, accountID string) (*MiningStatusResult, error) {
	cfg, err := s.config.Read(ctx)
	if err != nil {
		return nil, err
	}
	cooldown := time.Duration(cfg.CooldownHours) * time.Hour

	status := &MiningStatusResult{
		RewardAmount: cfg.RewardAmount,
		TotalClaimed: decimal.Zero,
	}

	record := models.MiningReward{AccountID: accountID}
	err = s.db.QueryRowContext(ctx, `
		SELECT last_claim_at, total_mined FROM mining_rewards WHERE account_id = $1`,
		accountID).Scan(&record.LastClaimAt, &record.TotalMined)
	if err == sql.ErrNoRows {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch mining record: %w", err)
	}

	status.TotalClaimed = record.TotalMined
	status.LastClaimAt = &record.LastClaimAt
	nextEligibleAt := record.LastClaimAt.Add(cooldown)
	status.NextEligibleAt = &nextEligibleAt
	if remaining := nextEligibleAt.Sub(s.now()); remaining > 0 {
		status.RemainingSeconds = int64(remaining.Seconds())
	}
	return status, nil
}

type MiningStatusResult struct {
	RewardAmount     decimal.Decimal
	TotalClaimed     decimal.Decimal
	LastClaimAt      *time.Time
	NextEligibleAt   *time.Time
	RemainingSeconds int64
}

func (s *LedgerService) creditBalance(ctx context.Context, tx *sql.Tx, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		INSERT INTO balances (account_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING balance`,
		accountID, amount, s.now()).Scan(&balance)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("credit balance: %w", err)
	}
	return balance, nil
}

func (s *LedgerService) debitBalance(ctx context.Context, tx *sql.Tx, accountID string, newBalance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE balances SET balance = $1, updated_at = $2 WHERE account_id = $3`,
		newBalance, s.now(), accountID)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	return nil
}

func (s *LedgerService) appendEntry(ctx context.Context, tx *sql.Tx, accountID, entryType string, amount, balanceAfter decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO treasury_transactions (account_id, transaction_type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		accountID, entryType, amount, balanceAfter, s.now())
	if err != nil {
		return fmt.Errorf("append transaction log: %w", err)
	}
	return nil
}

// escalateReconciliation records a confirmed on-chain transfer whose
// ledger debit did not commit. The event is written outside the failed
// transaction; if even that fails the log line is the last resort.
func (s *LedgerService) escalateReconciliation(accountID, transferID string, amount decimal.Decimal, cause error) error {
	log.Printf("[RECONCILE] On-chain transfer %s for account %s (amount %s) has no ledger debit: %v",
		transferID, accountID, amount, cause)
	if _, err := s.db.Exec(`
		INSERT INTO reconciliation_events (account_id, transfer_id, amount, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		accountID, transferID, amount, cause.Error(), s.now()); err != nil {
		log.Printf("[RECONCILE] Failed to record reconciliation event: %v", err)
	}
	return fmt.Errorf("%w: transfer %s", ErrReconciliationRequired, transferID)
}
