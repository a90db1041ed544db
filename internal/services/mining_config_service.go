package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yrclabs/treasury/internal/models"
)

// MiningConfigService reads and updates the admin-owned mining
// configuration. Claims read it fresh on every attempt, so admin
// updates take effect immediately without restarts.
type MiningConfigService struct {
	db *sql.DB
}

func NewMiningConfigService(db *sql.DB) *MiningConfigService {
	return &MiningConfigService{db: db}
}

func (s *MiningConfigService) Read(ctx context.Context) (*models.MiningConfig, error) {
	var cfg models.MiningConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT daily_reward_amount, cooldown_hours, total_supply FROM mining_config WHERE id = 1`).
		Scan(&cfg.RewardAmount, &cfg.CooldownHours, &cfg.TotalSupply)
	if err != nil {
		return nil, fmt.Errorf("read mining config: %w", err)
	}
	return &cfg, nil
}

func (s *MiningConfigService) Update(ctx context.Context, cfg *models.MiningConfig) error {
	if cfg.RewardAmount.Sign() <= 0 {
		return fmt.Errorf("%w: reward amount must be positive", ErrInvalidAmount)
	}
	if cfg.CooldownHours <= 0 {
		return fmt.Errorf("cooldown must be positive")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE mining_config SET daily_reward_amount = $1, cooldown_hours = $2, total_supply = $3 WHERE id = 1`,
		cfg.RewardAmount, cfg.CooldownHours, cfg.TotalSupply)
	if err != nil {
		return fmt.Errorf("update mining config: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		return fmt.Errorf("mining config row missing")
	}
	return nil
}
