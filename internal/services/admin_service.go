package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/yrclabs/treasury/internal/chain"
	"github.com/yrclabs/treasury/internal/models"
)

const (
	miningStatsCacheKey = "admin:mining_stats"
	miningStatsCacheTTL = 30 * time.Second
)

// maxMintAmount caps a single manual mint.
var maxMintAmount = decimal.NewFromInt(100_000)

// AdminService exposes the mining configuration editor, aggregate
// mining stats and the token mint operation. All routes sit behind the
// admin role middleware.
type AdminService struct {
	db        *sql.DB
	redis     *redis.Client
	gateway   chain.Gateway
	config    *MiningConfigService
	validator *ValidationHelper
}

// MiningStats aggregates claim activity across all accounts.
type MiningStats struct {
	TotalMiners int             `json:"totalMiners"`
	TotalMined  decimal.Decimal `json:"totalMined"`
}

func NewAdminService(db *sql.DB, redisClient *redis.Client, gateway chain.Gateway) *AdminService {
	return &AdminService{
		db:        db,
		redis:     redisClient,
		gateway:   gateway,
		config:    NewMiningConfigService(db),
		validator: NewValidationHelper(),
	}
}

// GetConfig returns the current mining configuration.
func (s *AdminService) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.config.Read(r.Context())
	if err != nil {
		log.Printf("[ADMIN] Failed to read mining config: %v", err)
		SendErrorResponse(w, "Failed to read config", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// UpdateConfig replaces the mining configuration. Takes effect on the
// next claim attempt; in-flight claims may read either version.
func (s *AdminService) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	// Decimal fields decode straight from the JSON number; range
	// checks happen below where float tags cannot apply.
	var req struct {
		RewardAmount  decimal.Decimal `json:"daily_reward_amount"`
		CooldownHours int             `json:"cooldown_hours" validate:"required,gt=0"`
		TotalSupply   decimal.Decimal `json:"total_supply"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.TotalSupply.Sign() < 0 {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	cfg := &models.MiningConfig{
		RewardAmount:  req.RewardAmount,
		CooldownHours: req.CooldownHours,
		TotalSupply:   req.TotalSupply,
	}
	if err := s.config.Update(r.Context(), cfg); err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[ADMIN] Failed to update mining config: %v", err)
		SendErrorResponse(w, "Failed to update config", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ADMIN] Mining config updated: reward=%s cooldown=%dh supply=%s",
		cfg.RewardAmount, cfg.CooldownHours, cfg.TotalSupply)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "config": cfg})
}

// GetStats returns miner count and total mined tokens, cached briefly
// in Redis since the aggregate scan is comparatively expensive.
func (s *AdminService) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, miningStatsCacheKey).Result(); err == nil {
			var stats MiningStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(stats)
				return
			}
		}
	}

	var stats MiningStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_mined), 0) FROM mining_rewards`).
		Scan(&stats.TotalMiners, &stats.TotalMined)
	if err != nil {
		log.Printf("[ADMIN] Failed to aggregate mining stats: %v", err)
		SendErrorResponse(w, "Failed to fetch stats", http.StatusInternalServerError, nil)
		return
	}

	if s.redis != nil {
		if encoded, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, miningStatsCacheKey, encoded, miningStatsCacheTTL).Err(); err != nil {
				log.Printf("[ADMIN] Failed to cache mining stats: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// MintTokens mints tokens directly to a wallet address via the chain
// gateway. Used by the admin treasury page to seed supply.
func (s *AdminService) MintTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WalletAddress string          `json:"walletAddress" validate:"required,eth_addr"`
		Amount        decimal.Decimal `json:"amount"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount.Sign() <= 0 || req.Amount.GreaterThan(maxMintAmount) {
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	txHash, err := s.gateway.Mint(r.Context(), req.WalletAddress, req.Amount)
	if err != nil {
		log.Printf("[ADMIN] Mint failed: to=%s amount=%s err=%v", req.WalletAddress, req.Amount, err)
		SendErrorResponse(w, "Mint failed", http.StatusBadGateway, nil)
		return
	}

	log.Printf("[ADMIN] Minted %s tokens to %s: tx=%s", req.Amount, req.WalletAddress, txHash)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"txHash":  txHash,
		"message": "Minted " + req.Amount.String() + " YRC tokens",
	})
}
