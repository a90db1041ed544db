package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yrclabs/treasury/internal/services"
)

// maxTransferAmount caps single deposits and withdrawals, matching the
// per-request limit the signer enforces.
var maxTransferAmount = decimal.NewFromInt(1_000_000)

// TreasuryHandler exposes the ledger's deposit, withdraw, claim and
// read operations over HTTP. Authentication happens upstream; the
// account id arrives in the request context.
type TreasuryHandler struct {
	ledger    *services.LedgerService
	validator *services.ValidationHelper
}

func NewTreasuryHandler(ledger *services.LedgerService) *TreasuryHandler {
	return &TreasuryHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

// Deposit credits a caller-asserted on-chain deposit, deduplicated by
// transaction hash.
func (h *TreasuryHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	// Amounts decode as decimal.Decimal straight from the JSON number
	// so high-precision values are never rounded through a float.
	var req struct {
		TransactionHash string          `json:"transactionHash" validate:"required,eth_txhash"`
		Amount          decimal.Decimal `json:"amount"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[TREASURY] Deposit validation failed: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount.Sign() <= 0 || req.Amount.GreaterThan(maxTransferAmount) {
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	result, err := h.ledger.Deposit(r.Context(), accountID, req.TransactionHash, req.Amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"newBalance": result.NewBalance,
		"message":    "Successfully deposited " + req.Amount.String() + " YRC tokens. Transaction hash: " + req.TransactionHash,
	})
}

// Withdraw debits the custodial balance and sends tokens to the
// caller's wallet.
func (h *TreasuryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount        decimal.Decimal `json:"amount"`
		WalletAddress string          `json:"walletAddress" validate:"required,eth_addr"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		log.Printf("[TREASURY] Withdraw validation failed: %v", err)
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount.Sign() <= 0 || req.Amount.GreaterThan(maxTransferAmount) {
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		return
	}

	result, err := h.ledger.Withdraw(r.Context(), accountID, req.Amount, req.WalletAddress)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":         true,
		"newBalance":      result.NewBalance,
		"transactionHash": result.TransferID,
		"message":         "Successfully withdrew " + req.Amount.String() + " YRC tokens",
	})
}

// ClaimReward awards the mining reward if the cooldown has elapsed.
func (h *TreasuryHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	result, err := h.ledger.ClaimReward(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"amount":       result.Amount,
		"totalClaimed": result.TotalClaimed,
		"newBalance":   result.NewBalance,
		"nextClaimAt":  result.NextEligibleAt,
	})
}

// GetBalance returns the account's current custodial balance.
func (h *TreasuryHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"balance":   balance.Balance,
		"updatedAt": balance.UpdatedAt,
	})
}

// ListTransactions returns the account's transaction log, newest first.
func (h *TreasuryHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil {
			limit = val
		}
	}

	transactions, err := h.ledger.History(r.Context(), accountID, limit)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// MiningStatus reports claim eligibility and the remaining cooldown so
// the client can render a countdown without polling the claim endpoint.
func (h *TreasuryHandler) MiningStatus(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status, err := h.ledger.MiningStatus(r.Context(), accountID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"rewardAmount":     status.RewardAmount,
		"totalClaimed":     status.TotalClaimed,
		"lastClaimAt":      status.LastClaimAt,
		"nextClaimAt":      status.NextEligibleAt,
		"remainingSeconds": status.RemainingSeconds,
	})
}

// writeLedgerError maps the ledger error taxonomy onto HTTP responses.
// ReconciliationRequired intentionally surfaces as a generic failure;
// the details live in the reconciliation log, not the client response.
func (h *TreasuryHandler) writeLedgerError(w http.ResponseWriter, err error) {
	var cooldown *services.CooldownError
	switch {
	case errors.As(err, &cooldown):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":            "Cooldown active",
			"remainingSeconds": int64(cooldown.Remaining.Seconds()),
			"nextClaimAt":      cooldown.NextEligibleAt,
		})
	case errors.Is(err, services.ErrInvalidAmount):
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrDuplicateTransaction):
		services.SendErrorResponse(w, "Transaction already processed", http.StatusConflict, nil)
	case errors.Is(err, services.ErrInsufficientBalance):
		services.SendErrorResponse(w, "Insufficient balance", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrTransferFailed):
		services.SendErrorResponse(w, "Transfer failed, please try again", http.StatusBadGateway, nil)
	case errors.Is(err, services.ErrReconciliationRequired):
		services.SendErrorResponse(w, "Withdrawal could not be completed", http.StatusInternalServerError, nil)
	default:
		log.Printf("[TREASURY] Storage failure: %v", err)
		services.SendErrorResponse(w, "Service unavailable", http.StatusServiceUnavailable, nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[TREASURY] Decode error: %v", err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
