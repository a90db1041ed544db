package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type depositRequest struct {
	TransactionHash string  `validate:"required,eth_txhash"`
	Amount          float64 `validate:"required,gt=0,lte=1000000"`
}

type withdrawRequest struct {
	Amount        float64 `validate:"required,gt=0"`
	WalletAddress string  `validate:"required,eth_addr"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid deposit request", func(t *testing.T) {
		valid := depositRequest{
			TransactionHash: "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd",
			Amount:          100,
		}

		err := vh.ValidateStruct(&valid)
		assert.NoError(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		err := vh.ValidateStruct(&depositRequest{})
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 2)
	})

	t.Run("malformed transaction hash", func(t *testing.T) {
		cases := []string{
			"4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd", // missing 0x
			"0x4e3a37",        // too short
			"0xZZZa3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd", // non-hex
		}
		for _, hash := range cases {
			err := vh.ValidateStruct(&depositRequest{TransactionHash: hash, Amount: 10})
			assert.Error(t, err, "hash %q should be rejected", hash)
		}
	})

	t.Run("amount above maximum", func(t *testing.T) {
		err := vh.ValidateStruct(&depositRequest{
			TransactionHash: "0x4e3a3754410177e6937ef1f84bba68ea139e8d1a2258c5f85db9f1cd715a1bdd",
			Amount:          2000000,
		})
		assert.Error(t, err)
	})

	t.Run("wallet address validation", func(t *testing.T) {
		assert.NoError(t, vh.ValidateStruct(&withdrawRequest{
			Amount:        10,
			WalletAddress: "0x71C7656EC7ab88b098defB751B7401B5f6d8976F",
		}))
		assert.Error(t, vh.ValidateStruct(&withdrawRequest{
			Amount:        10,
			WalletAddress: "0x71C7656",
		}))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Insufficient balance", 400, nil)

		assert.Equal(t, 400, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Insufficient balance", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validation error includes field details", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&depositRequest{Amount: -1})
		assert.Error(t, err)

		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Validation failed", 400, err)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Validation failed", resp.Error)
		assert.NotEmpty(t, resp.Details)
	})
}
