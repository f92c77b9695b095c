package ledgerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/ledger"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// ====== HTTPLedger Tests ======

func TestHTTPLedger_OpenSession(t *testing.T) {
	t.Run("posts token as its wire string and parses the receipt", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/sessions", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(receiptPayload{
				SessionID:   42,
				TxHash:      "0xabc",
				BlockNumber: 1000,
				ConfirmedAt: 1700000000,
			})
		}))
		defer srv.Close()

		client := NewHTTPLedger(srv.URL, time.Second, logger.Nop())
		expires := time.Now().Add(time.Hour)
		id, receipt, err := client.OpenSession(context.Background(), ledger.OpenParams{
			ClientAddress: "0x1111111111111111111111111111111111111111",
			HostAddress:   "0x2222222222222222222222222222222222222222",
			Token:         vo.TokenUSDS,
			DepositAmount: 2_000_000,
			PricePerToken: 316,
			ExpiresAt:     expires,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(42), id)
		assert.Equal(t, "0xabc", receipt.TxHash)
		assert.Equal(t, uint64(1000), receipt.BlockNumber)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), receipt.ConfirmedAt)

		assert.Equal(t, "usds", got["token"])
		assert.Equal(t, float64(2_000_000), got["deposit_amount"])
		assert.Equal(t, float64(316), got["price_per_token"])
		assert.Equal(t, float64(expires.Unix()), got["expires_at"])
	})

	t.Run("relay rejection maps to ledger timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "deposit below minimum", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := NewHTTPLedger(srv.URL, time.Second, logger.Nop())
		_, _, err := client.OpenSession(context.Background(), ledger.OpenParams{
			Token:     vo.TokenUSDS,
			ExpiresAt: time.Now(),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsLedgerTimeoutError(err))
	})

	t.Run("unreachable relay maps to ledger timeout", func(t *testing.T) {
		client := NewHTTPLedger("http://127.0.0.1:1", 100*time.Millisecond, logger.Nop())
		_, _, err := client.OpenSession(context.Background(), ledger.OpenParams{
			Token:     vo.TokenUSDS,
			ExpiresAt: time.Now(),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsLedgerTimeoutError(err))
	})
}

func TestHTTPLedger_SubmitCheckpoint(t *testing.T) {
	var got checkpointPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sessions/42/checkpoints", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(receiptPayload{TxHash: "0xcp", ConfirmedAt: 1700000100})
	}))
	defer srv.Close()

	client := NewHTTPLedger(srv.URL, time.Second, logger.Nop())
	receipt, err := client.SubmitCheckpoint(context.Background(), ledger.Checkpoint{
		SessionID:   42,
		TotalTokens: 500,
		TotalCost:   158_000,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xcp", receipt.TxHash)
	assert.Equal(t, uint64(42), got.SessionID)
	assert.Equal(t, int64(500), got.TotalTokens)
	assert.Equal(t, int64(158_000), got.TotalCost)
}

func TestHTTPLedger_SessionStatus(t *testing.T) {
	t.Run("parses contract view", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/v1/sessions/42", r.URL.Path)
			json.NewEncoder(w).Encode(statusPayload{
				SessionID:     42,
				Active:        true,
				DepositAmount: 2_000_000,
				SpentAmount:   158_000,
				HostAddress:   "0x2222222222222222222222222222222222222222",
			})
		}))
		defer srv.Close()

		client := NewHTTPLedger(srv.URL, time.Second, logger.Nop())
		status, err := client.SessionStatus(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, status.Active)
		assert.False(t, status.Settled)
		assert.Equal(t, int64(158_000), status.SpentAmount)
	})

	t.Run("unknown session maps to not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		client := NewHTTPLedger(srv.URL, time.Second, logger.Nop())
		_, err := client.SessionStatus(context.Background(), 99)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFoundError(err))
	})
}
