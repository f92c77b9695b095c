package usecases

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/domain/grant"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

func TestOpenSessionUseCase_Execute(t *testing.T) {
	t.Run("opens and activates a session", func(t *testing.T) {
		e := newTestEnv(t)

		sess := e.openActiveSession(t)

		assert.Equal(t, vo.StateActive, sess.State())
		assert.NotZero(t, sess.LedgerSessionID())
		assert.Equal(t, int64(2_000_000), sess.DepositAmount())
		assert.Equal(t, int64(316), sess.PricePerToken())

		// grant covers the deposit with a 50% buffer
		require.Len(t, e.signer.grants, 1)
		assert.Equal(t, int64(3_000_000), e.signer.grants[0].Allowance)

		// snapshot saved for crash recovery
		snap, err := e.recStore.Load(t.Context(), "0xclient")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, sess.ID(), snap.SessionID)
	})

	t.Run("rejects a second active session", func(t *testing.T) {
		e := newTestEnv(t)
		e.openActiveSession(t)

		_, err := e.open.Execute(t.Context(), OpenSessionCommand{
			ClientID:     "0xclient",
			HostAddress:  "0xother",
			Model:        "llama-3-70b",
			PaymentToken: "usds",
		})
		assert.True(t, apperrors.IsConflictError(err))
	})

	t.Run("rate limited", func(t *testing.T) {
		e := newTestEnv(t)
		e.limiter.deny[ratelimit.KindSessionStart] = true
		e.limiter.resetAt = time.Now().Add(time.Hour)

		_, err := e.open.Execute(t.Context(), OpenSessionCommand{
			ClientID:     "0xclient",
			HostAddress:  "0xhost",
			Model:        "llama-3-70b",
			PaymentToken: "usds",
		})
		require.True(t, apperrors.IsRateLimitedError(err))
		assert.False(t, apperrors.GetAppError(err).RetryAfter.IsZero())
	})

	t.Run("signer rejection persists nothing beyond the event", func(t *testing.T) {
		e := newTestEnv(t)
		e.signer.authErr = errors.New("user rejected")

		_, err := e.open.Execute(t.Context(), OpenSessionCommand{
			ClientID:     "0xclient",
			HostAddress:  "0xhost",
			Model:        "llama-3-70b",
			PaymentToken: "usds",
		})
		require.True(t, apperrors.IsAuthorizationDeniedError(err))
		assert.Zero(t, e.ledger.openCalls, "ledger must not be touched after rejection")

		sessions, listErr := e.repo.ListByClientID(t.Context(), "0xclient")
		require.NoError(t, listErr)
		assert.Empty(t, sessions)

		events := e.recorder.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "session_failed", events[0].Type)
	})

	t.Run("ledger open retries then succeeds", func(t *testing.T) {
		e := newTestEnv(t)
		e.ledger.openErrs = []error{
			apperrors.NewHostUnavailableError("rpc hiccup"),
			apperrors.NewHostUnavailableError("rpc hiccup"),
		}

		sess := e.openActiveSession(t)

		assert.Equal(t, vo.StateActive, sess.State())
		assert.Equal(t, 3, e.ledger.openCalls)
	})

	t.Run("ledger open exhaustion persists nothing", func(t *testing.T) {
		e := newTestEnv(t)
		e.ledger.openErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		}

		_, err := e.open.Execute(t.Context(), OpenSessionCommand{
			ClientID:     "0xclient",
			HostAddress:  "0xhost",
			Model:        "llama-3-70b",
			PaymentToken: "usds",
		})
		require.True(t, apperrors.IsLedgerTimeoutError(err))

		sessions, listErr := e.repo.ListByClientID(t.Context(), "0xclient")
		require.NoError(t, listErr)
		assert.Empty(t, sessions)
	})

	t.Run("standing grant is reused across sessions", func(t *testing.T) {
		e := newTestEnv(t)

		first := e.openActiveSession(t)
		_, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: first.ID()})
		require.NoError(t, err)

		second := e.openActiveSession(t)
		assert.Equal(t, vo.StateActive, second.State())
		assert.Len(t, e.signer.grants, 1, "second open must reuse the standing grant")
	})

	t.Run("expired grant is reauthorized", func(t *testing.T) {
		e := newTestEnv(t)

		stale := &grant.SpendGrant{
			Owner:      "0xclient",
			Delegate:   "0xhost",
			Token:      vo.TokenUSDS,
			Allowance:  3_000_000,
			ValidFrom:  time.Now().Add(-48 * time.Hour),
			ValidUntil: time.Now().Add(-24 * time.Hour),
		}
		require.NoError(t, e.grants.Save(t.Context(), stale))

		e.openActiveSession(t)
		require.Len(t, e.signer.grants, 1, "expired grant must trigger a fresh prompt")

		refreshed, err := e.grants.Load(t.Context(), "0xclient", "0xhost", vo.TokenUSDS)
		require.NoError(t, err)
		require.NotNil(t, refreshed)
		assert.True(t, refreshed.ValidUntil.After(time.Now()))
	})

	t.Run("undersized grant is reauthorized", func(t *testing.T) {
		e := newTestEnv(t)

		small := &grant.SpendGrant{
			Owner:      "0xclient",
			Delegate:   "0xhost",
			Token:      vo.TokenUSDS,
			Allowance:  1_000,
			ValidFrom:  time.Now().Add(-time.Hour),
			ValidUntil: time.Now().Add(24 * time.Hour),
		}
		require.NoError(t, e.grants.Save(t.Context(), small))

		e.openActiveSession(t)
		assert.Len(t, e.signer.grants, 1, "undersized grant must trigger a fresh prompt")
	})

	t.Run("invalid payment token", func(t *testing.T) {
		e := newTestEnv(t)

		_, err := e.open.Execute(t.Context(), OpenSessionCommand{
			ClientID:     "0xclient",
			HostAddress:  "0xhost",
			Model:        "llama-3-70b",
			PaymentToken: "doge",
		})
		assert.True(t, apperrors.IsValidationError(err))
	})
}
