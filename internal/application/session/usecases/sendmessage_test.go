package usecases

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

func TestSendMessageUseCase_Execute(t *testing.T) {
	t.Run("meters a completed exchange", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.reply = &hosttransport.PromptResponse{Content: "hi there", Tokens: 150}

		res, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(),
			ClientID:  "0xclient",
			Prompt:    "hello",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Reply)

		// 150 tokens at 316 units/token
		assert.Equal(t, int64(47_400), res.Reply.Cost)
		assert.Equal(t, int64(150), sess.TotalTokens())
		assert.Equal(t, int64(47_400), sess.TotalCost())
		require.Len(t, sess.Messages(), 2)
		assert.Equal(t, session.RoleUser, sess.Messages()[0].Role)
		assert.Equal(t, session.RoleAssistant, sess.Messages()[1].Role)

		// 150 tokens crossed the 100-token checkpoint once
		require.Len(t, e.ledger.checkpoints, 1)
		assert.Equal(t, int64(150), e.ledger.checkpoints[0].TotalTokens)
		assert.Equal(t, int64(47_400), e.ledger.checkpoints[0].TotalCost)
	})

	t.Run("no checkpoint below the interval", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.reply = &hosttransport.PromptResponse{Content: "ok", Tokens: 40}

		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)
		assert.Empty(t, e.ledger.checkpoints)

		// second exchange pushes the total over the boundary
		e.transport.reply = &hosttransport.PromptResponse{Content: "ok", Tokens: 70}
		_, err = e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "again",
		})
		require.NoError(t, err)
		require.Len(t, e.ledger.checkpoints, 1)
		assert.Equal(t, int64(110), e.ledger.checkpoints[0].TotalTokens)
	})

	t.Run("host failure leaves counters untouched", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.replyErr = errors.New("connection refused")

		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.True(t, apperrors.IsHostUnavailableError(err))
		assert.True(t, apperrors.IsRetryable(err))
		assert.Equal(t, vo.StateActive, sess.State())
		assert.Zero(t, sess.TotalTokens())
		assert.Empty(t, sess.Messages())
	})

	t.Run("rate limited before touching the session", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.limiter.deny[ratelimit.KindMessage] = true

		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.True(t, apperrors.IsRateLimitedError(err))
		assert.Empty(t, e.transport.requests)
	})

	t.Run("wrong client is rejected", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)

		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xeve", Prompt: "hello",
		})
		assert.True(t, apperrors.IsAuthorizationDeniedError(err))
	})

	t.Run("deposit safety margin pre-empts the exchange", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)

		// Spend until less than a worst-case message (1000 tokens = 316000
		// units) remains: 5922 tokens costs 1871352, leaving 128648.
		e.transport.reply = &hosttransport.PromptResponse{Content: "long", Tokens: 5922}
		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)

		res, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "one more",
		})
		require.NoError(t, err)
		assert.True(t, res.Ended)
		assert.Equal(t, "deposit exhausted", res.EndReason)
		assert.Equal(t, vo.StateSettled, sess.State())

		// the pre-empted prompt never reached the host
		assert.Len(t, e.transport.requests, 1)
	})

	t.Run("host overrun ends the session", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)

		// 7000 tokens would cost 2212000, more than the whole deposit
		e.transport.reply = &hosttransport.PromptResponse{Content: "runaway", Tokens: 7000}
		res, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)
		assert.True(t, res.Ended)
		assert.Equal(t, vo.StateSettled, sess.State())
		assert.Zero(t, sess.TotalTokens(), "unbillable usage is not recorded")
	})

	t.Run("streamed reply bills the final count", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.chunks = []hosttransport.Chunk{
			{Content: "hel", Tokens: 1},
			{Content: "lo", Tokens: 2, Final: true},
		}
		e.transport.reply = &hosttransport.PromptResponse{Content: "hello", Tokens: 2}

		var got []string
		res, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(),
			ClientID:  "0xclient",
			Prompt:    "hi",
			OnChunk:   func(c hosttransport.Chunk) { got = append(got, c.Content) },
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"hel", "lo"}, got)
		assert.Equal(t, int64(2*316), res.Reply.Cost)
	})

	t.Run("ended session rejects messages", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		_, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.NoError(t, err)

		_, err = e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		assert.True(t, apperrors.IsConflictError(err))
	})
}
