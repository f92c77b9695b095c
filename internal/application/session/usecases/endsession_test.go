package usecases

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/ledger"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

func TestEndSessionUseCase_Execute(t *testing.T) {
	t.Run("settles with the fixed split", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.reply = &hosttransport.PromptResponse{Content: "hi", Tokens: 150}
		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)

		res, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID(), Reason: "client requested"})
		require.NoError(t, err)

		assert.Equal(t, vo.StateSettled, res.Session.State())
		require.NotNil(t, res.Settlement)
		// 47400 split 90/10
		assert.Equal(t, int64(42_660), res.Settlement.HostAmount)
		assert.Equal(t, int64(4_740), res.Settlement.TreasuryAmount)
		assert.Equal(t, res.Session.TotalCost(), res.Settlement.HostAmount+res.Settlement.TreasuryAmount)

		// snapshot cleared, summary recorded
		snap, err := e.recStore.Load(t.Context(), "0xclient")
		require.NoError(t, err)
		assert.Nil(t, snap)
		require.Len(t, e.recorder.Summaries(), 1)
		assert.Equal(t, int64(47_400), e.recorder.Summaries()[0].TotalCost)

		// the full lifecycle shows up in the event feed
		events := e.recorder.Events()
		require.Len(t, events, 3)
		assert.Equal(t, "session_opened", events[0].Type)
		assert.Equal(t, "message_completed", events[1].Type)
		assert.Equal(t, "session_settled", events[2].Type)
		assert.Equal(t, int64(47_400), events[2].Cost)
	})

	t.Run("ending twice is a no-op", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)

		first, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.NoError(t, err)
		second, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.NoError(t, err)

		assert.Equal(t, 1, e.ledger.settleCalls)
		assert.Equal(t, first.Settlement, second.Settlement)
	})

	t.Run("settlement retry exhaustion fails the session and keeps the snapshot", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.ledger.settleErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		}

		_, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.True(t, apperrors.IsLedgerTimeoutError(err))
		assert.Equal(t, vo.StateFailed, sess.State())

		snap, loadErr := e.recStore.Load(t.Context(), "0xclient")
		require.NoError(t, loadErr)
		assert.NotNil(t, snap, "snapshot retained for the retry scheduler")

		events := e.recorder.Events()
		require.NotEmpty(t, events)
		assert.Equal(t, "session_failed", events[len(events)-1].Type)
	})

	t.Run("unknown session", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: 999})
		assert.Error(t, err)
	})

	t.Run("lost final checkpoint does not block settlement", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.ledger.checkpointErrs = []error{
			errors.New("down"), errors.New("down"), errors.New("down"),
		}

		res, err := e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.NoError(t, err)
		assert.Equal(t, vo.StateSettled, res.Session.State())
	})
}

func TestEndSessionUseCase_RetrySettlement(t *testing.T) {
	t.Run("retries a failed settlement to completion", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.reply = &hosttransport.PromptResponse{Content: "hi", Tokens: 150}
		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)

		e.ledger.settleErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		}
		_, err = e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.Error(t, err)
		require.Equal(t, vo.StateFailed, sess.State())

		res, err := e.end.RetrySettlement(t.Context(), sess)
		require.NoError(t, err)
		assert.Equal(t, vo.StateSettled, res.Session.State())
		assert.Equal(t, int64(42_660), res.Settlement.HostAmount)
	})

	t.Run("already settled on ledger records the split locally", func(t *testing.T) {
		e := newTestEnv(t)
		sess := e.openActiveSession(t)
		e.transport.reply = &hosttransport.PromptResponse{Content: "hi", Tokens: 150}
		_, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
		})
		require.NoError(t, err)

		e.ledger.settleErrs = []error{
			errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
		}
		_, err = e.end.Execute(t.Context(), EndSessionCommand{SessionID: sess.ID()})
		require.Error(t, err)

		// the settlement actually landed on chain despite the lost receipts
		e.ledger.status = &ledger.SessionStatus{SessionID: sess.LedgerSessionID(), Settled: true}

		settleCallsBefore := e.ledger.settleCalls
		res, err := e.end.RetrySettlement(t.Context(), sess)
		require.NoError(t, err)
		assert.Equal(t, vo.StateSettled, res.Session.State())
		assert.Equal(t, settleCallsBefore, e.ledger.settleCalls, "no duplicate settle call")
	})
}
