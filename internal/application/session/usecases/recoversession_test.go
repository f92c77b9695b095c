package usecases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/ledger"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

// interruptedSession opens a session and meters one exchange, leaving a
// snapshot behind as if the client process then died.
func interruptedSession(t *testing.T, e *testEnv) uint {
	t.Helper()
	sess := e.openActiveSession(t)
	e.transport.reply = &hosttransport.PromptResponse{Content: "hi", Tokens: 150}
	_, err := e.send.Execute(t.Context(), SendMessageCommand{
		SessionID: sess.ID(), ClientID: "0xclient", Prompt: "hello",
	})
	require.NoError(t, err)
	return sess.ID()
}

func TestRecoverSessionUseCase_Peek(t *testing.T) {
	e := newTestEnv(t)

	snap, err := e.recover.Peek(t.Context(), "0xclient")
	require.NoError(t, err)
	assert.Nil(t, snap)

	id := interruptedSession(t, e)

	snap, err = e.recover.Peek(t.Context(), "0xclient")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, id, snap.SessionID)
	assert.Equal(t, int64(150), snap.TotalTokens)
}

func TestRecoverSessionUseCase_Execute(t *testing.T) {
	t.Run("accept resumes with counters intact", func(t *testing.T) {
		e := newTestEnv(t)
		id := interruptedSession(t, e)

		res, err := e.recover.Execute(t.Context(), RecoverSessionCommand{ClientID: "0xclient", Accept: true})
		require.NoError(t, err)

		assert.True(t, res.Resumed)
		assert.Equal(t, id, res.Session.ID())
		assert.Equal(t, vo.StateActive, res.Session.State())
		assert.Equal(t, int64(150), res.Session.TotalTokens())
		assert.Equal(t, int64(47_400), res.Session.TotalCost())

		// resumed session keeps serving messages
		e.transport.reply = &hosttransport.PromptResponse{Content: "more", Tokens: 50}
		sent, err := e.send.Execute(t.Context(), SendMessageCommand{
			SessionID: id, ClientID: "0xclient", Prompt: "continue",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(200), sent.Session.TotalTokens())
	})

	t.Run("decline settles at metered usage", func(t *testing.T) {
		e := newTestEnv(t)
		id := interruptedSession(t, e)

		res, err := e.recover.Execute(t.Context(), RecoverSessionCommand{ClientID: "0xclient", Accept: false})
		require.NoError(t, err)
		assert.False(t, res.Resumed)

		sess, err := e.repo.GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, vo.StateSettled, sess.State())
		require.NotNil(t, sess.Settlement())
		assert.Equal(t, int64(42_660), sess.Settlement().HostAmount)

		snap, err := e.recStore.Load(t.Context(), "0xclient")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("no snapshot", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.recover.Execute(t.Context(), RecoverSessionCommand{ClientID: "0xclient", Accept: true})
		assert.True(t, apperrors.IsNotFoundError(err))
	})

	t.Run("ledger reports session closed", func(t *testing.T) {
		e := newTestEnv(t)
		id := interruptedSession(t, e)
		e.ledger.status = &ledger.SessionStatus{SessionID: 0, Active: false, Settled: false}

		res, err := e.recover.Execute(t.Context(), RecoverSessionCommand{ClientID: "0xclient", Accept: true})
		require.NoError(t, err)
		assert.False(t, res.Resumed)

		sess, err := e.repo.GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, vo.StateFailed, sess.State())

		snap, err := e.recStore.Load(t.Context(), "0xclient")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("ledger reports session settled", func(t *testing.T) {
		e := newTestEnv(t)
		id := interruptedSession(t, e)
		e.ledger.status = &ledger.SessionStatus{SessionID: 0, Active: false, Settled: true}

		res, err := e.recover.Execute(t.Context(), RecoverSessionCommand{ClientID: "0xclient", Accept: true})
		require.NoError(t, err)
		assert.False(t, res.Resumed)

		sess, err := e.repo.GetByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, vo.StateSettled, sess.State())
	})
}
