package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/persistence/models"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

// ====== SessionRepository Tests ======

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SessionModel{}))
	return db
}

func newPersistedSession(t *testing.T, repo *SessionRepository) *session.Session {
	t.Helper()
	sess, err := session.NewSession("0xclient", "0xhost", "llama-3-70b", vo.TokenUSDS, 316, 2_000_000, time.Hour)
	require.NoError(t, err)
	require.NoError(t, sess.Activate(100))
	require.NoError(t, repo.Create(context.Background(), sess))
	return sess
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	sess := newPersistedSession(t, repo)
	require.NotZero(t, sess.ID())

	loaded, err := repo.GetByID(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Equal(t, sess.ClientID(), loaded.ClientID())
	assert.Equal(t, vo.StateActive, loaded.State())
	assert.Equal(t, uint64(100), loaded.LedgerSessionID())
}

func TestSessionRepository_Update(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	sess := newPersistedSession(t, repo)
	_, err := sess.RecordUsage(150, 47_400, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, sess))

	loaded, err := repo.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(150), loaded.TotalTokens())
	assert.Equal(t, int64(47_400), loaded.TotalCost())
}

func TestSessionRepository_Update_StaleWriterLoses(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	sess := newPersistedSession(t, repo)

	// Two copies of the same session, as when a maintenance job and a
	// request handler load it independently.
	first, err := repo.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, sess.ID())
	require.NoError(t, err)

	_, err = first.RecordUsage(100, 31_600, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, first))

	_, err = second.RecordUsage(50, 15_800, 100)
	require.NoError(t, err)
	err = repo.Update(ctx, second)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))

	// The first writer's totals stand.
	loaded, err := repo.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(100), loaded.TotalTokens())
}

func TestSessionRepository_Update_SequentialWritesAdvanceVersion(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	sess := newPersistedSession(t, repo)

	_, err := sess.RecordUsage(100, 31_600, 100)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, sess))

	// A second update through the same instance succeeds because the
	// first one synced its stored version.
	require.NoError(t, sess.BeginEnding("client requested"))
	require.NoError(t, repo.Update(ctx, sess))

	loaded, err := repo.GetByID(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StateEnding, loaded.State())
}

func TestSessionRepository_GetActiveByClientID(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	sess := newPersistedSession(t, repo)

	active, err := repo.GetActiveByClientID(ctx, "0xclient")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, sess.ID(), active.ID())

	none, err := repo.GetActiveByClientID(ctx, "0xother")
	require.NoError(t, err)
	assert.Nil(t, none)
}
