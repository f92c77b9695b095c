package scheduler

import (
	"context"

	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// SessionEnder is the slice of the end-session use case the maintenance
// jobs need.
type SessionEnder interface {
	Execute(ctx context.Context, cmd usecases.EndSessionCommand) (*usecases.EndSessionResult, error)
	RetrySettlement(ctx context.Context, sess *session.Session) (*usecases.EndSessionResult, error)
}

// SessionCanceller aborts a session's in-flight coordinator operation.
type SessionCanceller interface {
	Cancel(sessionID uint)
}

// ExpiryJob ends Active sessions whose duration elapsed without the client
// closing them. The session is settled at its metered usage. Any exchange
// still in flight is cancelled first so the end does not queue behind it.
type ExpiryJob struct {
	sessionRepo session.SessionRepository
	endSession  SessionEnder
	canceller   SessionCanceller
	logger      logger.Interface
}

func NewExpiryJob(
	sessionRepo session.SessionRepository,
	endSession SessionEnder,
	canceller SessionCanceller,
	log logger.Interface,
) *ExpiryJob {
	return &ExpiryJob{
		sessionRepo: sessionRepo,
		endSession:  endSession,
		canceller:   canceller,
		logger:      log,
	}
}

func (j *ExpiryJob) Execute(ctx context.Context) (int, error) {
	expired, err := j.sessionRepo.ListExpiredActive(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sess := range expired {
		if j.canceller != nil {
			j.canceller.Cancel(sess.ID())
		}
		_, err := j.endSession.Execute(ctx, usecases.EndSessionCommand{
			SessionID: sess.ID(),
			Reason:    "session expired",
		})
		if err != nil {
			// Settlement failures mark the session Failed with a retained
			// snapshot; the settlement job picks those up later.
			j.logger.Warnw("failed to end expired session",
				"session_id", sess.ID(), "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}
