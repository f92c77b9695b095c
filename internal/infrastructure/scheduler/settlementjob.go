package scheduler

import (
	"context"

	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// SettlementJob retries on-chain settlement for sessions that failed to
// settle, using the metered totals retained at failure time.
type SettlementJob struct {
	sessionRepo session.SessionRepository
	endSession  SessionEnder
	logger      logger.Interface
}

func NewSettlementJob(
	sessionRepo session.SessionRepository,
	endSession SessionEnder,
	log logger.Interface,
) *SettlementJob {
	return &SettlementJob{
		sessionRepo: sessionRepo,
		endSession:  endSession,
		logger:      log,
	}
}

func (j *SettlementJob) Execute(ctx context.Context) (int, error) {
	pending, err := j.sessionRepo.ListFailedWithRetainedSnapshots(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sess := range pending {
		result, err := j.endSession.RetrySettlement(ctx, sess)
		if err != nil {
			j.logger.Warnw("settlement retry failed",
				"session_id", sess.ID(), "error", err)
			continue
		}
		j.logger.Infow("settlement retry succeeded",
			"session_id", sess.ID(),
			"host_amount", result.Settlement.HostAmount,
			"treasury_amount", result.Settlement.TreasuryAmount)
		processed++
	}
	return processed, nil
}
