package scheduler

import (
	"context"

	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// SweepJob reaps expired in-memory rate-limit windows so long-lived
// processes don't accumulate state for one-off identifiers.
type SweepJob struct {
	limiter *ratelimit.FixedWindowLimiter
	logger  logger.Interface
}

func NewSweepJob(limiter *ratelimit.FixedWindowLimiter, log logger.Interface) *SweepJob {
	return &SweepJob{
		limiter: limiter,
		logger:  log,
	}
}

func (j *SweepJob) Execute(_ context.Context) (int, error) {
	swept := j.limiter.Sweep()
	if swept > 0 {
		j.logger.Debugw("rate limit windows swept", "count", swept)
	}
	return swept, nil
}
