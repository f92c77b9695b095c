package usecases

import (
	"context"
	"fmt"

	"github.com/inferpay/inferpay/internal/application/session/ledger"
	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type EndSessionCommand struct {
	SessionID uint
	Reason    string
}

type EndSessionResult struct {
	Session    *session.Session
	Settlement *session.Settlement
}

// EndSessionUseCase drives a session through Ending to Settled. Ending an
// already-ended session is a no-op returning the recorded settlement. When
// settlement retries exhaust, the session is marked Failed and its recovery
// snapshot is retained for the settlement retry scheduler.
type EndSessionUseCase struct {
	sessionRepo   session.SessionRepository
	ledger        ledger.Ledger
	splitPolicy   session.SplitPolicy
	recoveryStore *recovery.Store
	recorder      *analytics.Recorder
	logger        logger.Interface
	retry         RetryPolicy
}

func NewEndSessionUseCase(
	sessionRepo session.SessionRepository,
	ldg ledger.Ledger,
	splitPolicy session.SplitPolicy,
	recoveryStore *recovery.Store,
	recorder *analytics.Recorder,
	logger logger.Interface,
	retry RetryPolicy,
) *EndSessionUseCase {
	return &EndSessionUseCase{
		sessionRepo:   sessionRepo,
		ledger:        ldg,
		splitPolicy:   splitPolicy,
		recoveryStore: recoveryStore,
		recorder:      recorder,
		logger:        logger,
		retry:         retry,
	}
}

func (uc *EndSessionUseCase) Execute(ctx context.Context, cmd EndSessionCommand) (*EndSessionResult, error) {
	sess, err := uc.sessionRepo.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, apperrors.NewNotFoundError("session not found", fmt.Sprintf("session %d", cmd.SessionID))
	}

	if sess.State().IsTerminal() {
		return &EndSessionResult{Session: sess, Settlement: sess.Settlement()}, nil
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "client requested"
	}
	if err := sess.BeginEnding(reason); err != nil {
		return nil, apperrors.NewConflictError("session cannot end", err.Error())
	}
	if err := uc.sessionRepo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist ending state: %w", err)
	}

	return uc.settle(ctx, sess)
}

// settle submits the final checkpoint and the settlement with bounded
// retries. A session already in Ending, such as one picked up by the retry
// scheduler, may call this directly.
func (uc *EndSessionUseCase) settle(ctx context.Context, sess *session.Session) (*EndSessionResult, error) {
	finalCP := ledger.Checkpoint{
		SessionID:   sess.LedgerSessionID(),
		TotalTokens: sess.TotalTokens(),
		TotalCost:   sess.TotalCost(),
	}
	err := retryWithBackoff(ctx, uc.retry, func() error {
		_, cpErr := uc.ledger.SubmitCheckpoint(ctx, finalCP)
		return cpErr
	})
	if err != nil {
		// The settlement call attests the final totals itself, so a lost
		// final checkpoint is tolerable.
		uc.logger.Warnw("final checkpoint failed", "error", err, "session_id", sess.ID())
	}

	err = retryWithBackoff(ctx, uc.retry, func() error {
		_, settleErr := uc.ledger.Settle(ctx, sess.LedgerSessionID(), sess.TotalCost())
		return settleErr
	})
	if err != nil {
		uc.logger.Errorw("settlement failed, retaining snapshot",
			"error", err, "session_id", sess.ID(), "ledger_session_id", sess.LedgerSessionID())
		if failErr := sess.MarkFailed("settlement failed: " + err.Error()); failErr != nil {
			return nil, failErr
		}
		if updErr := uc.sessionRepo.Update(ctx, sess); updErr != nil {
			return nil, fmt.Errorf("failed to persist failed session: %w", updErr)
		}
		uc.recorder.RecordEvent(analytics.FromSessionFailed(
			session.NewSessionFailedEvent(sess, "settlement failed")))
		return nil, apperrors.NewLedgerTimeoutError("settlement did not confirm", err.Error())
	}

	hostAmount, treasuryAmount, err := uc.splitPolicy.Split(sess.TotalCost())
	if err != nil {
		return nil, apperrors.NewInvariantViolationError("settlement split failed", err.Error())
	}
	if err := sess.MarkSettled(hostAmount, treasuryAmount); err != nil {
		return nil, apperrors.NewInvariantViolationError("failed to record settlement", err.Error())
	}
	if err := uc.sessionRepo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist settled session: %w", err)
	}

	if err := uc.recoveryStore.Clear(ctx, sess.ClientID()); err != nil {
		uc.logger.Warnw("failed to clear recovery snapshot", "error", err, "client_id", sess.ClientID())
	}

	endReason := ""
	if r := sess.EndReason(); r != nil {
		endReason = *r
	}
	uc.recorder.RecordEvent(analytics.FromSessionSettled(session.NewSessionSettledEvent(sess)))
	uc.recorder.RecordSummary(ctx, analytics.Summary{
		SessionID:   sess.ID(),
		ClientID:    sess.ClientID(),
		Model:       sess.Model(),
		Messages:    len(sess.Messages()),
		TotalTokens: sess.TotalTokens(),
		TotalCost:   sess.TotalCost(),
		HostAmount:  hostAmount,
		EndReason:   endReason,
		OpenedAt:    sess.OpenedAt(),
	})

	uc.logger.Infow("session settled",
		"session_id", sess.ID(),
		"total_tokens", sess.TotalTokens(),
		"total_cost", session.FormatUnits(sess.TotalCost()),
		"host_amount", session.FormatUnits(hostAmount),
		"treasury_amount", session.FormatUnits(treasuryAmount),
		"reason", endReason,
	)
	return &EndSessionResult{Session: sess, Settlement: sess.Settlement()}, nil
}

// RetrySettlement re-runs settlement for a Failed session whose snapshot was
// retained. Used by the settlement scheduler.
func (uc *EndSessionUseCase) RetrySettlement(ctx context.Context, sess *session.Session) (*EndSessionResult, error) {
	if sess.State().IsTerminal() && sess.Settlement() != nil {
		return &EndSessionResult{Session: sess, Settlement: sess.Settlement()}, nil
	}

	status, err := uc.ledger.SessionStatus(ctx, sess.LedgerSessionID())
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger status: %w", err)
	}
	if status.Settled {
		// Settled on chain during a previous attempt; record the split.
		hostAmount, treasuryAmount, splitErr := uc.splitPolicy.Split(sess.TotalCost())
		if splitErr != nil {
			return nil, splitErr
		}
		rehydrated, recErr := uc.reviveForSettlement(sess)
		if recErr != nil {
			return nil, recErr
		}
		if err := rehydrated.MarkSettled(hostAmount, treasuryAmount); err != nil {
			return nil, err
		}
		if err := uc.sessionRepo.Update(ctx, rehydrated); err != nil {
			return nil, fmt.Errorf("failed to persist settled session: %w", err)
		}
		if err := uc.recoveryStore.Clear(ctx, rehydrated.ClientID()); err != nil {
			uc.logger.Warnw("failed to clear recovery snapshot", "error", err, "client_id", rehydrated.ClientID())
		}
		return &EndSessionResult{Session: rehydrated, Settlement: rehydrated.Settlement()}, nil
	}

	rehydrated, err := uc.reviveForSettlement(sess)
	if err != nil {
		return nil, err
	}
	if err := uc.sessionRepo.Update(ctx, rehydrated); err != nil {
		return nil, fmt.Errorf("failed to persist retried session: %w", err)
	}
	return uc.settle(ctx, rehydrated)
}

// reviveForSettlement rebuilds a Failed session in Ending state so the
// settlement path can run again with its original reason.
func (uc *EndSessionUseCase) reviveForSettlement(sess *session.Session) (*session.Session, error) {
	reason := "settlement retry"
	if r := sess.EndReason(); r != nil {
		reason = *r
	}
	return session.ReconstructSession(session.SessionReconstructParams{
		ID:                 sess.ID(),
		LedgerSessionID:    sess.LedgerSessionID(),
		ClientID:           sess.ClientID(),
		HostAddress:        sess.HostAddress(),
		Model:              sess.Model(),
		PaymentToken:       sess.PaymentToken(),
		PricePerToken:      sess.PricePerToken(),
		DepositAmount:      sess.DepositAmount(),
		TotalTokens:        sess.TotalTokens(),
		TotalCost:          sess.TotalCost(),
		CheckpointsEmitted: sess.CheckpointsEmitted(),
		State:              vo.StateEnding,
		EndReason:          &reason,
		Messages:           sess.Messages(),
		OpenedAt:           sess.OpenedAt(),
		ExpiresAt:          sess.ExpiresAt(),
		Version:            sess.Version(),
		CreatedAt:          sess.CreatedAt(),
		UpdatedAt:          sess.UpdatedAt(),
	})
}
