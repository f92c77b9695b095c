package usecases

import (
	"context"
	"fmt"

	"github.com/inferpay/inferpay/internal/application/session/ledger"
	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type RecoverSessionCommand struct {
	ClientID string
	// Accept resumes the interrupted session; false settles and discards it.
	Accept bool
}

type RecoverSessionResult struct {
	Session *session.Session
	// Resumed is set when the session returned to Active. When false the
	// session was closed, either by decline or because the ledger no longer
	// considers it open.
	Resumed bool
	Reason  string
}

// RecoverSessionUseCase restores an interrupted session from its snapshot.
// The snapshot alone is not trusted: the ledger is consulted first, and a
// session the contract reports closed or unknown is settled or discarded
// rather than resumed.
type RecoverSessionUseCase struct {
	sessionRepo   session.SessionRepository
	ledger        ledger.Ledger
	recoveryStore *recovery.Store
	endSession    *EndSessionUseCase
	logger        logger.Interface
}

func NewRecoverSessionUseCase(
	sessionRepo session.SessionRepository,
	ldg ledger.Ledger,
	recoveryStore *recovery.Store,
	endSession *EndSessionUseCase,
	logger logger.Interface,
) *RecoverSessionUseCase {
	return &RecoverSessionUseCase{
		sessionRepo:   sessionRepo,
		ledger:        ldg,
		recoveryStore: recoveryStore,
		endSession:    endSession,
		logger:        logger,
	}
}

// Peek returns the client's recoverable snapshot without acting on it, or
// nil when there is nothing to recover.
func (uc *RecoverSessionUseCase) Peek(ctx context.Context, clientID string) (*recovery.Snapshot, error) {
	return uc.recoveryStore.Load(ctx, clientID)
}

func (uc *RecoverSessionUseCase) Execute(ctx context.Context, cmd RecoverSessionCommand) (*RecoverSessionResult, error) {
	snap, err := uc.recoveryStore.Load(ctx, cmd.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil, apperrors.NewNotFoundError("no recoverable session", "client "+cmd.ClientID)
	}

	sess, err := uc.sessionRepo.GetByID(ctx, snap.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !cmd.Accept {
		return uc.decline(ctx, sess)
	}

	status, err := uc.ledger.SessionStatus(ctx, sess.LedgerSessionID())
	if err != nil {
		uc.logger.Errorw("ledger status check failed", "error", err, "session_id", sess.ID())
		return nil, apperrors.NewLedgerTimeoutError("could not verify session on ledger", err.Error())
	}

	if status == nil || !status.Active {
		// The contract closed or never knew this session; the snapshot is a
		// stale promise. Close out locally instead of resuming.
		uc.logger.Warnw("snapshot disagrees with ledger, discarding",
			"session_id", sess.ID(), "ledger_session_id", sess.LedgerSessionID())
		return uc.reconcileClosed(ctx, sess, status)
	}

	if sess.State() == vo.StateActive {
		uc.logger.Infow("session recovered",
			"session_id", sess.ID(), "client_id", sess.ClientID(), "total_tokens", sess.TotalTokens())
		return &RecoverSessionResult{Session: sess, Resumed: true}, nil
	}
	return nil, apperrors.NewConflictError("session is not recoverable",
		fmt.Sprintf("session %d is %s", sess.ID(), sess.State()))
}

// decline settles the interrupted session at its metered usage and clears
// the snapshot.
func (uc *RecoverSessionUseCase) decline(ctx context.Context, sess *session.Session) (*RecoverSessionResult, error) {
	reason := "recovery declined"
	if !sess.State().IsTerminal() {
		if _, err := uc.endSession.Execute(ctx, EndSessionCommand{SessionID: sess.ID(), Reason: reason}); err != nil {
			return nil, err
		}
	}
	if err := uc.recoveryStore.Clear(ctx, sess.ClientID()); err != nil {
		uc.logger.Warnw("failed to clear recovery snapshot", "error", err, "client_id", sess.ClientID())
	}
	return &RecoverSessionResult{Session: sess, Resumed: false, Reason: reason}, nil
}

// reconcileClosed aligns local state with a ledger that no longer has the
// session open.
func (uc *RecoverSessionUseCase) reconcileClosed(ctx context.Context, sess *session.Session, status *ledger.SessionStatus) (*RecoverSessionResult, error) {
	reason := "session closed on ledger"
	if !sess.State().IsTerminal() {
		if status != nil && status.Settled {
			if _, err := uc.endSession.RetrySettlement(ctx, sess); err != nil {
				return nil, err
			}
		} else if err := sess.MarkFailed(reason); err == nil {
			if updErr := uc.sessionRepo.Update(ctx, sess); updErr != nil {
				return nil, fmt.Errorf("failed to persist reconciled session: %w", updErr)
			}
		}
	}
	if err := uc.recoveryStore.Clear(ctx, sess.ClientID()); err != nil {
		uc.logger.Warnw("failed to clear recovery snapshot", "error", err, "client_id", sess.ClientID())
	}
	return &RecoverSessionResult{Session: sess, Resumed: false, Reason: reason}, nil
}
