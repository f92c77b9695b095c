package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/inferpay/inferpay/internal/application/session/ledger"
	"github.com/inferpay/inferpay/internal/application/session/signer"
	"github.com/inferpay/inferpay/internal/domain/grant"
	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/grantstore"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/shared/biztime"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type OpenSessionCommand struct {
	ClientID     string
	HostAddress  string
	Model        string
	PaymentToken string
}

type OpenSessionResult struct {
	Session *session.Session
}

// SessionSettings carries the open-time pricing and duration parameters.
type SessionSettings struct {
	DepositAmount       int64
	PricePerToken       int64
	CheckpointInterval  int64
	Duration            time.Duration
	MaxTokensPerMessage int64
	HostShareBps        int64
	ChainID             uint64
}

// OpenSessionUseCase locks a deposit in escrow and activates a session. The
// spend grant is authorized through the signer first, so the escrow can pull
// the deposit without a second wallet prompt.
type OpenSessionUseCase struct {
	sessionRepo   session.SessionRepository
	ledger        ledger.Ledger
	signer        signer.Signer
	grantBuilder  *grant.Builder
	grantStore    *grantstore.Store
	limiter       ratelimit.Limiter
	recoveryStore *recovery.Store
	recorder      *analytics.Recorder
	logger        logger.Interface
	settings      SessionSettings
	retry         RetryPolicy
}

func NewOpenSessionUseCase(
	sessionRepo session.SessionRepository,
	ldg ledger.Ledger,
	sgn signer.Signer,
	grantBuilder *grant.Builder,
	grantStore *grantstore.Store,
	limiter ratelimit.Limiter,
	recoveryStore *recovery.Store,
	recorder *analytics.Recorder,
	logger logger.Interface,
	settings SessionSettings,
	retry RetryPolicy,
) *OpenSessionUseCase {
	return &OpenSessionUseCase{
		sessionRepo:   sessionRepo,
		ledger:        ldg,
		signer:        sgn,
		grantBuilder:  grantBuilder,
		grantStore:    grantStore,
		limiter:       limiter,
		recoveryStore: recoveryStore,
		recorder:      recorder,
		logger:        logger,
		settings:      settings,
		retry:         retry,
	}
}

func (uc *OpenSessionUseCase) Execute(ctx context.Context, cmd OpenSessionCommand) (*OpenSessionResult, error) {
	limit, err := uc.limiter.Check(ctx, cmd.ClientID, ratelimit.KindSessionStart)
	if err != nil {
		uc.logger.Errorw("rate limit check failed", "error", err, "client_id", cmd.ClientID)
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !limit.Allowed {
		return nil, apperrors.NewRateLimitedError("session start limit reached", limit.ResetAt)
	}

	existing, err := uc.sessionRepo.GetActiveByClientID(ctx, cmd.ClientID)
	if err != nil {
		uc.logger.Errorw("failed to check active session", "error", err, "client_id", cmd.ClientID)
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil {
		return nil, apperrors.NewConflictError("client already has an active session",
			fmt.Sprintf("session %d is %s", existing.ID(), existing.State()))
	}

	token := vo.PaymentToken(cmd.PaymentToken)
	sess, err := session.NewSession(
		cmd.ClientID,
		cmd.HostAddress,
		cmd.Model,
		token,
		uc.settings.PricePerToken,
		uc.settings.DepositAmount,
		uc.settings.Duration,
	)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid session parameters", err.Error())
	}

	// Nothing persists until the escrow open confirms. A declined wallet or
	// an unreachable ledger leaves only an analytics event behind.
	if err := uc.authorizeAndOpen(ctx, sess); err != nil {
		uc.recorder.RecordEvent(analytics.FromSessionFailed(session.NewSessionFailedEvent(sess, err.Error())))
		return nil, err
	}

	if err := uc.sessionRepo.Create(ctx, sess); err != nil {
		uc.logger.Errorw("failed to create session", "error", err, "client_id", cmd.ClientID)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := uc.recoveryStore.Save(ctx, recovery.SnapshotFromSession(sess)); err != nil {
		uc.logger.Warnw("failed to save recovery snapshot", "error", err, "session_id", sess.ID())
	}
	uc.recorder.RecordEvent(analytics.FromSessionOpened(session.NewSessionOpenedEvent(sess)))

	uc.logger.Infow("session opened",
		"session_id", sess.ID(),
		"ledger_session_id", sess.LedgerSessionID(),
		"client_id", sess.ClientID(),
		"host", sess.HostAddress(),
		"deposit", session.FormatUnits(sess.DepositAmount()),
	)
	return &OpenSessionResult{Session: sess}, nil
}

// authorizeAndOpen walks the wallet and ledger steps: grant authorization
// when no standing grant covers the deposit, then escrow open with bounded
// retries. Counters stay untouched on failure.
func (uc *OpenSessionUseCase) authorizeAndOpen(ctx context.Context, sess *session.Session) error {
	owner, err := uc.signer.Address(ctx)
	if err != nil {
		return apperrors.NewAuthorizationDeniedError("wallet unavailable", err.Error())
	}
	if err := uc.signer.SwitchNetwork(ctx, uc.settings.ChainID); err != nil {
		return apperrors.NewAuthorizationDeniedError("network switch rejected", err.Error())
	}

	if err := uc.ensureGrant(ctx, owner, sess); err != nil {
		return err
	}

	var ledgerSessionID uint64
	err = retryWithBackoff(ctx, uc.retry, func() error {
		id, _, openErr := uc.ledger.OpenSession(ctx, ledger.OpenParams{
			ClientAddress: owner,
			HostAddress:   sess.HostAddress(),
			Token:         sess.PaymentToken(),
			DepositAmount: sess.DepositAmount(),
			PricePerToken: sess.PricePerToken(),
			ExpiresAt:     sess.ExpiresAt(),
		})
		if openErr != nil {
			return openErr
		}
		ledgerSessionID = id
		return nil
	})
	if err != nil {
		uc.logger.Errorw("ledger open failed", "error", err, "client_id", sess.ClientID())
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.NewLedgerTimeoutError("escrow open did not confirm", err.Error())
	}

	return sess.Activate(ledgerSessionID)
}

// ensureGrant reuses the stored standing grant when it still covers the
// deposit, prompting the wallet only for the first session of a token/host
// relationship or once the grant expires or runs short.
func (uc *OpenSessionUseCase) ensureGrant(ctx context.Context, owner string, sess *session.Session) error {
	stored, err := uc.grantStore.Load(ctx, owner, sess.HostAddress(), sess.PaymentToken())
	if err != nil {
		uc.logger.Warnw("failed to load stored grant", "error", err, "owner", owner)
	}
	if stored != nil && stored.Covers(sess.PaymentToken(), sess.DepositAmount(), biztime.NowUTC()) {
		uc.logger.Debugw("reusing standing grant",
			"owner", owner, "host", sess.HostAddress(), "valid_until", stored.ValidUntil)
		return nil
	}

	g, err := uc.grantBuilder.BuildGrant(owner, sess.HostAddress(), sess.PaymentToken(), sess.DepositAmount())
	if err != nil {
		return apperrors.NewValidationError("failed to build spend grant", err.Error())
	}
	if err := uc.signer.AuthorizeGrant(ctx, uc.grantBuilder.BuildAuthorizationRequest(g)); err != nil {
		uc.logger.Warnw("spend grant rejected", "client_id", sess.ClientID(), "error", err)
		return apperrors.NewAuthorizationDeniedError("spend grant rejected", err.Error())
	}
	if err := uc.grantStore.Save(ctx, g); err != nil {
		uc.logger.Warnw("failed to store authorized grant", "error", err, "owner", owner)
	}
	return nil
}
