package usecases

import (
	"context"
	"fmt"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/ledger"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/shared/biztime"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/id"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type SendMessageCommand struct {
	SessionID uint
	ClientID  string
	Prompt    string
	// HostEndpoint is where the session's host accepts inference calls.
	HostEndpoint string
	// OnChunk, when set, streams the reply incrementally. Billing still uses
	// the final host-reported token count.
	OnChunk func(hosttransport.Chunk)
}

type SendMessageResult struct {
	Session *session.Session
	Reply   *session.Message
	// Ended is set when the session was closed instead of serving the
	// message, either by expiry or by the deposit safety margin.
	Ended     bool
	EndReason string
}

// SendMessageUseCase runs one metered exchange: rate limit, budget guard,
// host call, pricing, checkpoint emission, and history append. Session
// counters advance only after the host confirms completion, so a failed call
// leaves the session unchanged and retryable.
type SendMessageUseCase struct {
	sessionRepo   session.SessionRepository
	transport     hosttransport.Transport
	ledger        ledger.Ledger
	limiter       ratelimit.Limiter
	recoveryStore *recovery.Store
	recorder      *analytics.Recorder
	endSession    *EndSessionUseCase
	logger        logger.Interface
	settings      SessionSettings
}

func NewSendMessageUseCase(
	sessionRepo session.SessionRepository,
	transport hosttransport.Transport,
	ldg ledger.Ledger,
	limiter ratelimit.Limiter,
	recoveryStore *recovery.Store,
	recorder *analytics.Recorder,
	endSession *EndSessionUseCase,
	logger logger.Interface,
	settings SessionSettings,
) *SendMessageUseCase {
	return &SendMessageUseCase{
		sessionRepo:   sessionRepo,
		transport:     transport,
		ledger:        ldg,
		limiter:       limiter,
		recoveryStore: recoveryStore,
		recorder:      recorder,
		endSession:    endSession,
		logger:        logger,
		settings:      settings,
	}
}

func (uc *SendMessageUseCase) Execute(ctx context.Context, cmd SendMessageCommand) (*SendMessageResult, error) {
	if cmd.Prompt == "" {
		return nil, apperrors.NewValidationError("prompt is required")
	}

	limit, err := uc.limiter.Check(ctx, cmd.ClientID, ratelimit.KindMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !limit.Allowed {
		return nil, apperrors.NewRateLimitedError("message limit reached", limit.ResetAt)
	}

	sess, err := uc.sessionRepo.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess.ClientID() != cmd.ClientID {
		return nil, apperrors.NewAuthorizationDeniedError("session belongs to another client")
	}
	if !sess.State().CanSendMessage() {
		return nil, apperrors.NewConflictError("session is not active",
			fmt.Sprintf("session %d is %s", sess.ID(), sess.State()))
	}

	// Pre-empt before calling the host: an expired session or one whose
	// worst-case exchange cost no longer fits the deposit ends now.
	if shouldEnd, reason := sess.ShouldEnd(biztime.NowUTC(), uc.settings.MaxTokensPerMessage); shouldEnd {
		if _, endErr := uc.endSession.Execute(ctx, EndSessionCommand{SessionID: sess.ID(), Reason: reason}); endErr != nil {
			return nil, endErr
		}
		return &SendMessageResult{Session: sess, Ended: true, EndReason: reason}, nil
	}

	req := hosttransport.PromptRequest{
		LedgerSessionID: sess.LedgerSessionID(),
		Model:           sess.Model(),
		Prompt:          cmd.Prompt,
		History:         promptHistory(sess),
	}

	var reply *hosttransport.PromptResponse
	if cmd.OnChunk != nil {
		reply, err = uc.transport.StreamPrompt(ctx, cmd.HostEndpoint, req, cmd.OnChunk)
	} else {
		reply, err = uc.transport.SendPrompt(ctx, cmd.HostEndpoint, req)
	}
	if err != nil {
		uc.logger.Warnw("host call failed", "error", err, "session_id", sess.ID(), "host", sess.HostAddress())
		return nil, apperrors.NewHostUnavailableError("inference host call failed", err.Error())
	}

	cost, err := session.Quote(reply.Tokens, sess.PricePerToken())
	if err != nil {
		return nil, apperrors.NewInvariantViolationError("failed to price exchange", err.Error())
	}

	crossed, err := sess.RecordUsage(reply.Tokens, cost, uc.settings.CheckpointInterval)
	if err != nil {
		// The host overran the remaining budget. The completed exchange is
		// not billable beyond the deposit; settle what was metered so far.
		uc.logger.Warnw("usage exceeds deposit, ending session",
			"error", err, "session_id", sess.ID(), "tokens", reply.Tokens)
		reason := "deposit exhausted"
		if _, endErr := uc.endSession.Execute(ctx, EndSessionCommand{SessionID: sess.ID(), Reason: reason}); endErr != nil {
			return nil, endErr
		}
		return &SendMessageResult{Session: sess, Ended: true, EndReason: reason}, nil
	}

	now := biztime.NowUTC()
	sess.AppendMessage(session.Message{
		ID:        id.NewMessageID(),
		Role:      session.RoleUser,
		Content:   cmd.Prompt,
		CreatedAt: now,
	})
	replyMsg := session.Message{
		ID:        id.NewMessageID(),
		Role:      session.RoleAssistant,
		Content:   reply.Content,
		Tokens:    reply.Tokens,
		Cost:      cost,
		CreatedAt: now,
	}
	sess.AppendMessage(replyMsg)

	if err := uc.sessionRepo.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session usage: %w", err)
	}

	if crossed > 0 {
		cp := ledger.Checkpoint{
			SessionID:   sess.LedgerSessionID(),
			TotalTokens: sess.TotalTokens(),
			TotalCost:   sess.TotalCost(),
		}
		if _, cpErr := uc.ledger.SubmitCheckpoint(ctx, cp); cpErr != nil {
			// Checkpoints attest cumulative totals, so the next crossing or
			// the settlement call covers this one.
			uc.logger.Warnw("checkpoint submission failed",
				"error", cpErr, "session_id", sess.ID(), "total_tokens", sess.TotalTokens())
		}
	}

	if err := uc.recoveryStore.Save(ctx, recovery.SnapshotFromSession(sess)); err != nil {
		uc.logger.Warnw("failed to save recovery snapshot", "error", err, "session_id", sess.ID())
	}
	uc.recorder.RecordEvent(analytics.FromMessageCompleted(
		session.NewMessageCompletedEvent(sess, reply.Tokens, cost, crossed)))

	return &SendMessageResult{Session: sess, Reply: &replyMsg}, nil
}

func promptHistory(sess *session.Session) []hosttransport.PromptMessage {
	msgs := sess.Messages()
	history := make([]hosttransport.PromptMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, hosttransport.PromptMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return history
}
