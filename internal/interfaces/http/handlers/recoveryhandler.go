package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inferpay/inferpay/internal/application/session/coordinator"
	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/shared/logger"
	"github.com/inferpay/inferpay/internal/shared/utils"
)

// RecoveryHandler exposes crash-recovery snapshots: a client reconnecting
// after an interruption can inspect its pending session and resume or
// discard it.
type RecoveryHandler struct {
	recoverUC recoverSessionUseCase
	coord     *coordinator.Coordinator
	logger    logger.Interface
}

func NewRecoveryHandler(
	recoverUC recoverSessionUseCase,
	coord *coordinator.Coordinator,
	logger logger.Interface,
) *RecoveryHandler {
	return &RecoveryHandler{
		recoverUC: recoverUC,
		coord:     coord,
		logger:    logger,
	}
}

type SnapshotResponse struct {
	SessionID       uint      `json:"session_id"`
	LedgerSessionID uint64    `json:"ledger_session_id"`
	HostAddress     string    `json:"host_address"`
	Model           string    `json:"model"`
	TotalTokens     int64     `json:"total_tokens"`
	TotalCost       int64     `json:"total_cost"`
	State           string    `json:"state"`
	OpenedAt        time.Time `json:"opened_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	SavedAt         time.Time `json:"saved_at"`
}

type RecoverResponse struct {
	Session SessionResponse `json:"session"`
	Resumed bool            `json:"resumed"`
	Reason  string          `json:"reason,omitempty"`
}

// GetPending returns the caller's recoverable session snapshot, if any.
func (h *RecoveryHandler) GetPending(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}

	snap, err := h.recoverUC.Peek(c.Request.Context(), clientAddr)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if snap == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "no recoverable session")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", snapshotToResponse(snap))
}

// Accept resumes the interrupted session after reconciling with the ledger.
func (h *RecoveryHandler) Accept(c *gin.Context) {
	h.recover(c, true)
}

// Decline settles the interrupted session at its metered usage and discards
// the snapshot.
func (h *RecoveryHandler) Decline(c *gin.Context) {
	h.recover(c, false)
}

func (h *RecoveryHandler) recover(c *gin.Context, accept bool) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}

	snap, err := h.recoverUC.Peek(c.Request.Context(), clientAddr)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if snap == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "no recoverable session")
		return
	}

	var result *usecases.RecoverSessionResult
	err = h.coord.Do(c.Request.Context(), snap.SessionID, func(ctx context.Context) error {
		var opErr error
		result, opErr = h.recoverUC.Execute(ctx, usecases.RecoverSessionCommand{
			ClientID: clientAddr,
			Accept:   accept,
		})
		return opErr
	})
	if err != nil {
		h.logger.Warnw("recovery failed",
			"client", clientAddr, "session_id", snap.SessionID, "accept", accept, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", RecoverResponse{
		Session: sessionToResponse(result.Session),
		Resumed: result.Resumed,
		Reason:  result.Reason,
	})
}

func snapshotToResponse(snap *recovery.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		SessionID:       snap.SessionID,
		LedgerSessionID: snap.LedgerSessionID,
		HostAddress:     snap.HostAddress,
		Model:           snap.Model,
		TotalTokens:     snap.TotalTokens,
		TotalCost:       snap.TotalCost,
		State:           string(snap.State),
		OpenedAt:        snap.OpenedAt,
		ExpiresAt:       snap.ExpiresAt,
		SavedAt:         snap.SavedAt,
	}
}
