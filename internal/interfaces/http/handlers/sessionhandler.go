package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inferpay/inferpay/internal/application/session/coordinator"
	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/shared/logger"
	"github.com/inferpay/inferpay/internal/shared/utils"
)

// SessionHandler exposes the metered-session lifecycle. Mutating operations
// on one session are serialized through the coordinator so a message, an end
// request, and a recovery action can never interleave.
type SessionHandler struct {
	openSessionUC openSessionUseCase
	sendMessageUC sendMessageUseCase
	endSessionUC  endSessionUseCase
	sessionRepo   session.SessionRepository
	coord         *coordinator.Coordinator
	logger        logger.Interface
}

func NewSessionHandler(
	openSessionUC openSessionUseCase,
	sendMessageUC sendMessageUseCase,
	endSessionUC endSessionUseCase,
	sessionRepo session.SessionRepository,
	coord *coordinator.Coordinator,
	logger logger.Interface,
) *SessionHandler {
	return &SessionHandler{
		openSessionUC: openSessionUC,
		sendMessageUC: sendMessageUC,
		endSessionUC:  endSessionUC,
		sessionRepo:   sessionRepo,
		coord:         coord,
		logger:        logger,
	}
}

type OpenSessionRequest struct {
	HostAddress  string `json:"host_address" validate:"required,evm_address"`
	Model        string `json:"model" validate:"required"`
	PaymentToken string `json:"payment_token" validate:"required,payment_token"`
}

type SendMessageRequest struct {
	Prompt       string `json:"prompt" validate:"required"`
	HostEndpoint string `json:"host_endpoint" validate:"required,url"`
	Stream       bool   `json:"stream"`
}

type SendMessageResponse struct {
	Session   SessionResponse  `json:"session"`
	Reply     *MessageResponse `json:"reply,omitempty"`
	Ended     bool             `json:"ended"`
	EndReason string           `json:"end_reason,omitempty"`
}

type EndSessionRequest struct {
	Reason string `json:"reason"`
}

func (h *SessionHandler) OpenSession(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.openSessionUC.Execute(c.Request.Context(), usecases.OpenSessionCommand{
		ClientID:     clientAddr,
		HostAddress:  req.HostAddress,
		Model:        req.Model,
		PaymentToken: req.PaymentToken,
	})
	if err != nil {
		h.logger.Warnw("failed to open session", "client", clientAddr, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, sessionToResponse(result.Session), "session opened")
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionRepo.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if sess.ClientID() != clientAddr {
		utils.ErrorResponse(c, http.StatusNotFound, "session not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", sessionToResponse(sess))
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}

	sessions, err := h.sessionRepo.ListByClientID(c.Request.Context(), clientAddr)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, sessionToResponse(sess))
	}
	utils.SuccessResponse(c, http.StatusOK, "", items)
}

func (h *SessionHandler) GetMessages(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionRepo.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if sess.ClientID() != clientAddr {
		utils.ErrorResponse(c, http.StatusNotFound, "session not found")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", messagesToResponse(sess.Messages()))
}

func (h *SessionHandler) SendMessage(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if req.Stream {
		h.sendMessageStreaming(c, sessionID, clientAddr, req)
		return
	}

	cmd := usecases.SendMessageCommand{
		SessionID:    sessionID,
		ClientID:     clientAddr,
		Prompt:       req.Prompt,
		HostEndpoint: req.HostEndpoint,
	}

	var result *usecases.SendMessageResult
	err := h.coord.Do(c.Request.Context(), sessionID, func(ctx context.Context) error {
		var opErr error
		result, opErr = h.sendMessageUC.Execute(ctx, cmd)
		return opErr
	})
	if err != nil {
		h.logger.Warnw("message failed", "session_id", sessionID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", sendResultToResponse(result))
}

// sendMessageStreaming relays reply chunks as server-sent events, then a
// final "done" event with the settled session state. Chunk delivery happens
// inside the coordinator op, so the write completes before the next
// operation on this session runs.
func (h *SessionHandler) sendMessageStreaming(c *gin.Context, sessionID uint, clientAddr string, req SendMessageRequest) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	cmd := usecases.SendMessageCommand{
		SessionID:    sessionID,
		ClientID:     clientAddr,
		Prompt:       req.Prompt,
		HostEndpoint: req.HostEndpoint,
		OnChunk: func(chunk hosttransport.Chunk) {
			c.SSEvent("chunk", gin.H{"content": chunk.Content, "final": chunk.Final})
			c.Writer.Flush()
		},
	}

	var result *usecases.SendMessageResult
	err := h.coord.Do(c.Request.Context(), sessionID, func(ctx context.Context) error {
		var opErr error
		result, opErr = h.sendMessageUC.Execute(ctx, cmd)
		return opErr
	})
	if err != nil {
		c.SSEvent("error", gin.H{"message": err.Error()})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", sendResultToResponse(result))
	c.Writer.Flush()
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req EndSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	sess, err := h.sessionRepo.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if sess.ClientID() != clientAddr {
		utils.ErrorResponse(c, http.StatusNotFound, "session not found")
		return
	}

	// Ending preempts the session's in-flight exchange instead of queueing
	// behind it. Cancel tears down the mailbox and aborts the running host
	// call; the Do below builds a fresh mailbox to serialize settlement.
	h.coord.Cancel(sessionID)

	var result *usecases.EndSessionResult
	err = h.coord.Do(c.Request.Context(), sessionID, func(ctx context.Context) error {
		var opErr error
		result, opErr = h.endSessionUC.Execute(ctx, usecases.EndSessionCommand{
			SessionID: sessionID,
			Reason:    req.Reason,
		})
		return opErr
	})
	if err != nil {
		h.logger.Warnw("failed to end session", "session_id", sessionID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "session ended", sessionToResponse(result.Session))
}

func sendResultToResponse(result *usecases.SendMessageResult) SendMessageResponse {
	resp := SendMessageResponse{
		Session:   sessionToResponse(result.Session),
		Ended:     result.Ended,
		EndReason: result.EndReason,
	}
	if result.Reply != nil {
		reply := messageToResponse(*result.Reply)
		resp.Reply = &reply
	}
	return resp
}

// requireClientAddress reads the caller's wallet address from the
// X-Client-Address header. The signer proves control of the address when
// grants are authorized; the header only scopes reads and routes commands.
func requireClientAddress(c *gin.Context) (string, bool) {
	addr := c.GetHeader("X-Client-Address")
	if addr == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "X-Client-Address header is required")
		return "", false
	}
	return addr, true
}

func sessionIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return uint(id), true
}
