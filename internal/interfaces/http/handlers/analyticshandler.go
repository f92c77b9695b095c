package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/shared/utils"
)

// AnalyticsHandler exposes the in-process diagnostic buffers: recent
// lifecycle events and per-session settlement summaries.
type AnalyticsHandler struct {
	recorder *analytics.Recorder
}

func NewAnalyticsHandler(recorder *analytics.Recorder) *AnalyticsHandler {
	return &AnalyticsHandler{recorder: recorder}
}

func (h *AnalyticsHandler) ListEvents(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", h.recorder.Events())
}

func (h *AnalyticsHandler) ListSummaries(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "", h.recorder.Summaries())
}
