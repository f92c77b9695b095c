package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/shared/logger"
	"github.com/inferpay/inferpay/internal/shared/utils"
)

type HostHandler struct {
	discoverUC discoverHostsUseCase
	logger     logger.Interface
}

func NewHostHandler(discoverUC discoverHostsUseCase, logger logger.Interface) *HostHandler {
	return &HostHandler{
		discoverUC: discoverUC,
		logger:     logger,
	}
}

type HostResponse struct {
	Address       string   `json:"address"`
	Endpoint      string   `json:"endpoint"`
	Models        []string `json:"models"`
	PricePerToken int64    `json:"price_per_token"`
}

// ListHosts returns online inference hosts, cheapest first. An optional
// "model" query filters to hosts serving that model.
func (h *HostHandler) ListHosts(c *gin.Context) {
	clientAddr, ok := requireClientAddress(c)
	if !ok {
		return
	}

	result, err := h.discoverUC.Execute(c.Request.Context(), usecases.DiscoverHostsCommand{
		ClientID: clientAddr,
		Model:    c.Query("model"),
	})
	if err != nil {
		h.logger.Warnw("host discovery failed", "client", clientAddr, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", hostsToResponse(result.Hosts))
}

func hostsToResponse(hosts []hosttransport.HostInfo) []HostResponse {
	out := make([]HostResponse, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, HostResponse{
			Address:       host.Address,
			Endpoint:      host.Endpoint,
			Models:        host.Models,
			PricePerToken: host.PricePerToken,
		})
	}
	return out
}
