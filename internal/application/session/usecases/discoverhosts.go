package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type DiscoverHostsCommand struct {
	ClientID string
	Model    string
}

type DiscoverHostsResult struct {
	Hosts []hosttransport.HostInfo
}

// DiscoverHostsUseCase lists online inference hosts, cheapest first.
type DiscoverHostsUseCase struct {
	transport hosttransport.Transport
	limiter   ratelimit.Limiter
	logger    logger.Interface
}

func NewDiscoverHostsUseCase(
	transport hosttransport.Transport,
	limiter ratelimit.Limiter,
	logger logger.Interface,
) *DiscoverHostsUseCase {
	return &DiscoverHostsUseCase{
		transport: transport,
		limiter:   limiter,
		logger:    logger,
	}
}

func (uc *DiscoverHostsUseCase) Execute(ctx context.Context, cmd DiscoverHostsCommand) (*DiscoverHostsResult, error) {
	limit, err := uc.limiter.Check(ctx, cmd.ClientID, ratelimit.KindHostDiscovery)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !limit.Allowed {
		return nil, apperrors.NewRateLimitedError("host discovery limit reached", limit.ResetAt)
	}

	hosts, err := uc.transport.DiscoverHosts(ctx, cmd.Model)
	if err != nil {
		uc.logger.Warnw("host discovery failed", "error", err, "model", cmd.Model)
		return nil, apperrors.NewHostUnavailableError("host discovery failed", err.Error())
	}

	online := make([]hosttransport.HostInfo, 0, len(hosts))
	for _, h := range hosts {
		if h.Online {
			online = append(online, h)
		}
	}
	sort.SliceStable(online, func(i, j int) bool {
		return online[i].PricePerToken < online[j].PricePerToken
	})

	return &DiscoverHostsResult{Hosts: online}, nil
}
