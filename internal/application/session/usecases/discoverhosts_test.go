package usecases

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

func TestDiscoverHostsUseCase_Execute(t *testing.T) {
	t.Run("filters offline hosts and sorts by price", func(t *testing.T) {
		e := newTestEnv(t)
		e.transport.hosts = []hosttransport.HostInfo{
			{Address: "0xa", PricePerToken: 500, Online: true},
			{Address: "0xb", PricePerToken: 316, Online: true},
			{Address: "0xc", PricePerToken: 100, Online: false},
		}

		res, err := e.discover.Execute(t.Context(), DiscoverHostsCommand{ClientID: "0xclient", Model: "llama-3-70b"})
		require.NoError(t, err)

		require.Len(t, res.Hosts, 2)
		assert.Equal(t, "0xb", res.Hosts[0].Address)
		assert.Equal(t, "0xa", res.Hosts[1].Address)
	})

	t.Run("rate limited", func(t *testing.T) {
		e := newTestEnv(t)
		e.limiter.deny[ratelimit.KindHostDiscovery] = true

		_, err := e.discover.Execute(t.Context(), DiscoverHostsCommand{ClientID: "0xclient"})
		assert.True(t, apperrors.IsRateLimitedError(err))
	})

	t.Run("transport failure", func(t *testing.T) {
		e := newTestEnv(t)
		e.transport.hostsErr = errors.New("registry unreachable")

		_, err := e.discover.Execute(t.Context(), DiscoverHostsCommand{ClientID: "0xclient"})
		assert.True(t, apperrors.IsHostUnavailableError(err))
	})
}
