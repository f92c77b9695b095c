package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/interfaces/http/handlers/testutil"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

type mockDiscoverHostsUC struct {
	result   *usecases.DiscoverHostsResult
	err      error
	gotModel string
}

func (m *mockDiscoverHostsUC) Execute(ctx context.Context, cmd usecases.DiscoverHostsCommand) (*usecases.DiscoverHostsResult, error) {
	m.gotModel = cmd.Model
	return m.result, m.err
}

func TestHostHandler_ListHosts_Success(t *testing.T) {
	mockUC := &mockDiscoverHostsUC{result: &usecases.DiscoverHostsResult{
		Hosts: []hosttransport.HostInfo{
			{Address: testHostAddr, Endpoint: "http://host-a.example:8080", Models: []string{"llama-3-70b"}, PricePerToken: 316, Online: true},
			{Address: "0x4444444444444444444444444444444444444444", Endpoint: "http://host-b.example:8080", Models: []string{"llama-3-70b"}, PricePerToken: 420, Online: true},
		},
	}}
	handler := NewHostHandler(mockUC, logger.Nop())

	c, w := testutil.NewTestContext(http.MethodGet, "/hosts", nil)
	testutil.SetClientAddress(c, testClientAddr)
	testutil.SetQueryParams(c, map[string]string{"model": "llama-3-70b"})

	handler.ListHosts(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama-3-70b", mockUC.gotModel)

	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	var data []HostResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.Len(t, data, 2)
	assert.Equal(t, int64(316), data[0].PricePerToken)
}

func TestHostHandler_ListHosts_MissingClientAddress(t *testing.T) {
	handler := NewHostHandler(&mockDiscoverHostsUC{}, logger.Nop())

	c, w := testutil.NewTestContext(http.MethodGet, "/hosts", nil)

	handler.ListHosts(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHostHandler_ListHosts_RateLimited(t *testing.T) {
	mockUC := &mockDiscoverHostsUC{err: apperrors.NewRateLimitedError("discovery limit reached", time.Now().Add(time.Minute))}
	handler := NewHostHandler(mockUC, logger.Nop())

	c, w := testutil.NewTestContext(http.MethodGet, "/hosts", nil)
	testutil.SetClientAddress(c, testClientAddr)

	handler.ListHosts(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
