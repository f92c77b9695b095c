package usecases

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferpay/inferpay/internal/domain/grant"
	"github.com/inferpay/inferpay/internal/domain/session"
	"github.com/inferpay/inferpay/internal/infrastructure/analytics"
	"github.com/inferpay/inferpay/internal/infrastructure/grantstore"
	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
	"github.com/inferpay/inferpay/internal/shared/logger"
)

// testSettings mirrors the default configuration: a $2.00 deposit at
// $0.000316 per token with checkpoints every 100 tokens.
func testSettings() SessionSettings {
	return SessionSettings{
		DepositAmount:       2_000_000,
		PricePerToken:       316,
		CheckpointInterval:  100,
		Duration:            time.Hour,
		MaxTokensPerMessage: 1000,
		HostShareBps:        9000,
		ChainID:             8453,
	}
}

func testRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

type testEnv struct {
	repo      *fakeSessionRepo
	ledger    *fakeLedger
	signer    *fakeSigner
	transport *fakeTransport
	limiter   *stubLimiter
	grants    *grantstore.Store
	recStore  *recovery.Store
	recorder  *analytics.Recorder

	open     *OpenSessionUseCase
	send     *SendMessageUseCase
	end      *EndSessionUseCase
	recover  *RecoverSessionUseCase
	discover *DiscoverHostsUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		repo:      newFakeSessionRepo(),
		ledger:    newFakeLedger(),
		signer:    newFakeSigner(),
		transport: &fakeTransport{},
		limiter:   newStubLimiter(),
		grants:    grantstore.NewStore(kvstore.NewMemoryStore()),
		recStore:  recovery.NewStore(kvstore.NewMemoryStore(), 24*time.Hour),
		recorder:  analytics.NewRecorder(200, 50, nil, nil),
	}

	builder, err := grant.NewBuilder(86400, 2592000, func() uint64 { return 1 })
	require.NoError(t, err)
	splitPolicy, err := session.NewSplitPolicy(9000)
	require.NoError(t, err)

	log := logger.Nop()
	settings := testSettings()
	retry := testRetry()

	e.open = NewOpenSessionUseCase(e.repo, e.ledger, e.signer, builder, e.grants, e.limiter, e.recStore, e.recorder, log, settings, retry)
	e.end = NewEndSessionUseCase(e.repo, e.ledger, splitPolicy, e.recStore, e.recorder, log, retry)
	e.send = NewSendMessageUseCase(e.repo, e.transport, e.ledger, e.limiter, e.recStore, e.recorder, e.end, log, settings)
	e.recover = NewRecoverSessionUseCase(e.repo, e.ledger, e.recStore, e.end, log)
	e.discover = NewDiscoverHostsUseCase(e.transport, e.limiter, log)
	return e
}

// openActiveSession runs the full open path and returns the Active session.
func (e *testEnv) openActiveSession(t *testing.T) *session.Session {
	t.Helper()
	res, err := e.open.Execute(t.Context(), OpenSessionCommand{
		ClientID:     "0xclient",
		HostAddress:  "0xhost",
		Model:        "llama-3-70b",
		PaymentToken: "usds",
	})
	require.NoError(t, err)
	return res.Session
}
