package handlers

import (
	"context"

	"github.com/inferpay/inferpay/internal/application/session/usecases"
	"github.com/inferpay/inferpay/internal/infrastructure/recovery"
)

// Use case interfaces for the session, recovery, and host handlers

type openSessionUseCase interface {
	Execute(ctx context.Context, cmd usecases.OpenSessionCommand) (*usecases.OpenSessionResult, error)
}

type sendMessageUseCase interface {
	Execute(ctx context.Context, cmd usecases.SendMessageCommand) (*usecases.SendMessageResult, error)
}

type endSessionUseCase interface {
	Execute(ctx context.Context, cmd usecases.EndSessionCommand) (*usecases.EndSessionResult, error)
}

type recoverSessionUseCase interface {
	Peek(ctx context.Context, clientID string) (*recovery.Snapshot, error)
	Execute(ctx context.Context, cmd usecases.RecoverSessionCommand) (*usecases.RecoverSessionResult, error)
}

type discoverHostsUseCase interface {
	Execute(ctx context.Context, cmd usecases.DiscoverHostsCommand) (*usecases.DiscoverHostsResult, error)
}
