package signer

import (
	"context"

	"github.com/inferpay/inferpay/internal/domain/grant"
)

// Signer is the client's wallet gateway. Grant authorization and call-bundle
// execution may surface an interactive prompt, so both honor ctx cancellation.
type Signer interface {
	// Address returns the connected account address.
	Address(ctx context.Context) (string, error)

	// AuthorizeGrant asks the wallet to approve a spend grant.
	AuthorizeGrant(ctx context.Context, req grant.AuthorizationRequest) error

	// SignAndSend executes a call bundle atomically and returns the tx hash.
	SignAndSend(ctx context.Context, bundle grant.CallBundle) (string, error)

	// SwitchNetwork moves the wallet to the given chain, prompting if needed.
	SwitchNetwork(ctx context.Context, chainID uint64) error
}
