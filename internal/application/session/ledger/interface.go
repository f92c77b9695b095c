package ledger

import (
	"context"
	"time"

	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
)

// SessionStatus mirrors the escrow contract's view of a session.
type SessionStatus struct {
	SessionID     uint64
	Active        bool
	Settled       bool
	DepositAmount int64
	SpentAmount   int64
	HostAddress   string
}

// OpenParams carries everything the escrow contract needs to lock a deposit.
type OpenParams struct {
	ClientAddress string
	HostAddress   string
	Token         vo.PaymentToken
	DepositAmount int64
	PricePerToken int64
	ExpiresAt     time.Time
}

// Checkpoint attests cumulative usage for an open session. Cumulative rather
// than delta so a dropped submission is absorbed by the next one.
type Checkpoint struct {
	SessionID   uint64
	TotalTokens int64
	TotalCost   int64
}

// Receipt identifies a confirmed ledger operation.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	ConfirmedAt time.Time
}

// Ledger is the escrow contract gateway. All operations block until the
// ledger confirms or the context is done; retry policy lives with callers.
type Ledger interface {
	// OpenSession locks the deposit and returns the ledger-assigned session ID.
	OpenSession(ctx context.Context, params OpenParams) (uint64, *Receipt, error)

	// SubmitCheckpoint records a cumulative usage attestation.
	SubmitCheckpoint(ctx context.Context, cp Checkpoint) (*Receipt, error)

	// Settle closes the session, paying finalCost out of the deposit per the
	// contract's split and refunding the remainder to the client.
	Settle(ctx context.Context, sessionID uint64, finalCost int64) (*Receipt, error)

	// SessionStatus returns the contract's current view of a session.
	SessionStatus(ctx context.Context, sessionID uint64) (*SessionStatus, error)
}
