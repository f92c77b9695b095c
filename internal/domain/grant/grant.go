// Package grant builds spend pre-authorizations: standing allowances that let
// the escrow contract draw session deposits without a signer prompt per
// session. Builders are pure data shaping; execution belongs to the signer
// collaborator, and nothing is recorded until the signer confirms.
package grant

import (
	"fmt"
	"math"
	"time"

	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/shared/biztime"
)

// SpendGrant is a standing pre-authorization. The ledger tracks consumption
// externally; the grant itself is immutable once signed.
type SpendGrant struct {
	Owner         string          `json:"owner"`
	Delegate      string          `json:"delegate"`
	Token         vo.PaymentToken `json:"token"`
	Allowance     int64           `json:"allowance"`
	PeriodSeconds int64           `json:"period_seconds"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidUntil    time.Time       `json:"valid_until"`
	Nonce         uint64          `json:"nonce"`
}

// IsExpired reports whether the grant's validity window has passed.
func (g *SpendGrant) IsExpired(now time.Time) bool {
	return !now.Before(g.ValidUntil)
}

// Covers reports whether the grant can fund a deposit of the given amount
// for the given token at the given instant.
func (g *SpendGrant) Covers(token vo.PaymentToken, amount int64, now time.Time) bool {
	return g.Token == token && g.Allowance >= amount && !g.IsExpired(now) && !now.Before(g.ValidFrom)
}

// Call is one entry of an atomic call bundle.
type Call struct {
	To    string `json:"to"`
	Value int64  `json:"value"`
	Data  []byte `json:"data"`
}

// AuthorizationRequest is the opaque request handed to the signer to approve
// a grant.
type AuthorizationRequest struct {
	Owner         string          `json:"owner"`
	Delegate      string          `json:"delegate"`
	Token         vo.PaymentToken `json:"token"`
	Allowance     int64           `json:"allowance"`
	PeriodSeconds int64           `json:"period_seconds"`
	ValidUntil    time.Time       `json:"valid_until"`
	Nonce         uint64          `json:"nonce"`
}

// CallBundle is an atomic batch of calls executed in one signer interaction.
type CallBundle struct {
	From    string `json:"from"`
	ChainID uint64 `json:"chain_id"`
	Calls   []Call `json:"calls"`
}

// Builder constructs grants with the configured validity policy.
type Builder struct {
	periodSeconds int64
	duration      time.Duration
	nonce         func() uint64
}

// NewBuilder returns a grant builder. nonce supplies the monotonically unique
// nonce for each grant; pass nil to derive nonces from the clock.
func NewBuilder(periodSeconds, durationSeconds int64, nonce func() uint64) (*Builder, error) {
	if periodSeconds <= 0 {
		return nil, fmt.Errorf("grant period must be positive")
	}
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("grant duration must be positive")
	}
	if nonce == nil {
		nonce = func() uint64 { return uint64(time.Now().UnixNano()) }
	}
	return &Builder{
		periodSeconds: periodSeconds,
		duration:      time.Duration(durationSeconds) * time.Second,
		nonce:         nonce,
	}, nil
}

// BuildGrant computes the allowance as the base deposit plus a 50% buffer,
// covering several sessions and fee variance without another signer prompt.
func (b *Builder) BuildGrant(owner, delegate string, token vo.PaymentToken, baseDepositAmount int64) (*SpendGrant, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner address is required")
	}
	if delegate == "" {
		return nil, fmt.Errorf("delegate address is required")
	}
	if !token.IsValid() {
		return nil, fmt.Errorf("invalid payment token: %s", token)
	}
	if baseDepositAmount <= 0 {
		return nil, fmt.Errorf("base deposit must be positive")
	}
	if baseDepositAmount > math.MaxInt64-baseDepositAmount/2 {
		return nil, fmt.Errorf("allowance overflow for base deposit %d", baseDepositAmount)
	}

	now := biztime.NowUTC()
	return &SpendGrant{
		Owner:         owner,
		Delegate:      delegate,
		Token:         token,
		Allowance:     baseDepositAmount + baseDepositAmount/2,
		PeriodSeconds: b.periodSeconds,
		ValidFrom:     now,
		ValidUntil:    now.Add(b.duration),
		Nonce:         b.nonce(),
	}, nil
}

// BuildAuthorizationRequest shapes the signer request for a grant.
func (b *Builder) BuildAuthorizationRequest(g *SpendGrant) AuthorizationRequest {
	return AuthorizationRequest{
		Owner:         g.Owner,
		Delegate:      g.Delegate,
		Token:         g.Token,
		Allowance:     g.Allowance,
		PeriodSeconds: g.PeriodSeconds,
		ValidUntil:    g.ValidUntil,
		Nonce:         g.Nonce,
	}
}

// BuildCallBundle shapes an atomic call bundle for the signer.
func (b *Builder) BuildCallBundle(from string, chainID uint64, calls []Call) CallBundle {
	bundled := make([]Call, len(calls))
	copy(bundled, calls)
	return CallBundle{
		From:    from,
		ChainID: chainID,
		Calls:   bundled,
	}
}
