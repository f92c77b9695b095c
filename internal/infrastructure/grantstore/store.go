// Package grantstore persists authorized spend grants so later session opens
// reuse the standing allowance instead of prompting the wallet again.
package grantstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/inferpay/inferpay/internal/domain/grant"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
)

// Store saves and loads authorized grants, one per owner/host/token triple.
type Store struct {
	kv kvstore.Store
}

func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) key(owner, delegate string, token vo.PaymentToken) string {
	return "grant:" + owner + ":" + delegate + ":" + token.String()
}

// Save persists the grant, replacing any previous one for the same
// owner/host/token triple. Only confirmed grants belong here; callers save
// after the signer approves, never before.
func (s *Store) Save(ctx context.Context, g *grant.SpendGrant) error {
	if g.Owner == "" || g.Delegate == "" {
		return errors.New("grant owner and delegate are required")
	}

	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(g.Owner, g.Delegate, g.Token), data); err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

// Load returns the stored grant for the triple, or nil when there is none.
// Expiry and allowance checks belong to the caller via SpendGrant.Covers.
func (s *Store) Load(ctx context.Context, owner, delegate string, token vo.PaymentToken) (*grant.SpendGrant, error) {
	data, err := s.kv.Get(ctx, s.key(owner, delegate, token))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load grant: %w", err)
	}

	var g grant.SpendGrant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &g, nil
}

// Clear removes the stored grant for the triple.
func (s *Store) Clear(ctx context.Context, owner, delegate string, token vo.PaymentToken) error {
	if err := s.kv.Delete(ctx, s.key(owner, delegate, token)); err != nil {
		return fmt.Errorf("failed to clear grant: %w", err)
	}
	return nil
}
