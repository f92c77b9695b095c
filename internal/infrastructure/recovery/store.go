// Package recovery persists per-client session snapshots so an interrupted
// session survives a coordinator crash or page reload.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/kvstore"
	"github.com/inferpay/inferpay/internal/shared/biztime"
)

// Snapshot is the minimal durable state needed to resume a session. One
// snapshot per client; writing replaces the previous one.
type Snapshot struct {
	SessionID       uint              `json:"session_id"`
	LedgerSessionID uint64            `json:"ledger_session_id"`
	ClientID        string            `json:"client_id"`
	HostAddress     string            `json:"host_address"`
	Model           string            `json:"model"`
	PaymentToken    vo.PaymentToken   `json:"payment_token"`
	PricePerToken   int64             `json:"price_per_token"`
	DepositAmount   int64             `json:"deposit_amount"`
	TotalTokens     int64             `json:"total_tokens"`
	TotalCost       int64             `json:"total_cost"`
	State           vo.SessionState   `json:"state"`
	Messages        []session.Message `json:"messages"`
	OpenedAt        time.Time         `json:"opened_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
	SavedAt         time.Time         `json:"saved_at"`
}

// SnapshotFromSession captures the durable view of a session.
func SnapshotFromSession(s *session.Session) *Snapshot {
	return &Snapshot{
		SessionID:       s.ID(),
		LedgerSessionID: s.LedgerSessionID(),
		ClientID:        s.ClientID(),
		HostAddress:     s.HostAddress(),
		Model:           s.Model(),
		PaymentToken:    s.PaymentToken(),
		PricePerToken:   s.PricePerToken(),
		DepositAmount:   s.DepositAmount(),
		TotalTokens:     s.TotalTokens(),
		TotalCost:       s.TotalCost(),
		State:           s.State(),
		Messages:        s.Messages(),
		OpenedAt:        s.OpenedAt(),
		ExpiresAt:       s.ExpiresAt(),
		SavedAt:         biztime.NowUTC(),
	}
}

// Store saves and loads recovery snapshots, one per client.
type Store struct {
	kv     kvstore.Store
	maxAge time.Duration
	now    func() time.Time
}

// NewStore creates a snapshot store. Snapshots older than maxAge are treated
// as absent on Load.
func NewStore(kv kvstore.Store, maxAge time.Duration) *Store {
	return &Store{
		kv:     kv,
		maxAge: maxAge,
		now:    biztime.NowUTC,
	}
}

func (s *Store) key(clientID string) string {
	return "recovery:" + clientID
}

// Save persists the snapshot, replacing any previous one for the client.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap.ClientID == "" {
		return errors.New("snapshot client id is required")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(snap.ClientID), data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the client's snapshot, or nil when there is none or the
// stored one is older than the staleness threshold.
func (s *Store) Load(ctx context.Context, clientID string) (*Snapshot, error) {
	data, err := s.kv.Get(ctx, s.key(clientID))
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if biztime.OlderThan(snap.SavedAt, s.now(), s.maxAge) {
		return nil, nil
	}
	return &snap, nil
}

// Clear removes the client's snapshot.
func (s *Store) Clear(ctx context.Context, clientID string) error {
	if err := s.kv.Delete(ctx, s.key(clientID)); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
