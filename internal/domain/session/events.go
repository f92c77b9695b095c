package session

import (
	"time"

	"github.com/inferpay/inferpay/internal/shared/biztime"
)

type SessionOpenedEvent struct {
	SessionID       uint
	LedgerSessionID uint64
	ClientID        string
	HostAddress     string
	Model           string
	DepositAmount   int64
	OccurredAt      time.Time
}

func NewSessionOpenedEvent(s *Session) *SessionOpenedEvent {
	return &SessionOpenedEvent{
		SessionID:       s.ID(),
		LedgerSessionID: s.LedgerSessionID(),
		ClientID:        s.ClientID(),
		HostAddress:     s.HostAddress(),
		Model:           s.Model(),
		DepositAmount:   s.DepositAmount(),
		OccurredAt:      biztime.NowUTC(),
	}
}

type MessageCompletedEvent struct {
	SessionID       uint
	LedgerSessionID uint64
	ClientID        string
	Model           string
	Tokens          int64
	Cost            int64
	TotalTokens     int64
	TotalCost       int64
	Checkpoints     int
	OccurredAt      time.Time
}

func NewMessageCompletedEvent(s *Session, tokens, cost int64, checkpoints int) *MessageCompletedEvent {
	return &MessageCompletedEvent{
		SessionID:       s.ID(),
		LedgerSessionID: s.LedgerSessionID(),
		ClientID:        s.ClientID(),
		Model:           s.Model(),
		Tokens:          tokens,
		Cost:            cost,
		TotalTokens:     s.TotalTokens(),
		TotalCost:       s.TotalCost(),
		Checkpoints:     checkpoints,
		OccurredAt:      biztime.NowUTC(),
	}
}

type SessionSettledEvent struct {
	SessionID       uint
	LedgerSessionID uint64
	ClientID        string
	Model           string
	TotalCost       int64
	HostAmount      int64
	TreasuryAmount  int64
	OccurredAt      time.Time
}

func NewSessionSettledEvent(s *Session) *SessionSettledEvent {
	ev := &SessionSettledEvent{
		SessionID:       s.ID(),
		LedgerSessionID: s.LedgerSessionID(),
		ClientID:        s.ClientID(),
		Model:           s.Model(),
		TotalCost:       s.TotalCost(),
		OccurredAt:      biztime.NowUTC(),
	}
	if st := s.Settlement(); st != nil {
		ev.HostAmount = st.HostAmount
		ev.TreasuryAmount = st.TreasuryAmount
	}
	return ev
}

type SessionFailedEvent struct {
	SessionID       uint
	LedgerSessionID uint64
	ClientID        string
	Model           string
	Reason          string
	OccurredAt      time.Time
}

func NewSessionFailedEvent(s *Session, reason string) *SessionFailedEvent {
	return &SessionFailedEvent{
		SessionID:       s.ID(),
		LedgerSessionID: s.LedgerSessionID(),
		ClientID:        s.ClientID(),
		Model:           s.Model(),
		Reason:          reason,
		OccurredAt:      biztime.NowUTC(),
	}
}
