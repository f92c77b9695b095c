package session

import (
	"fmt"
	"time"

	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/shared/biztime"
)

// Settlement is the final split recorded when a session settles.
type Settlement struct {
	HostAmount     int64     `json:"host_amount"`
	TreasuryAmount int64     `json:"treasury_amount"`
	SettledAt      time.Time `json:"settled_at"`
}

// Session is the aggregate root for one pre-paid metered interaction.
// hostAddress, model, payment token, and price are locked at open time;
// re-quoting requires a new session. All mutation goes through the
// transition methods so the deposit invariant cannot be bypassed.
type Session struct {
	id              uint
	ledgerSessionID uint64
	clientID        string
	hostAddress     string
	model           string
	paymentToken    vo.PaymentToken
	pricePerToken   int64
	depositAmount   int64

	totalTokens        int64
	totalCost          int64
	checkpointsEmitted int

	state         vo.SessionState
	endReason     *string
	failureReason *string
	settlement    *Settlement

	messages []Message

	openedAt  time.Time
	expiresAt time.Time

	version       int
	storedVersion int
	createdAt     time.Time
	updatedAt     time.Time
}

// NewSession creates a session in Opening state. The ledger session ID is
// assigned on Activate once the escrow deposit is confirmed.
func NewSession(clientID, hostAddress, model string, token vo.PaymentToken, pricePerToken, depositAmount int64, duration time.Duration) (*Session, error) {
	if clientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if hostAddress == "" {
		return nil, fmt.Errorf("host address is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if !token.IsValid() {
		return nil, fmt.Errorf("invalid payment token: %s", token)
	}
	if pricePerToken <= 0 {
		return nil, fmt.Errorf("price per token must be positive")
	}
	if depositAmount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("session duration must be positive")
	}

	now := biztime.NowUTC()
	return &Session{
		clientID:      clientID,
		hostAddress:   hostAddress,
		model:         model,
		paymentToken:  token,
		pricePerToken: pricePerToken,
		depositAmount: depositAmount,
		state:         vo.StateOpening,
		openedAt:      now,
		expiresAt:     now.Add(duration),
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// Activate moves the session to Active once the ledger confirms the escrow
// deposit and returns its session identifier. Idempotent for the same
// ledger session ID.
func (s *Session) Activate(ledgerSessionID uint64) error {
	if s.state == vo.StateActive {
		if s.ledgerSessionID == ledgerSessionID {
			return nil
		}
		return fmt.Errorf("session already active with ledger session %d", s.ledgerSessionID)
	}
	if !s.state.CanTransitionTo(vo.StateActive) {
		return fmt.Errorf("cannot activate session with state %s", s.state)
	}
	if ledgerSessionID == 0 {
		return fmt.Errorf("ledger session ID is required")
	}

	s.ledgerSessionID = ledgerSessionID
	s.state = vo.StateActive
	s.touch()
	return nil
}

// RecordUsage adds a confirmed exchange's token count and cost to the running
// totals and returns how many checkpoint boundaries were crossed. Counters
// only advance on confirmed completion, so a failed exchange needs no
// rollback. Usage that would push totalCost past the deposit is rejected;
// callers end the session instead of clamping.
func (s *Session) RecordUsage(tokens, cost, checkpointInterval int64) (int, error) {
	if !s.state.CanSendMessage() {
		return 0, fmt.Errorf("cannot record usage with state %s", s.state)
	}
	if tokens < 0 || cost < 0 {
		return 0, fmt.Errorf("usage must be non-negative: tokens=%d cost=%d", tokens, cost)
	}
	if checkpointInterval <= 0 {
		return 0, fmt.Errorf("checkpoint interval must be positive")
	}
	if cost > s.depositAmount-s.totalCost {
		return 0, fmt.Errorf("usage of %d units would exceed deposit %d (spent %d)", cost, s.depositAmount, s.totalCost)
	}

	crossed := int((s.totalTokens+tokens)/checkpointInterval - s.totalTokens/checkpointInterval)

	s.totalTokens += tokens
	s.totalCost += cost
	s.checkpointsEmitted += crossed
	s.touch()
	return crossed, nil
}

// AppendMessage adds an entry to the exchange history.
func (s *Session) AppendMessage(m Message) {
	s.messages = append(s.messages, m)
	s.touch()
}

// BeginEnding moves an Active session toward settlement. Idempotent when
// already Ending; the first reason wins.
func (s *Session) BeginEnding(reason string) error {
	if s.state == vo.StateEnding {
		return nil
	}
	if !s.state.CanTransitionTo(vo.StateEnding) {
		return fmt.Errorf("cannot end session with state %s", s.state)
	}
	if reason == "" {
		return fmt.Errorf("end reason is required")
	}

	s.state = vo.StateEnding
	s.endReason = &reason
	s.touch()
	return nil
}

// MarkSettled records the ledger-confirmed split and finalizes the session.
// Idempotent when already Settled.
func (s *Session) MarkSettled(hostAmount, treasuryAmount int64) error {
	if s.state == vo.StateSettled {
		return nil
	}
	if !s.state.CanTransitionTo(vo.StateSettled) {
		return fmt.Errorf("cannot settle session with state %s", s.state)
	}
	if hostAmount+treasuryAmount != s.totalCost {
		return fmt.Errorf("settlement split %d+%d does not equal total cost %d", hostAmount, treasuryAmount, s.totalCost)
	}

	s.settlement = &Settlement{
		HostAmount:     hostAmount,
		TreasuryAmount: treasuryAmount,
		SettledAt:      biztime.NowUTC(),
	}
	s.state = vo.StateSettled
	s.touch()
	return nil
}

// MarkFailed moves the session to the Failed terminal state. Idempotent when
// already Failed; a Settled session cannot fail.
func (s *Session) MarkFailed(reason string) error {
	if s.state == vo.StateFailed {
		return nil
	}
	if s.state == vo.StateSettled {
		return fmt.Errorf("cannot fail a settled session")
	}

	s.state = vo.StateFailed
	s.failureReason = &reason
	s.touch()
	return nil
}

// IsExpired reports whether the session has outlived its maximum duration.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.expiresAt)
}

// RemainingBudget returns the unspent portion of the deposit in units.
func (s *Session) RemainingBudget() int64 {
	return s.depositAmount - s.totalCost
}

// ShouldEnd reports whether the session must transition toward Ending before
// the next exchange: either it has expired, or the projected cost of a
// maximum-size exchange would breach the deposit.
func (s *Session) ShouldEnd(now time.Time, maxTokensPerMessage int64) (bool, string) {
	if s.IsExpired(now) {
		return true, "session expired"
	}
	projected, err := Quote(maxTokensPerMessage, s.pricePerToken)
	if err != nil || projected > s.RemainingBudget() {
		return true, "deposit exhausted"
	}
	return false, ""
}

func (s *Session) touch() {
	s.updatedAt = biztime.NowUTC()
	s.version++
}

func (s *Session) ID() uint                      { return s.id }
func (s *Session) LedgerSessionID() uint64       { return s.ledgerSessionID }
func (s *Session) ClientID() string              { return s.clientID }
func (s *Session) HostAddress() string           { return s.hostAddress }
func (s *Session) Model() string                 { return s.model }
func (s *Session) PaymentToken() vo.PaymentToken { return s.paymentToken }
func (s *Session) PricePerToken() int64          { return s.pricePerToken }
func (s *Session) DepositAmount() int64          { return s.depositAmount }
func (s *Session) TotalTokens() int64            { return s.totalTokens }
func (s *Session) TotalCost() int64              { return s.totalCost }
func (s *Session) CheckpointsEmitted() int       { return s.checkpointsEmitted }
func (s *Session) State() vo.SessionState        { return s.state }
func (s *Session) EndReason() *string            { return s.endReason }
func (s *Session) FailureReason() *string        { return s.failureReason }
func (s *Session) Settlement() *Settlement       { return s.settlement }
func (s *Session) OpenedAt() time.Time           { return s.openedAt }
func (s *Session) ExpiresAt() time.Time          { return s.expiresAt }
func (s *Session) Version() int                  { return s.version }
func (s *Session) StoredVersion() int            { return s.storedVersion }
func (s *Session) CreatedAt() time.Time          { return s.createdAt }
func (s *Session) UpdatedAt() time.Time          { return s.updatedAt }

// Messages returns a copy of the exchange history.
func (s *Session) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// SetID sets the storage ID after persistence (used by repository after Create).
func (s *Session) SetID(id uint) {
	s.id = id
}

// MarkStored records that the current version is the one persisted. The
// repository guards updates against the stored version, so concurrent
// writers lose instead of overwriting each other.
func (s *Session) MarkStored() {
	s.storedVersion = s.version
}

// SessionReconstructParams carries every persisted field for rehydration.
type SessionReconstructParams struct {
	ID                 uint
	LedgerSessionID    uint64
	ClientID           string
	HostAddress        string
	Model              string
	PaymentToken       vo.PaymentToken
	PricePerToken      int64
	DepositAmount      int64
	TotalTokens        int64
	TotalCost          int64
	CheckpointsEmitted int
	State              vo.SessionState
	EndReason          *string
	FailureReason      *string
	Settlement         *Settlement
	Messages           []Message
	OpenedAt           time.Time
	ExpiresAt          time.Time
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ReconstructSession rebuilds a session from persistence without revalidating
// business rules that only apply at creation time.
func ReconstructSession(p SessionReconstructParams) (*Session, error) {
	if !p.State.IsValid() {
		return nil, fmt.Errorf("invalid session state: %s", p.State)
	}
	if p.TotalCost > p.DepositAmount {
		return nil, fmt.Errorf("persisted cost %d exceeds deposit %d", p.TotalCost, p.DepositAmount)
	}

	return &Session{
		id:                 p.ID,
		ledgerSessionID:    p.LedgerSessionID,
		clientID:           p.ClientID,
		hostAddress:        p.HostAddress,
		model:              p.Model,
		paymentToken:       p.PaymentToken,
		pricePerToken:      p.PricePerToken,
		depositAmount:      p.DepositAmount,
		totalTokens:        p.TotalTokens,
		totalCost:          p.TotalCost,
		checkpointsEmitted: p.CheckpointsEmitted,
		state:              p.State,
		endReason:          p.EndReason,
		failureReason:      p.FailureReason,
		settlement:         p.Settlement,
		messages:           p.Messages,
		openedAt:           p.OpenedAt,
		expiresAt:          p.ExpiresAt,
		version:            p.Version,
		storedVersion:      p.Version,
		createdAt:          p.CreatedAt,
		updatedAt:          p.UpdatedAt,
	}, nil
}
