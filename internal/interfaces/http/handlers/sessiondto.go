package handlers

import (
	"time"

	"github.com/inferpay/inferpay/internal/domain/session"
)

// SessionResponse is the wire shape of a session. Monetary fields are in
// the payment token's smallest unit (6 decimals).
type SessionResponse struct {
	ID               uint                `json:"id"`
	LedgerSessionID  uint64              `json:"ledger_session_id"`
	ClientAddress    string              `json:"client_address"`
	HostAddress      string              `json:"host_address"`
	Model            string              `json:"model"`
	PaymentToken     string              `json:"payment_token"`
	PricePerToken    int64               `json:"price_per_token"`
	DepositAmount    int64               `json:"deposit_amount"`
	TotalTokens      int64               `json:"total_tokens"`
	TotalCost        int64               `json:"total_cost"`
	RemainingBudget  int64               `json:"remaining_budget"`
	State            string              `json:"state"`
	EndReason        *string             `json:"end_reason,omitempty"`
	FailureReason    *string             `json:"failure_reason,omitempty"`
	Settlement       *SettlementResponse `json:"settlement,omitempty"`
	OpenedAt         time.Time           `json:"opened_at"`
	ExpiresAt        time.Time           `json:"expires_at"`
}

type SettlementResponse struct {
	HostAmount     int64     `json:"host_amount"`
	TreasuryAmount int64     `json:"treasury_amount"`
	SettledAt      time.Time `json:"settled_at"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int64     `json:"tokens"`
	Cost      int64     `json:"cost"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionToResponse(sess *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:              sess.ID(),
		LedgerSessionID: sess.LedgerSessionID(),
		ClientAddress:   sess.ClientID(),
		HostAddress:     sess.HostAddress(),
		Model:           sess.Model(),
		PaymentToken:    string(sess.PaymentToken()),
		PricePerToken:   sess.PricePerToken(),
		DepositAmount:   sess.DepositAmount(),
		TotalTokens:     sess.TotalTokens(),
		TotalCost:       sess.TotalCost(),
		RemainingBudget: sess.RemainingBudget(),
		State:           string(sess.State()),
		EndReason:       sess.EndReason(),
		FailureReason:   sess.FailureReason(),
		OpenedAt:        sess.OpenedAt(),
		ExpiresAt:       sess.ExpiresAt(),
	}
	if st := sess.Settlement(); st != nil {
		resp.Settlement = &SettlementResponse{
			HostAmount:     st.HostAmount,
			TreasuryAmount: st.TreasuryAmount,
			SettledAt:      st.SettledAt,
		}
	}
	return resp
}

func messageToResponse(m session.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Tokens:    m.Tokens,
		Cost:      m.Cost,
		CreatedAt: m.CreatedAt,
	}
}

func messagesToResponse(msgs []session.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToResponse(m))
	}
	return out
}
