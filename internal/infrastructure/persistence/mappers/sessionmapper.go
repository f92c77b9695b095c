package mappers

import (
	"encoding/json"
	"fmt"

	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/persistence/models"
)

func SessionToModel(s *session.Session) (*models.SessionModel, error) {
	messages, err := json.Marshal(s.Messages())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	model := &models.SessionModel{
		ID:                 s.ID(),
		LedgerSessionID:    s.LedgerSessionID(),
		ClientID:           s.ClientID(),
		HostAddress:        s.HostAddress(),
		Model:              s.Model(),
		PaymentToken:       s.PaymentToken().String(),
		PricePerToken:      s.PricePerToken(),
		DepositAmount:      s.DepositAmount(),
		TotalTokens:        s.TotalTokens(),
		TotalCost:          s.TotalCost(),
		CheckpointsEmitted: s.CheckpointsEmitted(),
		State:              string(s.State()),
		EndReason:          s.EndReason(),
		FailureReason:      s.FailureReason(),
		Messages:           messages,
		OpenedAt:           s.OpenedAt(),
		ExpiresAt:          s.ExpiresAt(),
		Version:            s.Version(),
		CreatedAt:          s.CreatedAt(),
		UpdatedAt:          s.UpdatedAt(),
	}

	if st := s.Settlement(); st != nil {
		host := st.HostAmount
		treasury := st.TreasuryAmount
		settledAt := st.SettledAt
		model.HostAmount = &host
		model.TreasuryAmount = &treasury
		model.SettledAt = &settledAt
	}

	return model, nil
}

func SessionToDomain(model *models.SessionModel) (*session.Session, error) {
	token, err := vo.NewPaymentToken(model.PaymentToken)
	if err != nil {
		return nil, fmt.Errorf("invalid payment token: %w", err)
	}

	var messages []session.Message
	if len(model.Messages) > 0 {
		if err := json.Unmarshal(model.Messages, &messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}

	var settlement *session.Settlement
	if model.HostAmount != nil && model.TreasuryAmount != nil && model.SettledAt != nil {
		settlement = &session.Settlement{
			HostAmount:     *model.HostAmount,
			TreasuryAmount: *model.TreasuryAmount,
			SettledAt:      *model.SettledAt,
		}
	}

	return session.ReconstructSession(session.SessionReconstructParams{
		ID:                 model.ID,
		LedgerSessionID:    model.LedgerSessionID,
		ClientID:           model.ClientID,
		HostAddress:        model.HostAddress,
		Model:              model.Model,
		PaymentToken:       token,
		PricePerToken:      model.PricePerToken,
		DepositAmount:      model.DepositAmount,
		TotalTokens:        model.TotalTokens,
		TotalCost:          model.TotalCost,
		CheckpointsEmitted: model.CheckpointsEmitted,
		State:              vo.SessionState(model.State),
		EndReason:          model.EndReason,
		FailureReason:      model.FailureReason,
		Settlement:         settlement,
		Messages:           messages,
		OpenedAt:           model.OpenedAt,
		ExpiresAt:          model.ExpiresAt,
		Version:            model.Version,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	})
}
