package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/persistence/mappers"
	"github.com/inferpay/inferpay/internal/infrastructure/persistence/models"
	"github.com/inferpay/inferpay/internal/shared/biztime"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	model, err := mappers.SessionToModel(s)
	if err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	s.SetID(model.ID)
	s.MarkStored()
	return nil
}

func (r *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	model, err := mappers.SessionToModel(s)
	if err != nil {
		return err
	}

	// Optimistic lock: the maintenance jobs bypass the coordinator, so two
	// writers can hold the same session. The stale one loses here.
	result := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ? AND version = ?", model.ID, s.StoredVersion()).
		Updates(map[string]interface{}{
			"ledger_session_id":   model.LedgerSessionID,
			"total_tokens":        model.TotalTokens,
			"total_cost":          model.TotalCost,
			"checkpoints_emitted": model.CheckpointsEmitted,
			"state":               model.State,
			"end_reason":          model.EndReason,
			"failure_reason":      model.FailureReason,
			"host_amount":         model.HostAmount,
			"treasury_amount":     model.TreasuryAmount,
			"settled_at":          model.SettledAt,
			"messages":            model.Messages,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewConflictError("session was modified concurrently",
			fmt.Sprintf("session %d at version %d", model.ID, s.StoredVersion()))
	}

	s.MarkStored()
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*session.Session, error) {
	var model models.SessionModel

	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("session not found", fmt.Sprintf("session %d", id))
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return mappers.SessionToDomain(&model)
}

func (r *SessionRepository) GetByLedgerSessionID(ctx context.Context, ledgerSessionID uint64) (*session.Session, error) {
	var model models.SessionModel

	err := r.db.WithContext(ctx).
		Where("ledger_session_id = ?", ledgerSessionID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("session not found", fmt.Sprintf("ledger session %d", ledgerSessionID))
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return mappers.SessionToDomain(&model)
}

func (r *SessionRepository) GetActiveByClientID(ctx context.Context, clientID string) (*session.Session, error) {
	var model models.SessionModel

	err := r.db.WithContext(ctx).
		Where("client_id = ? AND state = ?", clientID, string(vo.StateActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return mappers.SessionToDomain(&model)
}

func (r *SessionRepository) ListByClientID(ctx context.Context, clientID string) ([]*session.Session, error) {
	var rows []models.SessionModel

	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return r.toDomainList(rows)
}

func (r *SessionRepository) ListFailedWithRetainedSnapshots(ctx context.Context) ([]*session.Session, error) {
	var rows []models.SessionModel

	err := r.db.WithContext(ctx).
		Where("state = ? AND failure_reason LIKE ?", string(vo.StateFailed), "settlement%").
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed sessions: %w", err)
	}

	return r.toDomainList(rows)
}

func (r *SessionRepository) ListExpiredActive(ctx context.Context) ([]*session.Session, error) {
	var rows []models.SessionModel

	err := r.db.WithContext(ctx).
		Where("state = ? AND expires_at <= ?", string(vo.StateActive), biztime.NowUTC()).
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	return r.toDomainList(rows)
}

func (r *SessionRepository) toDomainList(rows []models.SessionModel) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(rows))
	for i := range rows {
		s, err := mappers.SessionToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
