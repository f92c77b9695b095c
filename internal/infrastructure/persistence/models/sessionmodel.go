package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionModel struct {
	ID                 uint    `gorm:"primaryKey"`
	LedgerSessionID    uint64  `gorm:"index"`
	ClientID           string  `gorm:"index;size:64;not null"`
	HostAddress        string  `gorm:"size:64;not null"`
	Model              string  `gorm:"size:64;not null"`
	PaymentToken       string  `gorm:"size:16;not null"`
	PricePerToken      int64   `gorm:"not null"`
	DepositAmount      int64   `gorm:"not null"`
	TotalTokens        int64   `gorm:"not null;default:0"`
	TotalCost          int64   `gorm:"not null;default:0"`
	CheckpointsEmitted int     `gorm:"not null;default:0"`
	State              string  `gorm:"size:20;not null;index"`
	EndReason          *string `gorm:"size:255"`
	FailureReason      *string `gorm:"size:255"`
	HostAmount         *int64
	TreasuryAmount     *int64
	SettledAt          *time.Time
	Messages           datatypes.JSON `gorm:"type:json"`
	OpenedAt           time.Time      `gorm:"not null"`
	ExpiresAt          time.Time      `gorm:"not null;index"`
	Version            int            `gorm:"default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (SessionModel) TableName() string {
	return "sessions"
}
