package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntryModel is the database row for one key-value entry.
type KVEntryModel struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     []byte `gorm:"type:blob"`
	UpdatedAt time.Time
}

func (KVEntryModel) TableName() string {
	return "kv_entries"
}

// GormStore is a Store backed by the relational database, for deployments
// without Redis.
type GormStore struct {
	db     *gorm.DB
	prefix string
}

func NewGormStore(db *gorm.DB, prefix string) *GormStore {
	return &GormStore{db: db, prefix: prefix}
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var entry KVEntryModel
	err := s.db.WithContext(ctx).Where("`key` = ?", s.prefix+key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get kv entry: %w", err)
	}
	return entry.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte) error {
	entry := KVEntryModel{Key: s.prefix + key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to set kv entry: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Where("`key` = ?", s.prefix+key).Delete(&KVEntryModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}
