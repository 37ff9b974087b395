package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is the row backing one key.
type Entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:191"`
	Value     string    `gorm:"column:entry_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Entry) TableName() string { return "kv_entries" }

// SQL is a file- or server-backed medium for non-browser targets.
type SQL struct{ db *gorm.DB }

func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&Entry{Key: key, Value: value}).Error
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error
}

func (s *SQL) Keys(ctx context.Context, prefix string) ([]string, error) {
	var rows []string
	err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("entry_key LIKE ?", prefix+"%").
		Order("entry_key").
		Pluck("entry_key", &rows).Error
	if err != nil {
		return nil, err
	}
	// LIKE treats % and _ in prefix as wildcards
	keys := rows[:0]
	for _, k := range rows {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *SQL) CompareAndSwap(ctx context.Context, key, prev string, prevOK bool, next string) (bool, error) {
	tx := s.db.WithContext(ctx)
	if !prevOK {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Entry{Key: key, Value: next})
		return res.RowsAffected == 1, res.Error
	}
	res := tx.Model(&Entry{}).
		Where("entry_key = ? AND entry_value = ?", key, prev).
		Updates(map[string]any{"entry_value": next, "updated_at": time.Now()})
	return res.RowsAffected == 1, res.Error
}
