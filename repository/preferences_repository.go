package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"DeckFM/model"

	"gorm.io/gorm"
)

const columnPreferencesKey = "column_preferences"

// PreferencesRepository defines the interface for display preference persistence.
type PreferencesRepository interface {
	GetColumnPreferences() (*model.ColumnPreferences, error)
	SaveColumnPreferences(prefs *model.ColumnPreferences) error
}

// gormPreferencesRepository implements PreferencesRepository on GORM.
type gormPreferencesRepository struct {
	db *gorm.DB
}

// NewGormPreferencesRepository creates a new instance of gormPreferencesRepository.
func NewGormPreferencesRepository(db *gorm.DB) PreferencesRepository {
	return &gormPreferencesRepository{db: db}
}

// GetColumnPreferences 读取列偏好，没有存过时返回默认配置。
// 序列化必须精确往返，前端按原样回显。
func (r *gormPreferencesRepository) GetColumnPreferences() (*model.ColumnPreferences, error) {
	var record model.PreferenceRecord
	err := r.db.Where("key = ?", columnPreferencesKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.DefaultColumnPreferences(), nil
		}
		return nil, fmt.Errorf("failed to load column preferences: %w", err)
	}

	prefs := &model.ColumnPreferences{}
	if err := json.Unmarshal([]byte(record.Value), prefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal column preferences: %w", err)
	}
	if prefs.ColumnWidths == nil {
		prefs.ColumnWidths = map[string]int{}
	}
	return prefs, nil
}

// SaveColumnPreferences 整体覆盖写入列偏好
func (r *gormPreferencesRepository) SaveColumnPreferences(prefs *model.ColumnPreferences) error {
	if len(prefs.ColumnOrder) != len(prefs.Columns) {
		return fmt.Errorf("column order length %d does not match columns length %d: %w",
			len(prefs.ColumnOrder), len(prefs.Columns), model.ErrValidation)
	}
	// ColumnOrder 必须是 Columns 下标的一个排列
	seen := make(map[int]bool, len(prefs.ColumnOrder))
	for _, idx := range prefs.ColumnOrder {
		if idx < 0 || idx >= len(prefs.Columns) || seen[idx] {
			return fmt.Errorf("column order is not a permutation: %w", model.ErrValidation)
		}
		seen[idx] = true
	}

	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal column preferences: %w", err)
	}

	record := model.PreferenceRecord{Key: columnPreferencesKey, Value: string(data)}
	if err := r.db.Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save column preferences: %w", err)
	}
	return nil
}
