package repository

import (
	"fmt"
	"time"

	"DeckFM/model"

	"gorm.io/gorm"
)

// HistoryRepository defines the interface for local play history.
type HistoryRepository interface {
	Record(track model.Track) error
	Recent(limit int) ([]model.PlayHistory, error)
}

// gormHistoryRepository implements HistoryRepository on GORM.
type gormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository creates a new instance of gormHistoryRepository.
func NewGormHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

// Record 引擎每次开播写入一条历史
func (r *gormHistoryRepository) Record(track model.Track) error {
	entry := model.PlayHistory{
		TrackSource: track.Source,
		TrackID:     track.ID,
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       track.Album,
		ImageURL:    track.ImageURL,
		PlayedAt:    time.Now().Unix(),
	}
	if err := r.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record play history: %w", err)
	}
	return nil
}

// Recent 按时间倒序取最近播放
func (r *gormHistoryRepository) Recent(limit int) ([]model.PlayHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []model.PlayHistory
	if err := r.db.Order("played_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load play history: %w", err)
	}
	return entries, nil
}
