package repository

import (
	"database/sql"
	"fmt"
	"time"

	"DeckFM/logger"
	"DeckFM/model"

	"github.com/google/uuid"
)

// CustomPlaylistRepository defines the interface for custom playlist data operations.
type CustomPlaylistRepository interface {
	Create(playlist *model.CustomPlaylist) error
	GetByID(id string) (*model.CustomPlaylist, error)
	GetAll() ([]*model.CustomPlaylist, error)
	Update(id string, name, description, imageURL *string) error
	Delete(id string) error

	AddTrack(playlistID string, track model.Track) (*model.PlaylistTrack, error)
	RemoveTrack(trackRowID int64) error
	ReorderTrack(playlistID string, trackRowID int64, newPosition int) error
	ListTracks(playlistID string) ([]*model.PlaylistTrack, error)
}

// sqliteCustomPlaylistRepository implements CustomPlaylistRepository for sqlite.
type sqliteCustomPlaylistRepository struct {
	DB *sql.DB
}

// NewSQLiteCustomPlaylistRepository creates a new instance of sqliteCustomPlaylistRepository.
func NewSQLiteCustomPlaylistRepository(db *sql.DB) CustomPlaylistRepository {
	return &sqliteCustomPlaylistRepository{DB: db}
}

// Create adds a new custom playlist. 未指定 ID 时自动生成。
func (r *sqliteCustomPlaylistRepository) Create(playlist *model.CustomPlaylist) error {
	if playlist.ID == "" {
		playlist.ID = uuid.NewString()
	}
	if playlist.PlaylistType == "" {
		playlist.PlaylistType = model.PlaylistTypeStandard
	}
	now := time.Now().Unix()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	query := `INSERT INTO custom_playlists (id, name, description, image_url, playlist_type, track_count, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, 0, ?, ?)`
	_, err := r.DB.Exec(query, playlist.ID, playlist.Name, playlist.Description,
		playlist.ImageURL, string(playlist.PlaylistType), now, now)
	if err != nil {
		return fmt.Errorf("failed to execute Create for playlist %q: %w", playlist.Name, err)
	}
	logger.Info("Custom playlist created",
		logger.String("id", playlist.ID),
		logger.String("name", playlist.Name),
		logger.String("type", string(playlist.PlaylistType)))
	return nil
}

// GetByID retrieves a custom playlist by its ID. Returns nil when not found.
func (r *sqliteCustomPlaylistRepository) GetByID(id string) (*model.CustomPlaylist, error) {
	query := `SELECT id, name, description, image_url, playlist_type, track_count, created_at, updated_at
	           FROM custom_playlists WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	playlist := &model.CustomPlaylist{}
	var ptype string
	err := row.Scan(&playlist.ID, &playlist.Name, &playlist.Description, &playlist.ImageURL,
		&ptype, &playlist.TrackCount, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan playlist by ID %s: %w", id, err)
	}
	playlist.PlaylistType = model.PlaylistType(ptype)
	return playlist, nil
}

// GetAll retrieves all custom playlists, newest first.
func (r *sqliteCustomPlaylistRepository) GetAll() ([]*model.CustomPlaylist, error) {
	query := `SELECT id, name, description, image_url, playlist_type, track_count, created_at, updated_at
	           FROM custom_playlists ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom playlists: %w", err)
	}
	defer rows.Close()

	playlists := make([]*model.CustomPlaylist, 0)
	for rows.Next() {
		playlist := &model.CustomPlaylist{}
		var ptype string
		if err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.Description, &playlist.ImageURL,
			&ptype, &playlist.TrackCount, &playlist.CreatedAt, &playlist.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan playlist in GetAll: %w", err)
		}
		playlist.PlaylistType = model.PlaylistType(ptype)
		playlists = append(playlists, playlist)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAll: %w", err)
	}
	return playlists, nil
}

// Update applies a partial update: nil 字段表示保持不变。
func (r *sqliteCustomPlaylistRepository) Update(id string, name, description, imageURL *string) error {
	existing, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("playlist %s: %w", id, model.ErrNotFound)
	}

	newName := existing.Name
	if name != nil {
		newName = *name
	}
	newDescription := existing.Description
	if description != nil {
		newDescription = *description
	}
	newImageURL := existing.ImageURL
	if imageURL != nil {
		newImageURL = *imageURL
	}

	query := `UPDATE custom_playlists SET name = ?, description = ?, image_url = ?, updated_at = ? WHERE id = ?`
	_, err = r.DB.Exec(query, newName, newDescription, newImageURL, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to execute Update for playlist %s: %w", id, err)
	}
	return nil
}

// Delete removes a playlist. 成员行和联合来源行由外键级联删除。
func (r *sqliteCustomPlaylistRepository) Delete(id string) error {
	res, err := r.DB.Exec(`DELETE FROM custom_playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to execute Delete for playlist %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for Delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("playlist %s: %w", id, model.ErrNotFound)
	}
	logger.Info("Custom playlist deleted", logger.String("id", id))
	return nil
}

// AddTrack appends a track at the next dense position.
func (r *sqliteCustomPlaylistRepository) AddTrack(playlistID string, track model.Track) (*model.PlaylistTrack, error) {
	playlist, err := r.GetByID(playlistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("playlist %s: %w", playlistID, model.ErrNotFound)
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for AddTrack: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, playlistID).Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to count tracks for AddTrack: %w", err)
	}

	now := time.Now().Unix()
	res, err := tx.Exec(`INSERT INTO playlist_tracks (playlist_id, track_source, track_id, position, added_at, title, artist, album, duration_ms, image_url)
	                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		playlistID, string(track.Source), track.ID, next, now,
		track.Title, track.Artist, track.Album, track.DurationMs, track.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute AddTrack: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for AddTrack: %w", err)
	}

	if err := recountTracks(tx, playlistID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit AddTrack: %w", err)
	}

	return &model.PlaylistTrack{
		ID:          rowID,
		PlaylistID:  playlistID,
		TrackSource: track.Source,
		TrackID:     track.ID,
		Position:    next,
		AddedAt:     now,
		Title:       track.Title,
		Artist:      track.Artist,
		Album:       track.Album,
		DurationMs:  track.DurationMs,
		ImageURL:    track.ImageURL,
	}, nil
}

// RemoveTrack deletes a membership row and re-packs the remaining positions.
func (r *sqliteCustomPlaylistRepository) RemoveTrack(trackRowID int64) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for RemoveTrack: %w", err)
	}
	defer tx.Rollback()

	var playlistID string
	err = tx.QueryRow(`SELECT playlist_id FROM playlist_tracks WHERE id = ?`, trackRowID).Scan(&playlistID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("playlist track %d: %w", trackRowID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to look up playlist for track %d: %w", trackRowID, err)
	}

	if _, err := tx.Exec(`DELETE FROM playlist_tracks WHERE id = ?`, trackRowID); err != nil {
		return fmt.Errorf("failed to execute RemoveTrack: %w", err)
	}
	if err := repackTrackPositions(tx, playlistID); err != nil {
		return err
	}
	if err := recountTracks(tx, playlistID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit RemoveTrack: %w", err)
	}
	return nil
}

// ReorderTrack moves one row to newPosition, shifting rows between old and new
// position by one slot. 单元素移动，不是整表重排。
func (r *sqliteCustomPlaylistRepository) ReorderTrack(playlistID string, trackRowID int64, newPosition int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for ReorderTrack: %w", err)
	}
	defer tx.Rollback()

	var oldPosition, count int
	err = tx.QueryRow(`SELECT position FROM playlist_tracks WHERE id = ? AND playlist_id = ?`,
		trackRowID, playlistID).Scan(&oldPosition)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("playlist track %d: %w", trackRowID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to look up position for track %d: %w", trackRowID, err)
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?`, playlistID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count tracks for ReorderTrack: %w", err)
	}

	if newPosition < 0 {
		newPosition = 0
	}
	if newPosition > count-1 {
		newPosition = count - 1
	}
	if newPosition == oldPosition {
		return tx.Commit()
	}

	if newPosition > oldPosition {
		// 向后移动：中间的行整体前移一格
		_, err = tx.Exec(`UPDATE playlist_tracks SET position = position - 1
		                   WHERE playlist_id = ? AND position > ? AND position <= ?`,
			playlistID, oldPosition, newPosition)
	} else {
		// 向前移动：中间的行整体后移一格
		_, err = tx.Exec(`UPDATE playlist_tracks SET position = position + 1
		                   WHERE playlist_id = ? AND position >= ? AND position < ?`,
			playlistID, newPosition, oldPosition)
	}
	if err != nil {
		return fmt.Errorf("failed to shift positions for ReorderTrack: %w", err)
	}

	if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE id = ?`, newPosition, trackRowID); err != nil {
		return fmt.Errorf("failed to move track %d: %w", trackRowID, err)
	}

	if _, err := tx.Exec(`UPDATE custom_playlists SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), playlistID); err != nil {
		return fmt.Errorf("failed to bump updated_at for ReorderTrack: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ReorderTrack: %w", err)
	}
	return nil
}

// ListTracks retrieves the membership rows of a playlist ordered by position.
func (r *sqliteCustomPlaylistRepository) ListTracks(playlistID string) ([]*model.PlaylistTrack, error) {
	query := `SELECT id, playlist_id, track_source, track_id, position, added_at, title, artist, album, duration_ms, image_url
	           FROM playlist_tracks WHERE playlist_id = ? ORDER BY position ASC`
	rows, err := r.DB.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for playlist %s: %w", playlistID, err)
	}
	defer rows.Close()

	tracks := make([]*model.PlaylistTrack, 0)
	for rows.Next() {
		pt := &model.PlaylistTrack{}
		var source string
		if err := rows.Scan(&pt.ID, &pt.PlaylistID, &source, &pt.TrackID, &pt.Position, &pt.AddedAt,
			&pt.Title, &pt.Artist, &pt.Album, &pt.DurationMs, &pt.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan track in ListTracks: %w", err)
		}
		pt.TrackSource = model.Source(source)
		tracks = append(tracks, pt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in ListTracks: %w", err)
	}
	return tracks, nil
}

// repackTrackPositions renumbers the remaining rows of a playlist from 0 with no gaps.
func repackTrackPositions(tx *sql.Tx, playlistID string) error {
	rows, err := tx.Query(`SELECT id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position ASC`, playlistID)
	if err != nil {
		return fmt.Errorf("failed to query rows for repack: %w", err)
	}
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan row ID for repack: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during rows iteration in repack: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE playlist_tracks SET position = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("failed to repack position for row %d: %w", id, err)
		}
	}
	return nil
}

// recountTracks 重新统计 track_count 并刷新 updated_at。
// 数量永远重算，不做增量维护，避免漂移。
func recountTracks(tx *sql.Tx, playlistID string) error {
	_, err := tx.Exec(`UPDATE custom_playlists
	                    SET track_count = (SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = ?),
	                        updated_at = ?
	                    WHERE id = ?`, playlistID, time.Now().Unix(), playlistID)
	if err != nil {
		return fmt.Errorf("failed to recount tracks for playlist %s: %w", playlistID, err)
	}
	return nil
}
