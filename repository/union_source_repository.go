package repository

import (
	"database/sql"
	"fmt"
	"time"

	"DeckFM/logger"
	"DeckFM/model"
)

// UnionSourceRepository defines the interface for union playlist source operations.
type UnionSourceRepository interface {
	AddSource(unionPlaylistID string, sourceType model.Source, sourcePlaylistID string) (*model.UnionPlaylistSource, error)
	RemoveSource(sourceID int64) error
	ReorderSource(unionPlaylistID string, sourceID int64, newPosition int) error
	GetSources(unionPlaylistID string) ([]*model.UnionPlaylistSource, error)
}

// sqliteUnionSourceRepository implements UnionSourceRepository for sqlite.
type sqliteUnionSourceRepository struct {
	DB *sql.DB
}

// NewSQLiteUnionSourceRepository creates a new instance of sqliteUnionSourceRepository.
func NewSQLiteUnionSourceRepository(db *sql.DB) UnionSourceRepository {
	return &sqliteUnionSourceRepository{DB: db}
}

// AddSource appends a source reference to a union playlist.
// 目标歌单必须是 union 类型，否则拒绝。
func (r *sqliteUnionSourceRepository) AddSource(unionPlaylistID string, sourceType model.Source, sourcePlaylistID string) (*model.UnionPlaylistSource, error) {
	if !sourceType.Valid() {
		return nil, fmt.Errorf("unknown source type %q: %w", sourceType, model.ErrValidation)
	}

	var ptype string
	err := r.DB.QueryRow(`SELECT playlist_type FROM custom_playlists WHERE id = ?`, unionPlaylistID).Scan(&ptype)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("playlist %s: %w", unionPlaylistID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to look up playlist type for %s: %w", unionPlaylistID, err)
	}
	if model.PlaylistType(ptype) != model.PlaylistTypeUnion {
		return nil, fmt.Errorf("playlist %s is not a union playlist: %w", unionPlaylistID, model.ErrValidation)
	}

	tx, err := r.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for AddSource: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM union_playlist_sources WHERE union_playlist_id = ?`,
		unionPlaylistID).Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to count sources for AddSource: %w", err)
	}

	res, err := tx.Exec(`INSERT INTO union_playlist_sources (union_playlist_id, source_type, source_playlist_id, position)
	                      VALUES (?, ?, ?, ?)`,
		unionPlaylistID, string(sourceType), sourcePlaylistID, next)
	if err != nil {
		return nil, fmt.Errorf("failed to execute AddSource: %w", err)
	}
	sourceID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for AddSource: %w", err)
	}

	if _, err := tx.Exec(`UPDATE custom_playlists SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), unionPlaylistID); err != nil {
		return nil, fmt.Errorf("failed to bump updated_at for AddSource: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit AddSource: %w", err)
	}

	logger.Info("Union source added",
		logger.String("unionPlaylistId", unionPlaylistID),
		logger.String("sourceType", string(sourceType)),
		logger.String("sourcePlaylistId", sourcePlaylistID),
		logger.Int("position", next))

	return &model.UnionPlaylistSource{
		ID:               sourceID,
		UnionPlaylistID:  unionPlaylistID,
		SourceType:       sourceType,
		SourcePlaylistID: sourcePlaylistID,
		Position:         next,
	}, nil
}

// RemoveSource deletes a source reference and re-packs positions from 0.
// 只解除引用，来源歌单本身不受影响。
func (r *sqliteUnionSourceRepository) RemoveSource(sourceID int64) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for RemoveSource: %w", err)
	}
	defer tx.Rollback()

	var unionPlaylistID string
	err = tx.QueryRow(`SELECT union_playlist_id FROM union_playlist_sources WHERE id = ?`, sourceID).Scan(&unionPlaylistID)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("union source %d: %w", sourceID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to look up union playlist for source %d: %w", sourceID, err)
	}

	if _, err := tx.Exec(`DELETE FROM union_playlist_sources WHERE id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to execute RemoveSource: %w", err)
	}
	if err := repackSourcePositions(tx, unionPlaylistID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE custom_playlists SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), unionPlaylistID); err != nil {
		return fmt.Errorf("failed to bump updated_at for RemoveSource: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit RemoveSource: %w", err)
	}
	return nil
}

// ReorderSource moves one source to newPosition with the same single-element
// move semantics as track reordering.
func (r *sqliteUnionSourceRepository) ReorderSource(unionPlaylistID string, sourceID int64, newPosition int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for ReorderSource: %w", err)
	}
	defer tx.Rollback()

	var oldPosition, count int
	err = tx.QueryRow(`SELECT position FROM union_playlist_sources WHERE id = ? AND union_playlist_id = ?`,
		sourceID, unionPlaylistID).Scan(&oldPosition)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("union source %d: %w", sourceID, model.ErrNotFound)
		}
		return fmt.Errorf("failed to look up position for source %d: %w", sourceID, err)
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM union_playlist_sources WHERE union_playlist_id = ?`,
		unionPlaylistID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count sources for ReorderSource: %w", err)
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
		_, err = tx.Exec(`UPDATE union_playlist_sources SET position = position - 1
		                   WHERE union_playlist_id = ? AND position > ? AND position <= ?`,
			unionPlaylistID, oldPosition, newPosition)
	} else {
		_, err = tx.Exec(`UPDATE union_playlist_sources SET position = position + 1
		                   WHERE union_playlist_id = ? AND position >= ? AND position < ?`,
			unionPlaylistID, newPosition, oldPosition)
	}
	if err != nil {
		return fmt.Errorf("failed to shift positions for ReorderSource: %w", err)
	}

	if _, err := tx.Exec(`UPDATE union_playlist_sources SET position = ? WHERE id = ?`, newPosition, sourceID); err != nil {
		return fmt.Errorf("failed to move source %d: %w", sourceID, err)
	}
	if _, err := tx.Exec(`UPDATE custom_playlists SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), unionPlaylistID); err != nil {
		return fmt.Errorf("failed to bump updated_at for ReorderSource: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ReorderSource: %w", err)
	}
	return nil
}

// GetSources retrieves the source references of a union playlist ordered by position.
func (r *sqliteUnionSourceRepository) GetSources(unionPlaylistID string) ([]*model.UnionPlaylistSource, error) {
	query := `SELECT id, union_playlist_id, source_type, source_playlist_id, position
	           FROM union_playlist_sources WHERE union_playlist_id = ? ORDER BY position ASC`
	rows, err := r.DB.Query(query, unionPlaylistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources for union playlist %s: %w", unionPlaylistID, err)
	}
	defer rows.Close()

	sources := make([]*model.UnionPlaylistSource, 0)
	for rows.Next() {
		s := &model.UnionPlaylistSource{}
		var sourceType string
		if err := rows.Scan(&s.ID, &s.UnionPlaylistID, &sourceType, &s.SourcePlaylistID, &s.Position); err != nil {
			return nil, fmt.Errorf("failed to scan source in GetSources: %w", err)
		}
		s.SourceType = model.Source(sourceType)
		sources = append(sources, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetSources: %w", err)
	}
	return sources, nil
}

// repackSourcePositions renumbers the remaining sources of a union playlist from 0.
func repackSourcePositions(tx *sql.Tx, unionPlaylistID string) error {
	rows, err := tx.Query(`SELECT id FROM union_playlist_sources WHERE union_playlist_id = ? ORDER BY position ASC`, unionPlaylistID)
	if err != nil {
		return fmt.Errorf("failed to query sources for repack: %w", err)
	}
	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan source ID for repack: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during rows iteration in source repack: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE union_playlist_sources SET position = ? WHERE id = ?`, i, id); err != nil {
			return fmt.Errorf("failed to repack position for source %d: %w", id, err)
		}
	}
	return nil
}
