package db

import (
	"database/sql"
	"fmt"

	"DeckFM/config"
	"DeckFM/logger"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the local sqlite database.
func ConnectDB(cfg *config.Config) error {
	return ConnectDBAt(cfg.DBPath)
}

// ConnectDBAt opens the sqlite database at the given path.
// 测试里用 ":memory:" 建临时库。
func ConnectDBAt(path string) error {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)

	var err error
	DB, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	// sqlite 是单写库，限制连接数避免 database is locked
	DB.SetMaxOpenConns(1)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to the sqlite database", logger.String("path", path))
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := InitSchema(DB); err != nil {
		return err
	}
	logger.Info("Database initialization completed.")
	return nil
}

// InitSchema applies the schema to the given connection.
func InitSchema(conn *sql.DB) error {
	if err := createCustomPlaylistsTable(conn); err != nil {
		return err
	}
	if err := createPlaylistTracksTable(conn); err != nil {
		return err
	}
	return createUnionSourcesTable(conn)
}

func createCustomPlaylistsTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS custom_playlists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		playlist_type TEXT NOT NULL DEFAULT 'standard',
		track_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create custom_playlists table: %w", err)
	}
	return nil
}

func createPlaylistTracksTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS playlist_tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id TEXT NOT NULL,
		track_source TEXT NOT NULL,
		track_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		added_at INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		artist TEXT NOT NULL DEFAULT '',
		album TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		CONSTRAINT fk_playlist_tracks FOREIGN KEY (playlist_id)
			REFERENCES custom_playlists(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist
		ON playlist_tracks(playlist_id, position);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create playlist_tracks table: %w", err)
	}
	return nil
}

func createUnionSourcesTable(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS union_playlist_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		union_playlist_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_playlist_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		CONSTRAINT fk_union_sources FOREIGN KEY (union_playlist_id)
			REFERENCES custom_playlists(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_union_sources_playlist
		ON union_playlist_sources(union_playlist_id, position);
	`
	if _, err := conn.Exec(query); err != nil {
		return fmt.Errorf("failed to create union_playlist_sources table: %w", err)
	}
	return nil
}
