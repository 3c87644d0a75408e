package repository

import (
	"errors"
	"testing"

	"DeckFM/model"
)

func TestUnionSourceRepository(t *testing.T) {
	t.Run("AddSourceAppends", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		union := mustCreatePlaylist(t, playlists, "Everything", model.PlaylistTypeUnion)

		s1, err := repo.AddSource(union.ID, model.SourceSpotify, "sp-1")
		if err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		s2, err := repo.AddSource(union.ID, model.SourceJellyfin, "jf-1")
		if err != nil {
			t.Fatalf("failed to add source: %v", err)
		}

		if s1.Position != 0 || s2.Position != 1 {
			t.Errorf("expected positions 0 and 1, got %d and %d", s1.Position, s2.Position)
		}
	})

	t.Run("AddSourceRejectsStandardPlaylist", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		standard := mustCreatePlaylist(t, playlists, "Plain", model.PlaylistTypeStandard)

		_, err := repo.AddSource(standard.ID, model.SourceSpotify, "sp-1")
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("AddSourceRejectsUnknownType", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		union := mustCreatePlaylist(t, playlists, "Everything", model.PlaylistTypeUnion)

		_, err := repo.AddSource(union.ID, model.Source("soundcloud"), "sc-1")
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("AddSourceMissingPlaylist", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		repo := NewSQLiteUnionSourceRepository(conn)
		_, err := repo.AddSource("no-such-id", model.SourceSpotify, "sp-1")
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RemoveSourceRepacks", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		union := mustCreatePlaylist(t, playlists, "Everything", model.PlaylistTypeUnion)

		ids := make([]int64, 0, 3)
		for _, sp := range []string{"sp-1", "sp-2", "sp-3"} {
			s, err := repo.AddSource(union.ID, model.SourceSpotify, sp)
			if err != nil {
				t.Fatalf("failed to add source %s: %v", sp, err)
			}
			ids = append(ids, s.ID)
		}

		if err := repo.RemoveSource(ids[0]); err != nil {
			t.Fatalf("failed to remove source: %v", err)
		}

		sources, err := repo.GetSources(union.ID)
		if err != nil {
			t.Fatalf("failed to get sources: %v", err)
		}
		if len(sources) != 2 {
			t.Fatalf("expected 2 sources, got %d", len(sources))
		}
		for i, s := range sources {
			if s.Position != i {
				t.Errorf("source at index %d: expected position %d, got %d", i, i, s.Position)
			}
		}
		if sources[0].SourcePlaylistID != "sp-2" || sources[1].SourcePlaylistID != "sp-3" {
			t.Errorf("unexpected order after remove: %s, %s",
				sources[0].SourcePlaylistID, sources[1].SourcePlaylistID)
		}

		// 来源歌单本身不受影响：这里只有引用行被删
		if err := repo.RemoveSource(ids[0]); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second remove, got %v", err)
		}
	})

	t.Run("ReorderSource", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		union := mustCreatePlaylist(t, playlists, "Everything", model.PlaylistTypeUnion)

		ids := make([]int64, 0, 3)
		for _, sp := range []string{"sp-1", "sp-2", "sp-3"} {
			s, err := repo.AddSource(union.ID, model.SourceSpotify, sp)
			if err != nil {
				t.Fatalf("failed to add source %s: %v", sp, err)
			}
			ids = append(ids, s.ID)
		}

		if err := repo.ReorderSource(union.ID, ids[2], 0); err != nil {
			t.Fatalf("failed to reorder source: %v", err)
		}

		sources, err := repo.GetSources(union.ID)
		if err != nil {
			t.Fatalf("failed to get sources: %v", err)
		}
		wantOrder := []string{"sp-3", "sp-1", "sp-2"}
		for i, s := range sources {
			if s.SourcePlaylistID != wantOrder[i] {
				t.Errorf("index %d: expected %s, got %s", i, wantOrder[i], s.SourcePlaylistID)
			}
			if s.Position != i {
				t.Errorf("index %d: expected position %d, got %d", i, i, s.Position)
			}
		}
	})

	t.Run("DeleteUnionCascadesSources", func(t *testing.T) {
		conn := setupTestDB(t)
		defer conn.Close()

		playlists := NewSQLiteCustomPlaylistRepository(conn)
		repo := NewSQLiteUnionSourceRepository(conn)
		union := mustCreatePlaylist(t, playlists, "Everything", model.PlaylistTypeUnion)

		if _, err := repo.AddSource(union.ID, model.SourceSpotify, "sp-1"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		if err := playlists.Delete(union.ID); err != nil {
			t.Fatalf("failed to delete union playlist: %v", err)
		}

		var count int
		if err := conn.QueryRow(`SELECT COUNT(*) FROM union_playlist_sources WHERE union_playlist_id = ?`, union.ID).Scan(&count); err != nil {
			t.Fatalf("failed to count sources: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 orphan source rows, got %d", count)
		}
	})
}
