package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"DeckFM/core/provider"
	"DeckFM/db"
	"DeckFM/model"
	"DeckFM/repository"
)

// fakeProvider 内存提供方，含可注入的失败
type fakeProvider struct {
	source    model.Source
	playlists map[string]*model.Playlist
	fail      bool
}

func (f *fakeProvider) Source() model.Source { return f.source }

func (f *fakeProvider) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	if f.fail {
		return nil, fmt.Errorf("provider %s down: %w", f.source, model.ErrTransient)
	}
	out := make([]model.Playlist, 0, len(f.playlists))
	for _, p := range f.playlists {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProvider) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	if f.fail {
		return nil, fmt.Errorf("provider %s down: %w", f.source, model.ErrTransient)
	}
	p, ok := f.playlists[id]
	if !ok {
		return nil, fmt.Errorf("playlist %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (f *fakeProvider) SearchTracks(ctx context.Context, query string) ([]model.Track, error) {
	if f.fail {
		return nil, fmt.Errorf("provider %s down: %w", f.source, model.ErrTransient)
	}
	tracks := make([]model.Track, 0)
	for _, p := range f.playlists {
		tracks = append(tracks, p.Tracks...)
	}
	return tracks, nil
}

func providerTrack(source model.Source, id string) model.Track {
	return model.Track{ID: id, Title: "Track " + id, Source: source}
}

func newFakeProvider(source model.Source, playlistID string, trackIDs ...string) *fakeProvider {
	tracks := make([]model.Track, 0, len(trackIDs))
	for _, id := range trackIDs {
		tracks = append(tracks, providerTrack(source, id))
	}
	return &fakeProvider{
		source: source,
		playlists: map[string]*model.Playlist{
			playlistID: {
				ID:         playlistID,
				Name:       "Playlist " + playlistID,
				Source:     source,
				TrackCount: len(tracks),
				Tracks:     tracks,
			},
		},
	}
}

type testEnv struct {
	manager  *Manager
	conn     *sql.DB
	playlist repository.CustomPlaylistRepository
	sources  repository.UnionSourceRepository
	spotify  *fakeProvider
	jellyfin *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	if err := db.InitSchema(conn); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	spotify := newFakeProvider(model.SourceSpotify, "sp-pl", "s1", "s2")
	jellyfin := newFakeProvider(model.SourceJellyfin, "jf-pl", "j1")

	registry := provider.NewRegistry()
	registry.Register(spotify)
	registry.Register(jellyfin)

	playlistRepo := repository.NewSQLiteCustomPlaylistRepository(conn)
	sourceRepo := repository.NewSQLiteUnionSourceRepository(conn)

	return &testEnv{
		manager:  NewManager(registry, playlistRepo, sourceRepo, nil),
		conn:     conn,
		playlist: playlistRepo,
		sources:  sourceRepo,
		spotify:  spotify,
		jellyfin: jellyfin,
	}
}

func TestGetPlaylists(t *testing.T) {
	t.Run("SingleSource", func(t *testing.T) {
		env := newTestEnv(t)
		playlists, err := env.manager.GetPlaylists(context.Background(), model.SourceSpotify)
		if err != nil {
			t.Fatalf("failed to get playlists: %v", err)
		}
		if len(playlists) != 1 || playlists[0].ID != "sp-pl" {
			t.Errorf("unexpected playlists: %+v", playlists)
		}
	})

	t.Run("AggregateIncludesCustom", func(t *testing.T) {
		env := newTestEnv(t)
		local := &model.CustomPlaylist{Name: "Mine"}
		if err := env.playlist.Create(local); err != nil {
			t.Fatalf("failed to create custom playlist: %v", err)
		}

		playlists, err := env.manager.GetPlaylists(context.Background(), "")
		if err != nil {
			t.Fatalf("failed to aggregate: %v", err)
		}
		if len(playlists) != 3 {
			t.Fatalf("expected 3 playlists (2 providers + 1 custom), got %d", len(playlists))
		}
	})

	t.Run("ProviderFailureDegradesToPartial", func(t *testing.T) {
		env := newTestEnv(t)
		env.spotify.fail = true

		playlists, err := env.manager.GetPlaylists(context.Background(), "")
		if err != nil {
			t.Fatalf("aggregate must degrade, not fail: %v", err)
		}
		for _, p := range playlists {
			if p.Source == model.SourceSpotify {
				t.Errorf("failed provider must be absent, got %+v", p)
			}
		}
	})

	t.Run("UnknownSourceRejected", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.manager.GetPlaylists(context.Background(), model.Source("tidal"))
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestResolvePlaylistTracks(t *testing.T) {
	t.Run("ProviderPlaylist", func(t *testing.T) {
		env := newTestEnv(t)
		tracks, err := env.manager.ResolvePlaylistTracks(context.Background(), model.SourceSpotify, "sp-pl")
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(tracks))
		}
	})

	t.Run("CustomStandardPlaylist", func(t *testing.T) {
		env := newTestEnv(t)
		local := &model.CustomPlaylist{Name: "Mine"}
		if err := env.playlist.Create(local); err != nil {
			t.Fatalf("failed to create custom playlist: %v", err)
		}
		for _, id := range []string{"c1", "c2"} {
			if _, err := env.playlist.AddTrack(local.ID, providerTrack(model.SourceSpotify, id)); err != nil {
				t.Fatalf("failed to add track: %v", err)
			}
		}

		tracks, err := env.manager.ResolvePlaylistTracks(context.Background(), model.SourceCustom, local.ID)
		if err != nil {
			t.Fatalf("failed to resolve: %v", err)
		}
		if len(tracks) != 2 || tracks[0].ID != "c1" || tracks[1].ID != "c2" {
			t.Errorf("unexpected tracks: %+v", tracks)
		}
	})

	t.Run("MissingCustomPlaylist", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.manager.ResolvePlaylistTracks(context.Background(), model.SourceCustom, "no-such-id")
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestGetUnionTracks(t *testing.T) {
	newUnion := func(t *testing.T, env *testEnv) *model.CustomPlaylist {
		t.Helper()
		union := &model.CustomPlaylist{Name: "Everything", PlaylistType: model.PlaylistTypeUnion}
		if err := env.playlist.Create(union); err != nil {
			t.Fatalf("failed to create union playlist: %v", err)
		}
		return union
	}

	t.Run("ConcatenatesInSourceOrder", func(t *testing.T) {
		env := newTestEnv(t)
		union := newUnion(t, env)
		if _, err := env.sources.AddSource(union.ID, model.SourceJellyfin, "jf-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		if _, err := env.sources.AddSource(union.ID, model.SourceSpotify, "sp-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}

		tracks, err := env.manager.GetUnionTracks(context.Background(), union.ID)
		if err != nil {
			t.Fatalf("failed to materialize union: %v", err)
		}
		wantOrder := []string{"j1", "s1", "s2"}
		if len(tracks) != len(wantOrder) {
			t.Fatalf("expected %d tracks, got %d", len(wantOrder), len(tracks))
		}
		for i, id := range wantOrder {
			if tracks[i].ID != id {
				t.Errorf("index %d: expected %s, got %s", i, id, tracks[i].ID)
			}
		}
	})

	t.Run("PreservesDuplicatesAcrossSources", func(t *testing.T) {
		env := newTestEnv(t)
		union := newUnion(t, env)
		// 同一个来源歌单挂两次：重复曲目全保留
		if _, err := env.sources.AddSource(union.ID, model.SourceSpotify, "sp-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		if _, err := env.sources.AddSource(union.ID, model.SourceSpotify, "sp-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}

		tracks, err := env.manager.GetUnionTracks(context.Background(), union.ID)
		if err != nil {
			t.Fatalf("failed to materialize union: %v", err)
		}
		if len(tracks) != 4 {
			t.Errorf("duplicates must be preserved, expected 4 tracks, got %d", len(tracks))
		}
	})

	t.Run("FailedSourceSkipped", func(t *testing.T) {
		env := newTestEnv(t)
		union := newUnion(t, env)
		if _, err := env.sources.AddSource(union.ID, model.SourceSpotify, "sp-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		if _, err := env.sources.AddSource(union.ID, model.SourceJellyfin, "jf-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}
		env.spotify.fail = true

		tracks, err := env.manager.GetUnionTracks(context.Background(), union.ID)
		if err != nil {
			t.Fatalf("union must degrade on source failure: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "j1" {
			t.Errorf("expected only the healthy source's tracks, got %+v", tracks)
		}
	})

	t.Run("NestedUnionResolvesThroughCustomSource", func(t *testing.T) {
		env := newTestEnv(t)
		inner := newUnion(t, env)
		if _, err := env.sources.AddSource(inner.ID, model.SourceJellyfin, "jf-pl"); err != nil {
			t.Fatalf("failed to add source: %v", err)
		}

		outer := newUnion(t, env)
		if _, err := env.sources.AddSource(outer.ID, model.SourceCustom, inner.ID); err != nil {
			t.Fatalf("failed to add nested source: %v", err)
		}

		tracks, err := env.manager.GetUnionTracks(context.Background(), outer.ID)
		if err != nil {
			t.Fatalf("failed to materialize nested union: %v", err)
		}
		if len(tracks) != 1 || tracks[0].ID != "j1" {
			t.Errorf("expected the inner union's tracks, got %+v", tracks)
		}
	})

	t.Run("RejectsStandardPlaylist", func(t *testing.T) {
		env := newTestEnv(t)
		standard := &model.CustomPlaylist{Name: "Plain"}
		if err := env.playlist.Create(standard); err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		_, err := env.manager.GetUnionTracks(context.Background(), standard.ID)
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestSearchTracksAggregates(t *testing.T) {
	env := newTestEnv(t)
	env.jellyfin.fail = true

	tracks, err := env.manager.SearchTracks(context.Background(), "", "anything")
	if err != nil {
		t.Fatalf("aggregate search must degrade: %v", err)
	}
	if len(tracks) != 2 {
		t.Errorf("expected the healthy provider's 2 tracks, got %d", len(tracks))
	}
}
