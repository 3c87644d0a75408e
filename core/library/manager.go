package library

import (
	"context"
	"encoding/json"
	"fmt"

	"DeckFM/cache"
	"DeckFM/core/provider"
	"DeckFM/logger"
	"DeckFM/model"
	"DeckFM/repository"
)

// Manager 聚合各提供方与本地歌单，负责联合歌单的物化。
type Manager struct {
	registry     *provider.Registry
	playlistRepo repository.CustomPlaylistRepository
	sourceRepo   repository.UnionSourceRepository
	store        *cache.Store
}

// NewManager creates a library manager.
func NewManager(registry *provider.Registry, playlistRepo repository.CustomPlaylistRepository,
	sourceRepo repository.UnionSourceRepository, store *cache.Store) *Manager {
	return &Manager{
		registry:     registry,
		playlistRepo: playlistRepo,
		sourceRepo:   sourceRepo,
		store:        store,
	}
}

// GetPlaylists returns playlists for one source, or for all sources when
// source is empty. 聚合时单个提供方失败只降级为局部结果，不拖垮整体。
func (m *Manager) GetPlaylists(ctx context.Context, source model.Source) ([]model.Playlist, error) {
	if source == model.SourceCustom {
		return m.customAsPlaylists()
	}
	if source != "" {
		p, err := m.registry.Get(source)
		if err != nil {
			return nil, err
		}
		return p.ListPlaylists(ctx)
	}

	all := make([]model.Playlist, 0)
	for _, p := range m.registry.All() {
		playlists, err := p.ListPlaylists(ctx)
		if err != nil {
			logger.Warn("Provider playlist listing failed, degrading to partial results",
				logger.String("source", string(p.Source())),
				logger.ErrorField(err))
			continue
		}
		all = append(all, playlists...)
	}
	custom, err := m.customAsPlaylists()
	if err != nil {
		// 本地库没有冗余数据源，错误不降级
		return nil, err
	}
	all = append(all, custom...)

	m.writeThrough(cache.KeyPlaylists, all)
	return all, nil
}

// customAsPlaylists 把自建歌单映射成公共 Playlist 形态
func (m *Manager) customAsPlaylists() ([]model.Playlist, error) {
	customs, err := m.playlistRepo.GetAll()
	if err != nil {
		return nil, err
	}
	playlists := make([]model.Playlist, 0, len(customs))
	for _, c := range customs {
		playlists = append(playlists, model.Playlist{
			ID:          c.ID,
			Name:        c.Name,
			Owner:       "local",
			TrackCount:  c.TrackCount,
			Source:      model.SourceCustom,
			Description: c.Description,
			ImageURL:    c.ImageURL,
		})
	}
	return playlists, nil
}

// writeThrough 聚合结果异步写入磁盘缓存，失败只记日志
func (m *Manager) writeThrough(key string, v interface{}) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to marshal cache write-through", logger.String("key", key), logger.ErrorField(err))
		return
	}
	if err := m.store.Write(key, data); err != nil {
		logger.Warn("Failed to write cache entry", logger.String("key", key), logger.ErrorField(err))
	}
}

// GetUnionTracks materializes a union playlist: each source playlist's tracks
// in source-position order, concatenated, per-source order preserved.
// 跨来源不去重——同一首歌出现在两个来源就出现两次，前端按原始数量渲染。
func (m *Manager) GetUnionTracks(ctx context.Context, unionPlaylistID string) ([]model.Track, error) {
	playlist, err := m.playlistRepo.GetByID(unionPlaylistID)
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("union playlist %s: %w", unionPlaylistID, model.ErrNotFound)
	}
	if playlist.PlaylistType != model.PlaylistTypeUnion {
		return nil, fmt.Errorf("playlist %s is not a union playlist: %w", unionPlaylistID, model.ErrValidation)
	}

	sources, err := m.sourceRepo.GetSources(unionPlaylistID)
	if err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0)
	for _, src := range sources {
		sourceTracks, err := m.ResolvePlaylistTracks(ctx, src.SourceType, src.SourcePlaylistID)
		if err != nil {
			logger.Warn("Union source fetch failed, skipping",
				logger.String("unionPlaylistId", unionPlaylistID),
				logger.String("sourceType", string(src.SourceType)),
				logger.String("sourcePlaylistId", src.SourcePlaylistID),
				logger.ErrorField(err))
			continue
		}
		tracks = append(tracks, sourceTracks...)
	}
	return tracks, nil
}

// ResolvePlaylistTracks returns the ordered track list of any playlist,
// regardless of where it lives.
func (m *Manager) ResolvePlaylistTracks(ctx context.Context, source model.Source, playlistID string) ([]model.Track, error) {
	if source == model.SourceCustom {
		playlist, err := m.playlistRepo.GetByID(playlistID)
		if err != nil {
			return nil, err
		}
		if playlist == nil {
			return nil, fmt.Errorf("custom playlist %s: %w", playlistID, model.ErrNotFound)
		}
		if playlist.PlaylistType == model.PlaylistTypeUnion {
			return m.GetUnionTracks(ctx, playlistID)
		}
		rows, err := m.playlistRepo.ListTracks(playlistID)
		if err != nil {
			return nil, err
		}
		tracks := make([]model.Track, 0, len(rows))
		for _, row := range rows {
			tracks = append(tracks, row.Track())
		}
		return tracks, nil
	}

	p, err := m.registry.Get(source)
	if err != nil {
		return nil, err
	}
	playlist, err := p.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return playlist.Tracks, nil
}

// SearchTracks searches one provider, or aggregates across all of them.
func (m *Manager) SearchTracks(ctx context.Context, source model.Source, query string) ([]model.Track, error) {
	if source != "" {
		p, err := m.registry.Get(source)
		if err != nil {
			return nil, err
		}
		return p.SearchTracks(ctx, query)
	}
	all := make([]model.Track, 0)
	for _, p := range m.registry.All() {
		tracks, err := p.SearchTracks(ctx, query)
		if err != nil {
			logger.Warn("Provider search failed, degrading to partial results",
				logger.String("source", string(p.Source())),
				logger.ErrorField(err))
			continue
		}
		all = append(all, tracks...)
	}
	return all, nil
}
