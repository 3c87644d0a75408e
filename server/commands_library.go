package server

import (
	"context"
	"encoding/json"
	"fmt"

	"DeckFM/cache"
	"DeckFM/model"
)

// 列表/搜索、自建与联合歌单、偏好和缓存命令
func (h *APIHandler) registerLibraryCommands() {
	// ---------- 列表与搜索 ----------
	h.commands["get_playlists"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		source := ""
		if s := args.optionalString("source"); s != nil {
			source = *s
		}
		return h.library.GetPlaylists(ctx, model.Source(source))
	}
	h.commands["get_spotify_playlists"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.spotify.ListPlaylists(ctx)
	}
	h.commands["get_spotify_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		id, err := args.getString("id")
		if err != nil {
			return nil, err
		}
		return h.spotify.GetPlaylist(ctx, id)
	}
	h.commands["get_jellyfin_playlists"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.jellyfin.ListPlaylists(ctx)
	}
	h.commands["get_jellyfin_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		id, err := args.getString("id")
		if err != nil {
			return nil, err
		}
		return h.jellyfin.GetPlaylist(ctx, id)
	}
	h.commands["search_spotify_tracks"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		query, err := args.getString("query")
		if err != nil {
			return nil, err
		}
		return h.spotify.SearchTracks(ctx, query)
	}
	h.commands["search_jellyfin_tracks"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		query, err := args.getString("query")
		if err != nil {
			return nil, err
		}
		return h.jellyfin.SearchTracks(ctx, query)
	}
	h.commands["search_jellyfin_playlists"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		query, err := args.getString("query")
		if err != nil {
			return nil, err
		}
		return h.jellyfin.SearchPlaylists(ctx, query)
	}
	h.commands["get_jellyfin_recently_played"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.jellyfin.RecentlyPlayed(ctx, args.optionalInt("limit", 20))
	}
	h.commands["get_local_recently_played"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.historyRepo.Recent(args.optionalInt("limit", 20))
	}

	// ---------- 自建歌单 ----------
	h.commands["create_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		name, err := args.getString("name")
		if err != nil {
			return nil, err
		}
		playlist := &model.CustomPlaylist{
			Name:         name,
			PlaylistType: model.PlaylistTypeStandard,
		}
		if s := args.optionalString("description"); s != nil {
			playlist.Description = *s
		}
		if s := args.optionalString("imageUrl"); s != nil {
			playlist.ImageURL = *s
		}
		if err := h.playlistRepo.Create(playlist); err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return playlist, nil
	}
	h.commands["get_custom_playlists"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.playlistRepo.GetAll()
	}
	h.commands["get_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		playlist, err := h.playlistRepo.GetByID(playlistID)
		if err != nil {
			return nil, err
		}
		if playlist == nil {
			return nil, fmt.Errorf("playlist %s: %w", playlistID, model.ErrNotFound)
		}
		return playlist, nil
	}
	h.commands["update_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		// 缺省字段表示保持不变（部分更新，不是整体替换）
		err = h.playlistRepo.Update(playlistID,
			args.optionalString("name"),
			args.optionalString("description"),
			args.optionalString("imageUrl"))
		if err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return h.playlistRepo.GetByID(playlistID)
	}
	h.commands["delete_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		if err := h.playlistRepo.Delete(playlistID); err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return nil, nil
	}
	h.commands["add_track_to_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		track := model.Track{}
		if err := args.decode("track", &track); err != nil {
			return nil, err
		}
		if !track.Source.Valid() {
			return nil, fmt.Errorf("unknown track source %q: %w", track.Source, model.ErrValidation)
		}
		row, err := h.playlistRepo.AddTrack(playlistID, track)
		if err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return row, nil
	}
	h.commands["get_custom_playlist_tracks"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		return h.playlistRepo.ListTracks(playlistID)
	}
	h.commands["remove_track_from_custom_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		trackID, err := args.getInt64("trackId")
		if err != nil {
			return nil, err
		}
		if err := h.playlistRepo.RemoveTrack(trackID); err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return nil, nil
	}
	h.commands["reorder_custom_playlist_tracks"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		trackID, err := args.getInt64("trackId")
		if err != nil {
			return nil, err
		}
		newPosition, err := args.getInt("newPosition")
		if err != nil {
			return nil, err
		}
		if err := h.playlistRepo.ReorderTrack(playlistID, trackID, newPosition); err != nil {
			return nil, err
		}
		return h.playlistRepo.ListTracks(playlistID)
	}

	// ---------- 联合歌单 ----------
	h.commands["create_union_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		name, err := args.getString("name")
		if err != nil {
			return nil, err
		}
		playlist := &model.CustomPlaylist{
			Name:         name,
			PlaylistType: model.PlaylistTypeUnion,
		}
		if s := args.optionalString("description"); s != nil {
			playlist.Description = *s
		}
		if err := h.playlistRepo.Create(playlist); err != nil {
			return nil, err
		}
		h.invalidateCustomCache()
		return playlist, nil
	}
	h.commands["add_source_to_union_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		unionID, err := args.getString("unionPlaylistId")
		if err != nil {
			return nil, err
		}
		sourceType, err := args.getString("sourceType")
		if err != nil {
			return nil, err
		}
		sourcePlaylistID, err := args.getString("sourcePlaylistId")
		if err != nil {
			return nil, err
		}
		return h.sourceRepo.AddSource(unionID, model.Source(sourceType), sourcePlaylistID)
	}
	h.commands["get_union_playlist_sources"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		unionID, err := args.getString("unionPlaylistId")
		if err != nil {
			return nil, err
		}
		return h.sourceRepo.GetSources(unionID)
	}
	h.commands["remove_source_from_union_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		sourceID, err := args.getInt64("sourceId")
		if err != nil {
			return nil, err
		}
		return nil, h.sourceRepo.RemoveSource(sourceID)
	}
	h.commands["reorder_union_playlist_sources"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		unionID, err := args.getString("unionPlaylistId")
		if err != nil {
			return nil, err
		}
		sourceID, err := args.getInt64("sourceId")
		if err != nil {
			return nil, err
		}
		newPosition, err := args.getInt("newPosition")
		if err != nil {
			return nil, err
		}
		if err := h.sourceRepo.ReorderSource(unionID, sourceID, newPosition); err != nil {
			return nil, err
		}
		return h.sourceRepo.GetSources(unionID)
	}
	h.commands["get_union_playlist_tracks"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		unionID, err := args.getString("unionPlaylistId")
		if err != nil {
			return nil, err
		}
		return h.library.GetUnionTracks(ctx, unionID)
	}

	// ---------- 偏好 ----------
	h.commands["get_column_preferences"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.prefsRepo.GetColumnPreferences()
	}
	h.commands["save_column_preferences"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		prefs := &model.ColumnPreferences{}
		if err := args.decode("preferences", prefs); err != nil {
			return nil, err
		}
		return nil, h.prefsRepo.SaveColumnPreferences(prefs)
	}

	// ---------- 缓存 ----------
	h.commands["write_playlists_cache"] = h.writeCacheCommand(cache.KeyPlaylists)
	h.commands["read_playlists_cache"] = h.readCacheCommand(cache.KeyPlaylists)
	h.commands["clear_playlists_cache"] = h.clearCacheCommand(cache.KeyPlaylists)
	h.commands["write_custom_playlists_cache"] = h.writeCacheCommand(cache.KeyCustomPlaylists)
	h.commands["read_custom_playlists_cache"] = h.readCacheCommand(cache.KeyCustomPlaylists)
	h.commands["clear_custom_playlists_cache"] = h.clearCacheCommand(cache.KeyCustomPlaylists)
	h.commands["cache_stats"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		count, size, err := h.store.Stats()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entries": count, "sizeBytes": size}, nil
	}

	// 音频代理：返回绕过 CORS 的本地代理地址
	h.commands["get_audio_file"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		rawURL, err := args.getString("url")
		if err != nil {
			return nil, err
		}
		return map[string]string{"proxyUrl": audioProxyPath(rawURL)}, nil
	}
}

func (h *APIHandler) writeCacheCommand(key string) commandFunc {
	return func(ctx context.Context, args commandArgs) (interface{}, error) {
		raw, ok := args["data"]
		if !ok {
			return nil, fmt.Errorf("missing argument \"data\": %w", model.ErrValidation)
		}
		return nil, h.store.Write(key, json.RawMessage(raw))
	}
}

func (h *APIHandler) readCacheCommand(key string) commandFunc {
	return func(ctx context.Context, args commandArgs) (interface{}, error) {
		payload, err := h.store.Read(key)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, nil // 未命中返回 null，调用方自行回源
		}
		return payload, nil
	}
}

func (h *APIHandler) clearCacheCommand(key string) commandFunc {
	return func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.store.Clear(key)
	}
}

// invalidateCustomCache 自建歌单变更后使缓存失效
func (h *APIHandler) invalidateCustomCache() {
	if err := h.store.Clear(cache.KeyCustomPlaylists); err != nil {
		// 缓存失效失败不致命，下次读取还有版本兜底
		return
	}
}
