package server

import (
	"context"

	"DeckFM/model"
)

// 播放控制命令。引擎内部已经串行化，这里只做参数解析和曲目解析。
func (h *APIHandler) registerPlaybackCommands() {
	h.commands["play"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.engine.Play()
	}
	h.commands["pause"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.engine.Pause()
	}
	h.commands["toggle_play_pause"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.engine.Toggle()
	}
	h.commands["next_track"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.engine.Next()
	}
	h.commands["previous_track"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.engine.Previous()
	}
	h.commands["seek"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		position, err := args.getInt64("position")
		if err != nil {
			return nil, err
		}
		return nil, h.engine.Seek(position)
	}
	h.commands["set_volume"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		volume, err := args.getInt("volume")
		if err != nil {
			return nil, err
		}
		return nil, h.engine.SetVolume(volume)
	}
	h.commands["toggle_shuffle"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"shuffle": h.engine.ToggleShuffle()}, nil
	}
	h.commands["set_repeat_mode"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		mode, err := args.getString("mode")
		if err != nil {
			return nil, err
		}
		return nil, h.engine.SetRepeatMode(model.RepeatMode(mode))
	}
	h.commands["get_playback_status"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return h.engine.Status(), nil
	}

	h.commands["play_track"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		track, err := h.resolveTrackArgs(ctx, args)
		if err != nil {
			return nil, err
		}
		return nil, h.engine.PlayTrack(*track)
	}
	h.commands["play_playlist"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		playlistID, err := args.getString("playlistId")
		if err != nil {
			return nil, err
		}
		source, err := args.getString("source")
		if err != nil {
			return nil, err
		}
		tracks, err := h.library.ResolvePlaylistTracks(ctx, model.Source(source), playlistID)
		if err != nil {
			return nil, err
		}
		return nil, h.engine.PlayTracks(tracks, 0)
	}
	// 表格里"从这里开始播"：前端直接给出完整有序曲目表和起始下标
	h.commands["play_playlist_from_track"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		var tracks []model.Track
		if err := args.decode("tracks", &tracks); err != nil {
			return nil, err
		}
		index, err := args.getInt("index")
		if err != nil {
			return nil, err
		}
		return nil, h.engine.PlayTracks(tracks, index)
	}
	// 动态联合歌单的低延迟起播：不做服务端歌单解析
	h.commands["play_tracks_immediate"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		var tracks []model.Track
		if err := args.decode("tracks", &tracks); err != nil {
			return nil, err
		}
		return nil, h.engine.PlayTracks(tracks, 0)
	}
	h.commands["queue_track"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		track, err := h.resolveTrackArgs(ctx, args)
		if err != nil {
			return nil, err
		}
		h.engine.QueueTrack(*track)
		return nil, nil
	}
	h.commands["clear_queue"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		h.engine.ClearQueue()
		return nil, nil
	}

	// 前端上报的进度与完成事件
	h.commands["update_position"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		position, err := args.getInt64("position")
		if err != nil {
			return nil, err
		}
		h.engine.UpdatePosition(position)
		return nil, nil
	}
	h.commands["notify_track_completed"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		generation := int64(args.optionalInt("generation", -1))
		return nil, h.engine.HandleTrackCompleted(generation)
	}
}

// resolveTrackArgs 从命令参数拼出可播放的 Track。
// 前端通常只带 trackId+source，展示字段尽量补全。
func (h *APIHandler) resolveTrackArgs(ctx context.Context, args commandArgs) (*model.Track, error) {
	// 参数里带了完整的 track 对象就直接用
	if _, ok := args["track"]; ok {
		track := &model.Track{}
		if err := args.decode("track", track); err != nil {
			return nil, err
		}
		if track.Source == model.SourceJellyfin && track.URL == "" {
			track.URL = h.jellyfin.StreamURL(track.ID)
		}
		return track, nil
	}

	trackID, err := args.getString("trackId")
	if err != nil {
		return nil, err
	}
	source, err := args.getString("source")
	if err != nil {
		return nil, err
	}

	track := &model.Track{
		ID:     trackID,
		Source: model.Source(source),
	}
	if s := args.optionalString("title"); s != nil {
		track.Title = *s
	}
	if s := args.optionalString("artist"); s != nil {
		track.Artist = *s
	}
	if s := args.optionalString("url"); s != nil {
		track.URL = *s
	}
	if track.Source == model.SourceJellyfin && track.URL == "" {
		track.URL = h.jellyfin.StreamURL(track.ID)
	}
	return track, nil
}
