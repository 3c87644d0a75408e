package playback

import (
	"fmt"

	"DeckFM/model"
)

// SessionChecker 播放引擎对 spotify 客户端的最小依赖：
// 两层认证里只有握手完成后才允许把播放分发过去。
type SessionChecker interface {
	Authenticated() bool
	IsSessionReady() bool
}

// Backend 按来源校验一个曲目当前是否可播。
// 真正的音频搬运不在这里：spotify 走原生播放会话，
// jellyfin/custom 的音频由前端通过音频代理直接拉取 URL。
type Backend interface {
	Source() model.Source
	CheckPlayable(track model.Track) error
}

// spotifyBackend gates playback on the native session handshake.
type spotifyBackend struct {
	session SessionChecker
}

// NewSpotifyBackend creates the spotify playback backend.
func NewSpotifyBackend(session SessionChecker) Backend {
	return &spotifyBackend{session: session}
}

func (b *spotifyBackend) Source() model.Source {
	return model.SourceSpotify
}

func (b *spotifyBackend) CheckPlayable(track model.Track) error {
	if !b.session.Authenticated() {
		return fmt.Errorf("spotify track %s: %w", track.ID, model.ErrNotAuthenticated)
	}
	if !b.session.IsSessionReady() {
		// 明确报错，不允许静默失败
		return fmt.Errorf("spotify track %s: %w", track.ID, model.ErrSessionNotReady)
	}
	return nil
}

// urlBackend is the generic fetch-and-decode path for tracks that carry a
// directly fetchable audio URL (jellyfin items, custom entries).
type urlBackend struct {
	source model.Source
}

// NewURLBackend creates a direct-URL backend for the given source tag.
func NewURLBackend(source model.Source) Backend {
	return &urlBackend{source: source}
}

func (b *urlBackend) Source() model.Source {
	return b.source
}

func (b *urlBackend) CheckPlayable(track model.Track) error {
	if track.URL == "" {
		return fmt.Errorf("track %s has no fetchable audio URL: %w", track.ID, model.ErrValidation)
	}
	return nil
}
