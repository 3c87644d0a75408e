package provider

import (
	"context"
	"fmt"
	"sync"

	"DeckFM/model"
)

// PlaylistProvider 外部音乐来源的公共能力集。
// 按 Source 标签分发，而不是靠继承。
type PlaylistProvider interface {
	Source() model.Source
	ListPlaylists(ctx context.Context) ([]model.Playlist, error)
	GetPlaylist(ctx context.Context, id string) (*model.Playlist, error)
	SearchTracks(ctx context.Context, query string) ([]model.Track, error)
}

// PlaylistSearcher 可选能力：按名称搜索歌单（目前只有 jellyfin 实现）
type PlaylistSearcher interface {
	SearchPlaylists(ctx context.Context, query string) ([]model.Playlist, error)
}

// HistoryProvider 可选能力：提供方侧的最近播放
type HistoryProvider interface {
	RecentlyPlayed(ctx context.Context, limit int) ([]model.Track, error)
}

// Registry 按来源标签注册/查找提供方
type Registry struct {
	mu        sync.RWMutex
	providers map[model.Source]PlaylistProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.Source]PlaylistProvider)}
}

// Register 注册一个提供方，同名来源覆盖
func (r *Registry) Register(p PlaylistProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Source()] = p
}

// Get 按来源取提供方
func (r *Registry) Get(source model.Source) (PlaylistProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("no provider registered for source %q: %w", source, model.ErrValidation)
	}
	return p, nil
}

// All 返回全部已注册提供方
func (r *Registry) All() []PlaylistProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PlaylistProvider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}
