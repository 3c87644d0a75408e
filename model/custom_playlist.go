package model

// PlaylistType 区分普通自建歌单与联合歌单
type PlaylistType string

const (
	PlaylistTypeStandard PlaylistType = "standard"
	PlaylistTypeUnion    PlaylistType = "union"
)

// CustomPlaylist 本地自建歌单，完全由本地存储拥有
type CustomPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	ImageURL     string       `json:"imageUrl,omitempty"`
	CreatedAt    int64        `json:"createdAt"` // unix 秒
	UpdatedAt    int64        `json:"updatedAt"` // 任何变更都会刷新
	TrackCount   int          `json:"trackCount"`
	PlaylistType PlaylistType `json:"playlistType"`
}

// PlaylistTrack 歌单成员记录（不是 Track 本身），带冗余的展示字段。
// Position 在同一歌单内必须从 0 起连续、无重复。
type PlaylistTrack struct {
	ID          int64  `json:"id"`
	PlaylistID  string `json:"playlistId"`
	TrackSource Source `json:"trackSource"`
	TrackID     string `json:"trackId"`
	Position    int    `json:"position"`
	AddedAt     int64  `json:"addedAt"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Track 将成员记录还原为可播放的 Track
func (pt *PlaylistTrack) Track() Track {
	return Track{
		ID:         pt.TrackID,
		Title:      pt.Title,
		Artist:     pt.Artist,
		Album:      pt.Album,
		DurationMs: pt.DurationMs,
		Source:     pt.TrackSource,
		ImageURL:   pt.ImageURL,
	}
}

// UnionPlaylistSource 联合歌单的一个来源引用。
// 只引用来源歌单，不拥有它；删除引用不影响来源歌单本身。
type UnionPlaylistSource struct {
	ID               int64  `json:"id"`
	UnionPlaylistID  string `json:"unionPlaylistId"`
	SourceType       Source `json:"sourceType"`
	SourcePlaylistID string `json:"sourcePlaylistId"`
	Position         int    `json:"position"`
}
