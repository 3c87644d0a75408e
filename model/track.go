package model

// Source 标识曲目/歌单的来源
type Source string

const (
	SourceSpotify  Source = "spotify"
	SourceJellyfin Source = "jellyfin"
	SourceCustom   Source = "custom"
)

// Valid 判断来源标识是否合法
func (s Source) Valid() bool {
	switch s {
	case SourceSpotify, SourceJellyfin, SourceCustom:
		return true
	}
	return false
}

// Track represents a single playable track, normalized from whichever
// provider it came from. Immutable once constructed from a provider response.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Source     Source `json:"source"`
	URL        string `json:"url,omitempty"`      // 可直接拉取的音频地址（jellyfin/custom）
	ImageURL   string `json:"imageUrl,omitempty"`
}

// Playlist represents a provider-owned or custom collection of tracks.
// Tracks is only populated on detail fetches.
type Playlist struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Owner       string  `json:"owner"`
	TrackCount  int     `json:"trackCount"`
	Source      Source  `json:"source"`
	Tracks      []Track `json:"tracks,omitempty"`
	Description string  `json:"description,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
}
