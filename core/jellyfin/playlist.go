package jellyfin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"DeckFM/model"
)

// Jellyfin item 的公共字段，歌单和音频条目共用
type item struct {
	ID           string   `json:"Id"`
	Name         string   `json:"Name"`
	Type         string   `json:"Type"`
	Overview     string   `json:"Overview"`
	Artists      []string `json:"Artists"`
	Album        string   `json:"Album"`
	RunTimeTicks int64    `json:"RunTimeTicks"` // 1 tick = 100ns
	ChildCount   int      `json:"ChildCount"`
	ImageTags    struct {
		Primary string `json:"Primary"`
	} `json:"ImageTags"`
}

type itemsResponse struct {
	Items            []item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// Source implements provider.PlaylistProvider.
func (c *Client) Source() model.Source {
	return model.SourceJellyfin
}

// ListPlaylists retrieves all playlists visible to the authenticated user.
func (c *Client) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	var resp itemsResponse
	params := map[string]string{
		"IncludeItemTypes": "Playlist",
		"Recursive":        "true",
		"Fields":           "ChildCount,Overview",
	}
	if err := c.doRequest(ctx, "/Items", params, &resp); err != nil {
		return nil, err
	}

	playlists := make([]model.Playlist, 0, len(resp.Items))
	for _, it := range resp.Items {
		playlists = append(playlists, model.Playlist{
			ID:          it.ID,
			Name:        it.Name,
			Owner:       "jellyfin",
			TrackCount:  it.ChildCount,
			Source:      model.SourceJellyfin,
			Description: it.Overview,
			ImageURL:    c.imageURL(it),
		})
	}
	return playlists, nil
}

// GetPlaylist retrieves a playlist with its full track list.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	var meta item
	if err := c.doRequest(ctx, "/Items/"+url.PathEscape(id), nil, &meta); err != nil {
		return nil, err
	}
	if meta.Type != "Playlist" {
		return nil, fmt.Errorf("item %s is not a playlist: %w", id, model.ErrNotFound)
	}

	var resp itemsResponse
	if err := c.doRequest(ctx, "/Playlists/"+url.PathEscape(id)+"/Items", nil, &resp); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(resp.Items))
	for _, it := range resp.Items {
		tracks = append(tracks, c.toTrack(it))
	}

	return &model.Playlist{
		ID:          meta.ID,
		Name:        meta.Name,
		Owner:       "jellyfin",
		TrackCount:  len(tracks),
		Source:      model.SourceJellyfin,
		Tracks:      tracks,
		Description: meta.Overview,
		ImageURL:    c.imageURL(meta),
	}, nil
}

// SearchTracks searches audio items by free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]model.Track, error) {
	var resp itemsResponse
	params := map[string]string{
		"searchTerm":       url.QueryEscape(query),
		"IncludeItemTypes": "Audio",
		"Recursive":        "true",
		"Limit":            "30",
	}
	if err := c.doRequest(ctx, "/Items", params, &resp); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(resp.Items))
	for _, it := range resp.Items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// SearchPlaylists searches playlists by name. Spotify 侧没有这个能力，
// 所以它挂在可选接口 provider.PlaylistSearcher 上。
func (c *Client) SearchPlaylists(ctx context.Context, query string) ([]model.Playlist, error) {
	var resp itemsResponse
	params := map[string]string{
		"searchTerm":       url.QueryEscape(query),
		"IncludeItemTypes": "Playlist",
		"Recursive":        "true",
		"Fields":           "ChildCount,Overview",
		"Limit":            "30",
	}
	if err := c.doRequest(ctx, "/Items", params, &resp); err != nil {
		return nil, err
	}
	playlists := make([]model.Playlist, 0, len(resp.Items))
	for _, it := range resp.Items {
		playlists = append(playlists, model.Playlist{
			ID:          it.ID,
			Name:        it.Name,
			Owner:       "jellyfin",
			TrackCount:  it.ChildCount,
			Source:      model.SourceJellyfin,
			Description: it.Overview,
			ImageURL:    c.imageURL(it),
		})
	}
	return playlists, nil
}

// RecentlyPlayed retrieves the user's recently played audio items.
func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]model.Track, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp itemsResponse
	params := map[string]string{
		"IncludeItemTypes": "Audio",
		"Recursive":        "true",
		"SortBy":           "DatePlayed",
		"SortOrder":        "Descending",
		"Filters":          "IsPlayed",
		"Limit":            strconv.Itoa(limit),
	}
	if err := c.doRequest(ctx, "/Items", params, &resp); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(resp.Items))
	for _, it := range resp.Items {
		tracks = append(tracks, c.toTrack(it))
	}
	return tracks, nil
}

// StreamURL returns a directly fetchable audio URL for an item.
func (c *Client) StreamURL(itemID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/Audio/%s/universal?api_key=%s&Container=mp3", c.baseURL, itemID, c.apiKey)
}

// toTrack normalizes a Jellyfin audio item into the shared Track shape.
func (c *Client) toTrack(it item) model.Track {
	return model.Track{
		ID:         it.ID,
		Title:      it.Name,
		Artist:     strings.Join(it.Artists, ", "),
		Album:      it.Album,
		DurationMs: it.RunTimeTicks / 10000, // ticks 转毫秒
		Source:     model.SourceJellyfin,
		URL:        c.StreamURL(it.ID),
		ImageURL:   c.imageURL(it),
	}
}

func (c *Client) imageURL(it item) string {
	if it.ImageTags.Primary == "" {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s/Items/%s/Images/Primary?tag=%s", c.baseURL, it.ID, it.ImageTags.Primary)
}
