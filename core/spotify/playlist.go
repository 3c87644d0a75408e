package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"DeckFM/model"
)

// Spotify API response types based on
// https://developer.spotify.com/documentation/web-api/reference/

type userProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Product     string `json:"product"` // premium, free, etc.
}

type image struct {
	URL string `json:"url"`
}

type artist struct {
	Name string `json:"name"`
}

type album struct {
	Name   string  `json:"name"`
	Images []image `json:"images"`
}

type apiTrack struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []artist `json:"artists"`
	Album      album    `json:"album"`
	DurationMS int64    `json:"duration_ms"`
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       owner  `json:"owner"`
	Tracks      struct {
		Total int `json:"total"`
	} `json:"tracks"`
	Images []image `json:"images"`
}

type paginatedPlaylists struct {
	Items []simplePlaylist `json:"items"`
	Next  *string          `json:"next"`
}

type playlistTrackItem struct {
	Track apiTrack `json:"track"`
}

type paginatedPlaylistTracks struct {
	Items []playlistTrackItem `json:"items"`
	Next  *string             `json:"next"`
}

type fullPlaylist struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Owner       owner   `json:"owner"`
	Images      []image `json:"images"`
	Tracks      struct {
		Total int                 `json:"total"`
		Items []playlistTrackItem `json:"items"`
		Next  *string             `json:"next"`
	} `json:"tracks"`
}

type searchResult struct {
	Tracks struct {
		Items []apiTrack `json:"items"`
	} `json:"tracks"`
}

// Source implements provider.PlaylistProvider.
func (c *Client) Source() model.Source {
	return model.SourceSpotify
}

// ListPlaylists retrieves the current user's playlists, following pagination.
func (c *Client) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	playlists := make([]model.Playlist, 0)
	endpoint := "/me/playlists?limit=50"
	for {
		var page paginatedPlaylists
		if err := c.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			playlists = append(playlists, model.Playlist{
				ID:          item.ID,
				Name:        item.Name,
				Owner:       ownerName(item.Owner),
				TrackCount:  item.Tracks.Total,
				Source:      model.SourceSpotify,
				Description: item.Description,
				ImageURL:    firstImage(item.Images),
			})
		}
		if page.Next == nil || *page.Next == "" {
			break
		}
		next, err := relativeEndpoint(*page.Next, c.baseURL)
		if err != nil {
			return nil, err
		}
		endpoint = next
	}
	return playlists, nil
}

// GetPlaylist retrieves a playlist with its full track list.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	var pl fullPlaylist
	if err := c.doRequest(ctx, "/playlists/"+url.PathEscape(id), &pl); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, pl.Tracks.Total)
	for _, item := range pl.Tracks.Items {
		tracks = append(tracks, c.toTrack(item.Track))
	}

	// 超过一页的曲目继续翻页
	next := pl.Tracks.Next
	for next != nil && *next != "" {
		endpoint, err := relativeEndpoint(*next, c.baseURL)
		if err != nil {
			return nil, err
		}
		var page paginatedPlaylistTracks
		if err := c.doRequest(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			tracks = append(tracks, c.toTrack(item.Track))
		}
		next = page.Next
	}

	return &model.Playlist{
		ID:          pl.ID,
		Name:        pl.Name,
		Owner:       ownerName(pl.Owner),
		TrackCount:  len(tracks),
		Source:      model.SourceSpotify,
		Tracks:      tracks,
		Description: pl.Description,
		ImageURL:    firstImage(pl.Images),
	}, nil
}

// SearchTracks searches tracks by free-text query.
func (c *Client) SearchTracks(ctx context.Context, query string) ([]model.Track, error) {
	endpoint := "/search?type=track&limit=30&q=" + url.QueryEscape(query)
	var result searchResult
	if err := c.doRequest(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(result.Tracks.Items))
	for _, item := range result.Tracks.Items {
		tracks = append(tracks, c.toTrack(item))
	}
	return tracks, nil
}

// toTrack normalizes an API track into the shared Track shape.
func (c *Client) toTrack(t apiTrack) model.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return model.Track{
		ID:         t.ID,
		Title:      t.Name,
		Artist:     strings.Join(names, ", "),
		Album:      t.Album.Name,
		DurationMs: t.DurationMS,
		Source:     model.SourceSpotify,
		ImageURL:   firstImage(t.Album.Images),
	}
}

func ownerName(o owner) string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return o.ID
}

func firstImage(images []image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// relativeEndpoint 把 API 返回的绝对 next 链接还原成相对 endpoint
func relativeEndpoint(absolute, base string) (string, error) {
	if strings.HasPrefix(absolute, base) {
		return strings.TrimPrefix(absolute, base), nil
	}
	u, err := url.Parse(absolute)
	if err != nil {
		return "", fmt.Errorf("failed to parse pagination link %q: %w", absolute, err)
	}
	endpoint := u.Path
	if i := strings.Index(endpoint, "/v1"); i >= 0 {
		endpoint = endpoint[i+len("/v1"):]
	}
	if u.RawQuery != "" {
		endpoint += "?" + u.RawQuery
	}
	return endpoint, nil
}
