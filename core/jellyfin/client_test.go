package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"DeckFM/model"
)

// newTestServer fakes the handful of Jellyfin endpoints the client hits.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Emby-Token") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/System/Info":
			fmt.Fprint(w, `{"ServerName":"Media","Version":"10.9"}`)
		case r.URL.Path == "/Users":
			fmt.Fprint(w, `[{"Id":"u1","Name":"Admin"}]`)
		case r.URL.Path == "/Items" && strings.Contains(r.URL.RawQuery, "IncludeItemTypes=Playlist"):
			fmt.Fprint(w, `{"Items":[{"Id":"pl1","Name":"Road Trip","Type":"Playlist","ChildCount":2,"Overview":"summer"}],"TotalRecordCount":1}`)
		case r.URL.Path == "/Items/pl1":
			fmt.Fprint(w, `{"Id":"pl1","Name":"Road Trip","Type":"Playlist","ChildCount":2}`)
		case r.URL.Path == "/Playlists/pl1/Items":
			fmt.Fprint(w, `{"Items":[
				{"Id":"a1","Name":"Opener","Type":"Audio","Artists":["X"],"Album":"Y","RunTimeTicks":1800000000},
				{"Id":"a2","Name":"Closer","Type":"Audio","Artists":["X","Z"],"RunTimeTicks":2400000000}
			],"TotalRecordCount":2}`)
		case r.URL.Path == "/Items" && strings.Contains(r.URL.RawQuery, "IncludeItemTypes=Audio"):
			fmt.Fprint(w, `{"Items":[{"Id":"a1","Name":"Opener","Type":"Audio","RunTimeTicks":1800000000}],"TotalRecordCount":1}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func authedClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient()
	if err := c.Authenticate(context.Background(), srv.URL, "key-1"); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return c
}

func TestAuthenticate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		c := authedClient(t, srv)
		if !c.Authenticated() {
			t.Error("expected authenticated after successful ping")
		}
		url, apiKey := c.Credentials()
		if url != srv.URL || apiKey != "key-1" {
			t.Errorf("unexpected credentials: %s / %s", url, apiKey)
		}
	})

	t.Run("TrimsTrailingSlash", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		c := NewClient()
		if err := c.Authenticate(context.Background(), srv.URL+"/", "key-1"); err != nil {
			t.Fatalf("failed to authenticate: %v", err)
		}
		url, _ := c.Credentials()
		if strings.HasSuffix(url, "/") {
			t.Errorf("base URL should have no trailing slash, got %s", url)
		}
	})

	t.Run("BadKeyClearsCredentials", func(t *testing.T) {
		srv := newTestServer(t)
		defer srv.Close()

		c := NewClient()
		err := c.Authenticate(context.Background(), srv.URL, "wrong")
		if !errors.Is(err, model.ErrAuth) {
			t.Errorf("expected ErrAuth, got %v", err)
		}
		if c.Authenticated() {
			t.Error("failed authentication must not leave credentials behind")
		}
	})

	t.Run("EmptyArgsRejected", func(t *testing.T) {
		c := NewClient()
		err := c.Authenticate(context.Background(), "", "")
		if !errors.Is(err, model.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRestoreSkipsNetwork(t *testing.T) {
	c := NewClient()
	c.Restore("http://media.local:8096/", "key-1")

	if !c.Authenticated() {
		t.Error("expected authenticated after restore")
	}
	url, _ := c.Credentials()
	if url != "http://media.local:8096" {
		t.Errorf("expected trimmed URL, got %s", url)
	}
}

func TestDisconnect(t *testing.T) {
	c := NewClient()
	c.Restore("http://media.local:8096", "key-1")
	c.Disconnect()
	if c.Authenticated() {
		t.Error("expected unauthenticated after disconnect")
	}
}

func TestListPlaylists(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := authedClient(t, srv)
	playlists, err := c.ListPlaylists(context.Background())
	if err != nil {
		t.Fatalf("failed to list playlists: %v", err)
	}
	if len(playlists) != 1 {
		t.Fatalf("expected 1 playlist, got %d", len(playlists))
	}
	pl := playlists[0]
	if pl.ID != "pl1" || pl.Name != "Road Trip" || pl.TrackCount != 2 {
		t.Errorf("unexpected playlist: %+v", pl)
	}
	if pl.Source != model.SourceJellyfin {
		t.Errorf("expected jellyfin source, got %s", pl.Source)
	}
}

func TestGetPlaylist(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := authedClient(t, srv)
	pl, err := c.GetPlaylist(context.Background(), "pl1")
	if err != nil {
		t.Fatalf("failed to get playlist: %v", err)
	}
	if len(pl.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(pl.Tracks))
	}

	first := pl.Tracks[0]
	// 1 tick = 100ns：1800000000 ticks = 3 分钟
	if first.DurationMs != 180000 {
		t.Errorf("expected 180000ms, got %d", first.DurationMs)
	}
	if first.URL == "" {
		t.Error("jellyfin tracks must carry a fetchable stream URL")
	}
	if pl.Tracks[1].Artist != "X, Z" {
		t.Errorf("expected joined artists, got %q", pl.Tracks[1].Artist)
	}
}

func TestGetPlaylistRejectsNonPlaylistItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Id":"a1","Name":"Opener","Type":"Audio"}`)
	}))
	defer srv.Close()

	c := NewClient()
	c.Restore(srv.URL, "key-1")
	_, err := c.GetPlaylist(context.Background(), "a1")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a non-playlist item, got %v", err)
	}
}

func TestSearchTracks(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := authedClient(t, srv)
	tracks, err := c.SearchTracks(context.Background(), "opener")
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}
	if len(tracks) != 1 || tracks[0].ID != "a1" {
		t.Errorf("unexpected search result: %+v", tracks)
	}
}

func TestStreamURL(t *testing.T) {
	c := NewClient()
	if c.StreamURL("a1") != "" {
		t.Error("expected empty stream URL without credentials")
	}

	c.Restore("http://media.local:8096", "key-1")
	got := c.StreamURL("a1")
	want := "http://media.local:8096/Audio/a1/universal?api_key=key-1&Container=mp3"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestRequestsWithoutCredentials(t *testing.T) {
	c := NewClient()
	_, err := c.ListPlaylists(context.Background())
	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}
