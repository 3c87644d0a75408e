package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"DeckFM/core/jellyfin"
	"DeckFM/core/spotify"
	"DeckFM/model"

	"golang.org/x/oauth2"
)

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m := NewManager(dir,
		spotify.NewClient("client-id", "client-secret", "http://127.0.0.1/callback"),
		jellyfin.NewClient())
	t.Cleanup(m.Stop)
	return m
}

func awaitReady(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.AwaitReady(ctx); err != nil {
		t.Fatalf("manager never became ready: %v", err)
	}
}

func writeSpotifyFile(t *testing.T, dir string) {
	t.Helper()
	token := &oauth2.Token{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	data, err := json.Marshal(token)
	if err != nil {
		t.Fatalf("failed to marshal token: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, spotifyFile), data, 0600); err != nil {
		t.Fatalf("failed to write spotify session file: %v", err)
	}
}

func TestManagerStartRestoresSessions(t *testing.T) {
	dir := t.TempDir()
	writeSpotifyFile(t, dir)

	creds := jellyfinCredentials{URL: "http://media.local:8096", APIKey: "key-1"}
	data, err := json.Marshal(creds)
	if err != nil {
		t.Fatalf("failed to marshal credentials: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, jellyfinFile), data, 0600); err != nil {
		t.Fatalf("failed to write jellyfin session file: %v", err)
	}

	m := newTestManager(t, dir)
	if err := m.Start(); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
	awaitReady(t, m)

	if !m.IsAuthenticated(model.SourceSpotify) {
		t.Error("spotify session should be restored from disk")
	}
	if !m.IsAuthenticated(model.SourceJellyfin) {
		t.Error("jellyfin session should be restored from disk")
	}
}

func TestIsAuthenticatedFalseBeforeLoad(t *testing.T) {
	m := newTestManager(t, t.TempDir())

	// Start 之前（等价于初始加载未完成）：返回 false 而不是报错
	if m.IsAuthenticated(model.SourceSpotify) {
		t.Error("expected false before the initial load completes")
	}
	if m.Loaded() {
		t.Error("manager must not report loaded before Start")
	}
}

func TestManagerStartEmptyDirectory(t *testing.T) {
	m := newTestManager(t, filepath.Join(t.TempDir(), "sessions"))
	if err := m.Start(); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
	awaitReady(t, m)

	if m.IsAuthenticated(model.SourceSpotify) {
		t.Error("expected no spotify session in a fresh directory")
	}
	if m.IsAuthenticated(model.SourceJellyfin) {
		t.Error("expected no jellyfin session in a fresh directory")
	}
}

func TestWatcherPicksUpExternalWrite(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t, dir)
	if err := m.Start(); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
	awaitReady(t, m)

	if m.IsAuthenticated(model.SourceSpotify) {
		t.Fatal("expected no session before the external write")
	}

	// 外部 OAuth 助手落盘 token 文件
	writeSpotifyFile(t, dir)

	deadline := time.Now().Add(5 * time.Second)
	for !m.IsAuthenticated(model.SourceSpotify) {
		if time.Now().After(deadline) {
			t.Fatal("watcher never picked up the external session file")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSaveAndRestoreJellyfin(t *testing.T) {
	dir := t.TempDir()
	jf := jellyfin.NewClient()
	jf.Restore("http://media.local:8096", "key-1")

	m := NewManager(dir, spotify.NewClient("id", "secret", "http://127.0.0.1/callback"), jf)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := m.SaveJellyfin(); err != nil {
		t.Fatalf("failed to save jellyfin session: %v", err)
	}

	// 新客户端冷启动恢复
	jf2 := jellyfin.NewClient()
	m2 := NewManager(dir, spotify.NewClient("id", "secret", "http://127.0.0.1/callback"), jf2)
	if !m2.RestoreJellyfin() {
		t.Fatal("expected jellyfin session to be restorable")
	}
	url, apiKey := jf2.Credentials()
	if url != "http://media.local:8096" || apiKey != "key-1" {
		t.Errorf("unexpected restored credentials: %s / %s", url, apiKey)
	}
}

func TestSaveSpotifyWithoutTokenFails(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if err := m.SaveSpotify(); err == nil {
		t.Error("expected an error when no token is held")
	}
}

func TestDisconnectClearsFileAndMemory(t *testing.T) {
	dir := t.TempDir()
	writeSpotifyFile(t, dir)

	m := newTestManager(t, dir)
	if err := m.Start(); err != nil {
		t.Fatalf("failed to start manager: %v", err)
	}
	awaitReady(t, m)

	if !m.IsAuthenticated(model.SourceSpotify) {
		t.Fatal("expected a restored spotify session")
	}
	if err := m.DisconnectSpotify(); err != nil {
		t.Fatalf("failed to disconnect: %v", err)
	}
	if m.IsAuthenticated(model.SourceSpotify) {
		t.Error("expected session dropped after disconnect")
	}
	if _, err := os.Stat(filepath.Join(dir, spotifyFile)); !os.IsNotExist(err) {
		t.Error("expected persisted session file removed")
	}
}

func TestClearMissingFileIsNoop(t *testing.T) {
	m := newTestManager(t, t.TempDir())
	if err := m.ClearSpotify(); err != nil {
		t.Errorf("clearing a missing session file should be a no-op, got %v", err)
	}
}
