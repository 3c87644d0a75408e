package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"DeckFM/core/jellyfin"
	"DeckFM/core/spotify"
	"DeckFM/logger"
	"DeckFM/model"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"
)

const (
	spotifyFile  = "spotify.json"
	jellyfinFile = "jellyfin.json"
)

// jellyfinCredentials 自托管服务器的持久化凭证
type jellyfinCredentials struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

// Manager 负责各提供方凭证的持久化与恢复。
//
// 启动时磁盘加载是异步的：加载完成前 IsAuthenticated 一律返回 false
// 而不是报错，Ready() 提供显式的就绪信号，调用方不需要靠定时重试猜时机。
// 目录上挂了 fsnotify：外部 OAuth 回调助手把 token 文件写进来时立刻生效。
type Manager struct {
	dir      string
	spotify  *spotify.Client
	jellyfin *jellyfin.Client

	mu     sync.RWMutex
	loaded bool

	ready   chan struct{}
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates a session manager rooted at dir.
func NewManager(dir string, spotifyClient *spotify.Client, jellyfinClient *jellyfin.Client) *Manager {
	return &Manager{
		dir:      dir,
		spotify:  spotifyClient,
		jellyfin: jellyfinClient,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the asynchronous initial load and the directory watcher.
func (m *Manager) Start() error {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create session watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch session directory: %w", err)
	}
	m.watcher = watcher

	go m.watchLoop()

	// 初始加载异步进行，完成后关闭 ready
	go func() {
		m.loadAll()
		m.mu.Lock()
		m.loaded = true
		m.mu.Unlock()
		close(m.ready)
		logger.Info("Session restoration completed")
	}()
	return nil
}

// Stop shuts down the watcher.
func (m *Manager) Stop() {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
}

// Ready returns a channel closed once the initial disk load has finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// AwaitReady blocks until the initial load finishes or ctx expires.
func (m *Manager) AwaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loaded reports whether the initial load has finished.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// IsAuthenticated reports whether the provider holds a session.
// 初始加载没完成时返回 false，绝不报错。
func (m *Manager) IsAuthenticated(source model.Source) bool {
	if !m.Loaded() {
		return false
	}
	switch source {
	case model.SourceSpotify:
		return m.spotify.Authenticated()
	case model.SourceJellyfin:
		return m.jellyfin.Authenticated()
	}
	return false
}

// watchLoop 监听会话目录，外部写入的凭证文件即时生效
func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			switch filepath.Base(event.Name) {
			case spotifyFile:
				if m.loadSpotify() {
					logger.Info("Spotify session picked up from session directory")
				}
			case jellyfinFile:
				if m.loadJellyfin() {
					logger.Info("Jellyfin session picked up from session directory")
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Session watcher error", logger.ErrorField(err))
		}
	}
}

func (m *Manager) loadAll() {
	m.loadSpotify()
	m.loadJellyfin()
}

// loadSpotify 从磁盘恢复 spotify token，成功返回 true
func (m *Manager) loadSpotify() bool {
	data, err := os.ReadFile(filepath.Join(m.dir, spotifyFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read spotify session file", logger.ErrorField(err))
		}
		return false
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		logger.Warn("Corrupt spotify session file", logger.ErrorField(err))
		return false
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return false
	}
	m.spotify.SetToken(token)
	return true
}

// loadJellyfin 从磁盘恢复 jellyfin 凭证（不做网络校验），成功返回 true
func (m *Manager) loadJellyfin() bool {
	data, err := os.ReadFile(filepath.Join(m.dir, jellyfinFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read jellyfin session file", logger.ErrorField(err))
		}
		return false
	}
	creds := &jellyfinCredentials{}
	if err := json.Unmarshal(data, creds); err != nil {
		logger.Warn("Corrupt jellyfin session file", logger.ErrorField(err))
		return false
	}
	if creds.URL == "" || creds.APIKey == "" {
		return false
	}
	m.jellyfin.Restore(creds.URL, creds.APIKey)
	return true
}

// SaveSpotify persists the client's current token.
func (m *Manager) SaveSpotify() error {
	token := m.spotify.Token()
	if token == nil {
		return fmt.Errorf("no spotify session to save: %w", model.ErrNotAuthenticated)
	}
	return m.writeFile(spotifyFile, token)
}

// RestoreSpotify attempts to load a previously saved token without user
// interaction. Returns whether a session was restored.
func (m *Manager) RestoreSpotify() bool {
	return m.loadSpotify()
}

// ClearSpotify removes the persisted spotify session.
func (m *Manager) ClearSpotify() error {
	return m.removeFile(spotifyFile)
}

// DisconnectSpotify drops the in-memory session and the persisted file.
func (m *Manager) DisconnectSpotify() error {
	m.spotify.Disconnect()
	return m.ClearSpotify()
}

// SaveJellyfin persists the client's current server credentials.
func (m *Manager) SaveJellyfin() error {
	url, apiKey := m.jellyfin.Credentials()
	if url == "" || apiKey == "" {
		return fmt.Errorf("no jellyfin session to save: %w", model.ErrNotAuthenticated)
	}
	return m.writeFile(jellyfinFile, &jellyfinCredentials{URL: url, APIKey: apiKey})
}

// RestoreJellyfin attempts to load previously saved server credentials.
func (m *Manager) RestoreJellyfin() bool {
	return m.loadJellyfin()
}

// ClearJellyfin removes the persisted jellyfin session.
func (m *Manager) ClearJellyfin() error {
	return m.removeFile(jellyfinFile)
}

// DisconnectJellyfin drops the in-memory session and the persisted file.
func (m *Manager) DisconnectJellyfin() error {
	m.jellyfin.Disconnect()
	return m.ClearJellyfin()
}

func (m *Manager) writeFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session file %s: %w", name, err)
	}
	path := filepath.Join(m.dir, name)
	tmpPath := path + ".tmp"
	// 凭证文件收紧权限
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename session file %s: %w", name, err)
	}
	return nil
}

func (m *Manager) removeFile(name string) error {
	if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file %s: %w", name, err)
	}
	return nil
}
