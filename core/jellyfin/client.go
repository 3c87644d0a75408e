package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"DeckFM/logger"
	"DeckFM/model"
)

// Client 自托管 Jellyfin 服务器的API客户端。
// 认证是简单的 URL + API key，没有 Spotify 那种两层握手。
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

// NewClient 创建新的API客户端
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Authenticate validates the server URL and API key with a ping to
// /System/Info, then resolves the user the key belongs to.
func (c *Client) Authenticate(ctx context.Context, serverURL, apiKey string) error {
	serverURL = strings.TrimRight(serverURL, "/")
	if serverURL == "" || apiKey == "" {
		return fmt.Errorf("server URL and API key are required: %w", model.ErrValidation)
	}

	c.mu.Lock()
	c.baseURL = serverURL
	c.apiKey = apiKey
	c.userID = ""
	c.mu.Unlock()

	var info struct {
		ServerName string `json:"ServerName"`
		Version    string `json:"Version"`
	}
	if err := c.doRequest(ctx, "/System/Info", nil, &info); err != nil {
		c.mu.Lock()
		c.baseURL, c.apiKey = "", ""
		c.mu.Unlock()
		return err
	}

	// API key 关联的用户，歌单列表要按用户查
	var users []struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
	}
	if err := c.doRequest(ctx, "/Users", nil, &users); err != nil {
		return err
	}
	if len(users) > 0 {
		c.mu.Lock()
		c.userID = users[0].ID
		c.mu.Unlock()
	}

	logger.Info("Jellyfin authenticated",
		logger.String("server", info.ServerName),
		logger.String("version", info.Version))
	return nil
}

// Restore installs previously saved credentials without a network round trip.
// 凭证有效性在第一次真正调用时才暴露出来。
func (c *Client) Restore(serverURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(serverURL, "/")
	c.apiKey = apiKey
}

// Authenticated reports whether the client holds server credentials.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL != "" && c.apiKey != ""
}

// Credentials returns the stored server URL and API key.
func (c *Client) Credentials() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.apiKey
}

// Disconnect drops the stored credentials.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL, c.apiKey, c.userID = "", "", ""
}

// doRequest performs an authenticated GET and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params map[string]string, result interface{}) error {
	c.mu.RLock()
	baseURL, apiKey := c.baseURL, c.apiKey
	c.mu.RUnlock()
	if baseURL == "" || apiKey == "" {
		return fmt.Errorf("jellyfin: %w", model.ErrNotAuthenticated)
	}

	requestURL := baseURL + endpoint
	if len(params) > 0 {
		pairs := make([]string, 0, len(params))
		for k, v := range params {
			pairs = append(pairs, k+"="+v)
		}
		requestURL += "?" + strings.Join(pairs, "&")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Emby-Token", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jellyfin request failed: %w", model.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("jellyfin API key rejected: %w", model.ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("jellyfin resource %s: %w", endpoint, model.ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("jellyfin API status %d: %w", resp.StatusCode, model.ErrTransient)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("jellyfin API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode jellyfin response: %w", err)
		}
	}
	return nil
}
