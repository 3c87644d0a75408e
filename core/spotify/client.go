package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"DeckFM/logger"
	"DeckFM/model"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	authURL       = "https://accounts.spotify.com/authorize"
	tokenURL      = "https://accounts.spotify.com/api/token"
	defaultAPIURL = "https://api.spotify.com/v1"
)

// Client Spotify Web API 客户端。
// 认证分两层：Web API 的 OAuth token 只够列表/搜索，
// 真正播放还需要一次独立的播放会话握手（见 session.go）。
type Client struct {
	config  *oauth2.Config
	baseURL string
	limiter *rate.Limiter

	mu         sync.RWMutex
	token      *oauth2.Token
	httpClient *http.Client

	sessionReady atomic.Bool
}

// NewClient creates a new Spotify API client.
func NewClient(clientID, clientSecret, redirectURI string) *Client {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"playlist-read-private",
			"playlist-read-collaborative",
			"user-library-read",
			"streaming",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}
	return &Client{
		config:  config,
		baseURL: defaultAPIURL,
		// Spotify 对单应用限流较严，稳妥起见 5 req/s
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL 设置API基础URL（测试用）
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// AuthURL returns the OAuth2 authorization URL for user login.
// 浏览器弹窗由外部协作方负责，这里只产出地址。
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Authenticate exchanges an authorization code for a token.
func (c *Client) Authenticate(ctx context.Context, code string) error {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", model.ErrAuth)
	}
	c.SetToken(token)
	logger.Info("Spotify authenticated", logger.Bool("hasRefreshToken", token.RefreshToken != ""))
	return nil
}

// SetToken installs a token (e.g. one restored from the session store).
func (c *Client) SetToken(token *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current token, or nil when not authenticated.
func (c *Client) Token() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticated reports whether the client holds a usable token.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != nil && c.token.AccessToken != ""
}

// Refresh forces a token refresh using the stored refresh token.
// 刷新失败降级为未认证，不作为致命错误。
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("no refresh token available: %w", model.ErrNotAuthenticated)
	}

	// 把 token 标成过期，强制 TokenSource 走刷新
	expired := *token
	expired.Expiry = time.Now().Add(-time.Minute)
	fresh, err := c.config.TokenSource(ctx, &expired).Token()
	if err != nil {
		c.SetToken(nil)
		c.sessionReady.Store(false)
		return fmt.Errorf("failed to refresh token: %w", model.ErrAuth)
	}
	c.SetToken(fresh)
	logger.Info("Spotify token refreshed")
	return nil
}

// Disconnect drops the token and playback session.
func (c *Client) Disconnect() {
	c.SetToken(nil)
	c.sessionReady.Store(false)
}

// doRequest performs an authenticated GET against the Spotify API.
func (c *Client) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("spotify: %w", model.ErrNotAuthenticated)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify request failed: %w", model.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("spotify token rejected: %w", model.ErrAuth)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("spotify resource %s: %w", endpoint, model.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("spotify API status %d: %w", resp.StatusCode, model.ErrTransient)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode spotify response: %w", err)
		}
	}
	return nil
}

// CheckPremium reports whether the account is on the premium tier.
func (c *Client) CheckPremium(ctx context.Context) (bool, error) {
	var user userProfile
	if err := c.doRequest(ctx, "/me", &user); err != nil {
		return false, err
	}
	return user.Product == "premium", nil
}
