package spotify

import (
	"context"
	"fmt"

	"DeckFM/logger"
	"DeckFM/model"

	"golang.org/x/oauth2"
)

// 播放会话握手。Web API 的 token 只能列表/搜索；premium 账号要再完成一次
// 原生播放会话握手才能真正出声。引擎在 IsSessionReady 为 false 时
// 必须拒绝向 spotify 分发播放，而不是静默失败。

type devicesResponse struct {
	Devices []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"is_active"`
	} `json:"devices"`
}

// InitializeSession establishes the native playback session using the given
// access token. Blocking; callers that need the pollable pattern run it in a
// goroutine and poll IsSessionReady.
func (c *Client) InitializeSession(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("empty access token: %w", model.ErrValidation)
	}
	c.SetToken(&oauth2.Token{AccessToken: accessToken})
	return c.InitializeSessionFromStored(ctx)
}

// InitializeSessionFromStored establishes the playback session with the token
// the client already holds (e.g. restored from the session store).
func (c *Client) InitializeSessionFromStored(ctx context.Context) error {
	c.sessionReady.Store(false)

	if !c.Authenticated() {
		return fmt.Errorf("spotify: %w", model.ErrNotAuthenticated)
	}

	// 握手第一步：校验 token 且确认 premium
	var user userProfile
	if err := c.doRequest(ctx, "/me", &user); err != nil {
		return fmt.Errorf("session handshake profile check failed: %w", err)
	}
	if user.Product != "premium" {
		return fmt.Errorf("playback session requires a premium account: %w", model.ErrAuth)
	}

	// 握手第二步：确认播放设备侧可达
	var devices devicesResponse
	if err := c.doRequest(ctx, "/me/player/devices", &devices); err != nil {
		return fmt.Errorf("session handshake device check failed: %w", err)
	}

	c.sessionReady.Store(true)
	logger.Info("Spotify playback session ready",
		logger.String("user", user.ID),
		logger.Int("devices", len(devices.Devices)))
	return nil
}

// IsSessionReady reports whether the playback handshake has completed.
// 可随时轮询，握手完成前恒为 false。
func (c *Client) IsSessionReady() bool {
	return c.sessionReady.Load()
}
