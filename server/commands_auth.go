package server

import (
	"context"
	"fmt"
	"time"

	"DeckFM/logger"
	"DeckFM/model"

	"github.com/google/uuid"
)

// OAuth 回调轮询上限：600 次 × 1 秒，超时必须报错而不是挂死
const (
	oauthPollAttempts = 600
	oauthPollInterval = time.Second
)

// 提供方认证与会话命令
func (h *APIHandler) registerAuthCommands() {
	// 启动时磁盘会话是异步恢复的；前端启动后先等这个信号，
	// 再查各提供方的认证状态，不需要自己定时重试。
	h.commands["wait_session_restored"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		if err := h.sessions.AwaitReady(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{
			"spotify":  h.sessions.IsAuthenticated(model.SourceSpotify),
			"jellyfin": h.sessions.IsAuthenticated(model.SourceJellyfin),
		}, nil
	}

	// ---------- Spotify ----------
	h.commands["get_spotify_auth_url"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		state := uuid.NewString()
		return map[string]string{
			"url":   h.spotify.AuthURL(state),
			"state": state,
		}, nil
	}
	h.commands["authenticate_spotify"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		code, err := args.getString("code")
		if err != nil {
			return nil, err
		}
		if err := h.spotify.Authenticate(ctx, code); err != nil {
			return nil, err
		}
		// 认证成功顺手落盘，重启后可恢复
		if err := h.sessions.SaveSpotify(); err != nil {
			logger.Warn("Failed to persist spotify session", logger.ErrorField(err))
		}
		return nil, nil
	}
	// 等待外部 OAuth 助手完成认证，有界轮询
	h.commands["wait_spotify_authenticated"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		for i := 0; i < oauthPollAttempts; i++ {
			if h.spotify.Authenticated() {
				return map[string]bool{"authenticated": true}, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(oauthPollInterval):
			}
		}
		return nil, fmt.Errorf("spotify authentication timed out after %d attempts: %w",
			oauthPollAttempts, model.ErrAuth)
	}
	h.commands["is_spotify_authenticated"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"authenticated": h.sessions.IsAuthenticated(model.SourceSpotify)}, nil
	}
	h.commands["check_spotify_premium"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		premium, err := h.spotify.CheckPremium(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"premium": premium}, nil
	}
	h.commands["initialize_spotify_session"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		accessToken, err := args.getString("accessToken")
		if err != nil {
			return nil, err
		}
		// 握手在后台进行，前端轮询 is_spotify_session_ready
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.spotify.InitializeSession(ctx, accessToken); err != nil {
				logger.Error("Spotify session handshake failed", logger.ErrorField(err))
			}
		}()
		return nil, nil
	}
	h.commands["initialize_spotify_session_from_provider"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		if !h.spotify.Authenticated() {
			return nil, fmt.Errorf("spotify: %w", model.ErrNotAuthenticated)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.spotify.InitializeSessionFromStored(ctx); err != nil {
				logger.Error("Spotify session handshake failed", logger.ErrorField(err))
			}
		}()
		return nil, nil
	}
	h.commands["is_spotify_session_ready"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"ready": h.spotify.IsSessionReady()}, nil
	}
	h.commands["refresh_spotify_token"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		if err := h.spotify.Refresh(ctx); err != nil {
			return nil, err
		}
		if err := h.sessions.SaveSpotify(); err != nil {
			logger.Warn("Failed to persist refreshed spotify token", logger.ErrorField(err))
		}
		return nil, nil
	}
	h.commands["disconnect_spotify"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.sessions.DisconnectSpotify()
	}
	h.commands["save_spotify_session"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.sessions.SaveSpotify()
	}
	h.commands["restore_spotify_session"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"restored": h.sessions.RestoreSpotify()}, nil
	}
	h.commands["clear_spotify_session"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.sessions.ClearSpotify()
	}

	// ---------- Jellyfin ----------
	h.commands["authenticate_jellyfin"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		url, err := args.getString("url")
		if err != nil {
			return nil, err
		}
		apiKey, err := args.getString("apiKey")
		if err != nil {
			return nil, err
		}
		if err := h.jellyfin.Authenticate(ctx, url, apiKey); err != nil {
			return nil, err
		}
		if err := h.sessions.SaveJellyfin(); err != nil {
			logger.Warn("Failed to persist jellyfin session", logger.ErrorField(err))
		}
		return nil, nil
	}
	h.commands["is_jellyfin_authenticated"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"authenticated": h.sessions.IsAuthenticated(model.SourceJellyfin)}, nil
	}
	h.commands["disconnect_jellyfin"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return nil, h.sessions.DisconnectJellyfin()
	}
	h.commands["get_jellyfin_credentials"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		url, apiKey := h.jellyfin.Credentials()
		if url == "" {
			return nil, fmt.Errorf("jellyfin: %w", model.ErrNotAuthenticated)
		}
		return map[string]string{"url": url, "apiKey": apiKey}, nil
	}
	h.commands["restore_jellyfin_session"] = func(ctx context.Context, args commandArgs) (interface{}, error) {
		return map[string]bool{"restored": h.sessions.RestoreJellyfin()}, nil
	}
}
