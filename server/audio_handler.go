package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"DeckFM/logger"
	"DeckFM/model"
)

// 音频代理允许的协议
func allowedAudioURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed audio URL: %w", model.ErrValidation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported audio URL scheme %q: %w", u.Scheme, model.ErrValidation)
	}
	return u, nil
}

// audioProxyPath 拼出本地代理地址
func audioProxyPath(rawURL string) string {
	return "/api/audio?url=" + url.QueryEscape(rawURL)
}

// AudioProxyHandler 代拉音频文件，绕开浏览器 CORS 限制。
// GET /api/audio?url=<encoded>
func (h *APIHandler) AudioProxyHandler(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	target, err := allowedAudioURL(raw)
	if err != nil {
		http.Error(w, model.UserMessage(err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 120*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}
	// Range 透传，前端音频元素要拖进度条
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Warn("Audio proxy fetch failed",
			logger.String("url", target.Host),
			logger.ErrorField(err))
		http.Error(w, model.UserMessage(model.ErrTransient), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for _, header := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(header); v != "" {
			w.Header().Set(header, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Debug("Audio proxy stream interrupted", logger.ErrorField(err))
	}
}
