package model

import "errors"

// 错误分类。边界层将这些哨兵错误映射为简短的用户可读提示，
// 内部细节（堆栈、请求体）不会跨边界外泄。
var (
	// ErrAuth 凭证无效或已过期，重新认证可恢复
	ErrAuth = errors.New("credential invalid or expired")
	// ErrNotAuthenticated 尚未认证/会话不存在
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionNotReady 已认证但原生播放会话握手未完成
	ErrSessionNotReady = errors.New("playback session not ready")
	// ErrNotFound 歌单/曲目/来源 ID 无法解析
	ErrNotFound = errors.New("not found")
	// ErrValidation 请求参数不满足约束
	ErrValidation = errors.New("validation failed")
	// ErrTransient 提供方暂时不可达，重试可恢复
	ErrTransient = errors.New("provider temporarily unreachable")
)

// ErrCacheVersion 缓存版本不匹配，内部自动清缓存解决，绝不对外暴露
var ErrCacheVersion = errors.New("cache version mismatch")

// UserMessage 将任意错误翻译为适合直接展示给用户的短句
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "Authentication failed, please reconnect"
	case errors.Is(err, ErrNotAuthenticated):
		return "Not connected to this provider"
	case errors.Is(err, ErrSessionNotReady):
		return "Playback session is still starting, try again shortly"
	case errors.Is(err, ErrNotFound):
		return "Requested item was not found"
	case errors.Is(err, ErrValidation):
		return "Invalid request"
	case errors.Is(err, ErrTransient):
		return "Service temporarily unavailable, please retry"
	case err != nil:
		return "Internal error"
	}
	return ""
}
