package server

import (
	"encoding/json"
	"net/http"

	"DeckFM/cache"
	"DeckFM/config"
	"DeckFM/core/jellyfin"
	"DeckFM/core/library"
	"DeckFM/core/playback"
	"DeckFM/core/session"
	"DeckFM/core/spotify"
	"DeckFM/logger"
	"DeckFM/model"
	"DeckFM/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg      *config.Config
	engine   *playback.Engine
	library  *library.Manager
	sessions *session.Manager
	spotify  *spotify.Client
	jellyfin *jellyfin.Client

	playlistRepo repository.CustomPlaylistRepository
	sourceRepo   repository.UnionSourceRepository
	prefsRepo    repository.PreferencesRepository
	historyRepo  repository.HistoryRepository
	store        *cache.Store

	commands map[string]commandFunc
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	engine *playback.Engine,
	libraryManager *library.Manager,
	sessions *session.Manager,
	spotifyClient *spotify.Client,
	jellyfinClient *jellyfin.Client,
	playlistRepo repository.CustomPlaylistRepository,
	sourceRepo repository.UnionSourceRepository,
	prefsRepo repository.PreferencesRepository,
	historyRepo repository.HistoryRepository,
	store *cache.Store,
) *APIHandler {
	h := &APIHandler{
		cfg:          cfg,
		engine:       engine,
		library:      libraryManager,
		sessions:     sessions,
		spotify:      spotifyClient,
		jellyfin:     jellyfinClient,
		playlistRepo: playlistRepo,
		sourceRepo:   sourceRepo,
		prefsRepo:    prefsRepo,
		historyRepo:  historyRepo,
		store:        store,
	}
	h.registerCommands()
	return h
}

// commandResponse 命令总线的统一响应
type commandResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// respondJSON 写出成功响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(commandResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// respondError 写出错误响应。对外只给简短可读的提示，
// 内部细节只进日志。
func respondError(w http.ResponseWriter, err error) {
	logger.Warn("Command failed", logger.ErrorField(err))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commandResponse{Success: false, Error: model.UserMessage(err)})
}
