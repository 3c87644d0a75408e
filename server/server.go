package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"DeckFM/cache"
	"DeckFM/config"
	"DeckFM/core/jellyfin"
	"DeckFM/core/library"
	"DeckFM/core/playback"
	"DeckFM/core/provider"
	"DeckFM/core/session"
	"DeckFM/core/spotify"
	"DeckFM/db"
	"DeckFM/logger"
	"DeckFM/model"
	"DeckFM/repository"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
	})
	defer logger.Sync()

	// Create necessary directories if they don't exist
	ensureDirExists(cfg.DataDir)
	ensureDirExists(cfg.CacheDir)
	ensureDirExists(cfg.SessionDir)
	ensureDirExists(filepath.Dir(cfg.LogPath))

	// Connect to the database
	if err := db.ConnectDBAt(cfg.DBPath); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	if err := db.ConnectGormDBAt(cfg.DBPath); err != nil {
		logger.Fatal("Failed to connect gorm database", logger.ErrorField(err))
	}
	if err := db.AutoMigrateModels(&model.PreferenceRecord{}, &model.PlayHistory{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		logger.Fatal("Failed to open cache store", logger.ErrorField(err))
	}
	defer store.Flush()

	// 提供方客户端
	spotifyClient := spotify.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI)
	jellyfinClient := jellyfin.NewClient()
	seedJellyfinFromConfig(jellyfinClient, cfg)

	// 会话管理：异步恢复磁盘上的凭证，凭证目录有变动时热加载
	sessions := session.NewManager(cfg.SessionDir, spotifyClient, jellyfinClient)
	if err := sessions.Start(); err != nil {
		logger.Fatal("Failed to start session manager", logger.ErrorField(err))
	}
	defer sessions.Stop()

	registry := provider.NewRegistry()
	registry.Register(spotifyClient)
	registry.Register(jellyfinClient)

	playlistRepo := repository.NewSQLiteCustomPlaylistRepository(db.DB)
	sourceRepo := repository.NewSQLiteUnionSourceRepository(db.DB)
	prefsRepo := repository.NewGormPreferencesRepository(db.GormDB)
	historyRepo := repository.NewGormHistoryRepository(db.GormDB)

	libraryManager := library.NewManager(registry, playlistRepo, sourceRepo, store)

	engine := playback.NewEngine(historyRepo,
		playback.NewSpotifyBackend(spotifyClient),
		playback.NewURLBackend(model.SourceJellyfin),
		playback.NewURLBackend(model.SourceCustom),
	)

	apiHandler := NewAPIHandler(cfg, engine, libraryManager, sessions,
		spotifyClient, jellyfinClient,
		playlistRepo, sourceRepo, prefsRepo, historyRepo, store)

	hub := NewEventHub(engine)
	go hub.Run()
	defer hub.Stop()

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// API Endpoints
	router.HandleFunc("/api/command", apiHandler.CommandHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/audio", apiHandler.AudioProxyHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ws/events", apiHandler.EventsHandler(hub)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
		// 音频代理会长时间流式写出，WriteTimeout 放宽
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ListenAddr))
		logger.Info("Command bus at POST /api/command, events at /ws/events")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// seedJellyfinFromConfig 用环境里的默认连接预置客户端。
// 磁盘上保存过的会话随后恢复时会覆盖这里的默认值。
func seedJellyfinFromConfig(client *jellyfin.Client, cfg *config.Config) {
	if cfg.JellyfinURL == "" || cfg.JellyfinAPIKey == "" {
		return
	}
	client.Restore(cfg.JellyfinURL, cfg.JellyfinAPIKey)
	logger.Info("Seeded jellyfin connection from environment",
		logger.String("url", cfg.JellyfinURL))
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("Failed to create directory",
				logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("Failed to check directory",
			logger.String("path", path), logger.ErrorField(err))
	}
}
