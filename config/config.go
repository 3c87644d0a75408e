package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have sensible defaults for a local desktop deployment.
type Config struct {
	ListenAddr string // HTTP 监听地址，默认只绑回环
	DataDir    string // 所有本地数据的根目录
	DBPath     string // sqlite 数据库文件：DataDir/deckfm.db
	CacheDir   string // 磁盘缓存目录：DataDir/cache
	SessionDir string // 各提供方会话凭证目录：DataDir/sessions

	// Spotify OAuth 应用凭证
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// Jellyfin 默认连接（也可以在运行时通过命令认证）
	JellyfinURL    string
	JellyfinAPIKey string

	// 日志配置
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() 不会覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DECKFM_DATA_DIR", defaultDataDir())

	return &Config{
		ListenAddr: getEnv("DECKFM_LISTEN_ADDR", "127.0.0.1:8090"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, "deckfm.db"),
		CacheDir:   filepath.Join(dataDir, "cache"),
		SessionDir: filepath.Join(dataDir, "sessions"),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"), // 密钥不给默认值
		SpotifyRedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", "http://127.0.0.1:8090/callback"),

		JellyfinURL:    getEnv("JELLYFIN_URL", ""),
		JellyfinAPIKey: os.Getenv("JELLYFIN_API_KEY"),

		LogLevel:      getEnv("DECKFM_LOG_LEVEL", "info"),
		LogPath:       getEnv("DECKFM_LOG_PATH", filepath.Join(dataDir, "logs", "deckfm.log")),
		LogMaxSizeMB:  getEnvInt("DECKFM_LOG_MAX_SIZE_MB", 20),
		LogMaxBackups: getEnvInt("DECKFM_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getEnvInt("DECKFM_LOG_MAX_AGE_DAYS", 14),
	}
}

// defaultDataDir resolves the per-user data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".deckfm")
}
