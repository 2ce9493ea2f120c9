package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Renderer selects which resource plays media.
const (
	RendererLocal  = "local"
	RendererRemote = "remote"
)

// Preference backends.
const (
	PrefsFile  = "file"
	PrefsRedis = "redis"
)

// Config holds application configuration.
type Config struct {
	// Renderer is "local" (sound card via beep) or "remote" (renderer
	// daemon). RendererCmd, when set, is launched before connecting.
	Renderer     string
	RendererPort int
	RendererURL  string
	RendererCmd  string

	PrefsBackend string
	PrefsPath    string
	RedisURL     string

	CatalogURL   string
	CatalogToken string

	LogLevel string
	LogFile  string
}

// Load reads configuration from the .env file or system environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	port := 3678
	if v := os.Getenv("PLAYER_RENDERER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			port = p
		}
	}

	renderer := strings.ToLower(os.Getenv("PLAYER_RENDERER"))
	if renderer != RendererRemote {
		renderer = RendererLocal
	}

	backend := strings.ToLower(os.Getenv("PLAYER_PREFS_BACKEND"))
	if backend != PrefsRedis {
		backend = PrefsFile
	}

	return &Config{
		Renderer:     renderer,
		RendererPort: port,
		RendererURL:  os.Getenv("PLAYER_RENDERER_URL"),
		RendererCmd:  os.Getenv("PLAYER_RENDERER_CMD"),
		PrefsBackend: backend,
		PrefsPath:    os.Getenv("PLAYER_PREFS_PATH"),
		RedisURL:     getenv("PLAYER_REDIS_URL", "redis://localhost:6379/0"),
		CatalogURL:   os.Getenv("PLAYER_CATALOG_URL"),
		CatalogToken: os.Getenv("PLAYER_CATALOG_TOKEN"),
		LogLevel:     getenv("PLAYER_LOG_LEVEL", "info"),
		LogFile:      getenv("PLAYER_LOG_FILE", filepath.Join(os.TempDir(), "cli_player.log")),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
