package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	DzineAPIKey  string
	DzineBaseURL string

	StoragePath           string
	StorageBaseURL        string
	DownloadSigningSecret string
	GeoIPDBPath           string

	TokenWindow   time.Duration
	SignedURLTTL  time.Duration
	StyleCacheTTL time.Duration
	PollInterval  time.Duration
	PollTimeout   time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		DzineAPIKey:           os.Getenv("DZINE_API_KEY"),
		DzineBaseURL:          getEnv("DZINE_BASE_URL", "https://papi.dzine.ai/openapi/v1"),
		StoragePath:           getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:        getEnv("STORAGE_BASE_URL", "http://localhost:8080/files"),
		DownloadSigningSecret: os.Getenv("DOWNLOAD_SIGNING_SECRET"),
		GeoIPDBPath:           os.Getenv("GEOIP_DB_PATH"),
		TokenWindow:           time.Minute * time.Duration(getEnvInt("DOWNLOAD_TOKEN_MINUTES", 60)),
		SignedURLTTL:          time.Second * time.Duration(getEnvInt("SIGNED_URL_TTL_SECONDS", 900)),
		StyleCacheTTL:         time.Minute * time.Duration(getEnvInt("STYLE_CACHE_TTL_MINUTES", 60)),
		PollInterval:          time.Second * time.Duration(getEnvInt("GENERATION_POLL_INTERVAL_SECONDS", 5)),
		PollTimeout:           time.Second * time.Duration(getEnvInt("GENERATION_POLL_TIMEOUT_SECONDS", 180)),
		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:       getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.DownloadSigningSecret == "" {
		return nil, fmt.Errorf("DOWNLOAD_SIGNING_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
