package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	BaseURL        string
	DataDir        string
	MaxUploadBytes int64
	AllowedOrigins []string

	OpenAIBaseURL string
	DefaultModel  string
	DefaultPrompt string
	MaxTokens     int

	BatchDelay   time.Duration
	MaxImageEdge int

	ShareSecret string
	ShareTTL    time.Duration
}

const defaultPrompt = "You are a helpful assistant that transcribes handwritten text."

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.BaseURL = envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.DataDir = envOrDefault("DATA_DIR", "data")
	cfg.AllowedOrigins = splitList(envOrDefault("ALLOWED_ORIGINS", cfg.BaseURL))

	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", "https://api.openai.com")
	cfg.DefaultModel = envOrDefault("OPENAI_MODEL", "gpt-4o-mini")
	cfg.DefaultPrompt = envOrDefault("TRANSCRIBE_PROMPT", defaultPrompt)

	maxTokens, err := parseIntEnv("OPENAI_MAX_TOKENS", 4096)
	if err != nil {
		return Config{}, fmt.Errorf("parse OPENAI_MAX_TOKENS: %w", err)
	}
	cfg.MaxTokens = int(maxTokens)

	batchDelayMS, err := parseIntEnv("BATCH_DELAY_MS", 1000)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_DELAY_MS: %w", err)
	}
	cfg.BatchDelay = time.Duration(batchDelayMS) * time.Millisecond

	maxImageEdge, err := parseIntEnv("MAX_IMAGE_EDGE", 2000)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_IMAGE_EDGE: %w", err)
	}
	cfg.MaxImageEdge = int(maxImageEdge)

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	cfg.ShareSecret = envOrDefault("SHARE_SECRET", "change-me")
	shareTTLSeconds, err := parseIntEnv("SHARE_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}
	cfg.ShareTTL = time.Duration(shareTTLSeconds) * time.Second

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
