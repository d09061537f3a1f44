package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Business day
	// 「今日」の意味がホストのデプロイ先リージョンに依存しないよう、
	// すべてのバッチ判定はこの1つの営業タイムゾーンに固定する。
	BusinessTimezone string

	// Nightly batch
	BatchRunHour   int
	BatchRunMinute int

	// Rate Limit
	RateLimitGeneral int
	RateLimitAdmin   int

	// Server
	ServerPort  string
	AdminAPIKey string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	if cfg.AdminAPIKey == "" {
		missing = append(missing, "ADMIN_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BusinessTimezone = getEnvString("BUSINESS_TIMEZONE", "Asia/Tokyo")
	if _, err := time.LoadLocation(cfg.BusinessTimezone); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.BusinessTimezone, err)
	}

	runAt := getEnvString("BATCH_RUN_AT", "23:45")
	hour, minute, err := parseRunAt(runAt)
	if err != nil {
		return nil, fmt.Errorf("invalid BATCH_RUN_AT %q: %w", runAt, err)
	}
	cfg.BatchRunHour = hour
	cfg.BatchRunMinute = minute

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdmin = getEnvInt("RATE_LIMIT_ADMIN", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// parseRunAt は "HH:MM" 形式の起動時刻を解析する。
func parseRunAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
