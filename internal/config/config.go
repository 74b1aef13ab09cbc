package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Pandora 云端
	BaseURL  string
	Username string
	Password string
	Language string

	// Polling
	PollInterval    time.Duration
	PollBackoffMax  time.Duration
	ControlTimeout  time.Duration
	WSReadTimeout   time.Duration
	UpdateWarnings  bool
	LocalUTCOffset  bool

	// Token 存储路径
	TokenFile string
}

func Load() (*Config, error) {
	// 尝试加载 .env 文件（可选）
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:     getEnv("PORT", "4000"),
		Debug:          getEnvBool("DEBUG", false),
		BaseURL:        getEnv("PANDORA_BASE_URL", "https://pro.p-on.ru"),
		Username:       getEnv("PANDORA_USERNAME", ""),
		Password:       getEnv("PANDORA_PASSWORD", ""),
		Language:       getEnv("PANDORA_LANGUAGE", "ru"),
		PollInterval:   getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PollBackoffMax: getEnvDuration("POLL_BACKOFF_MAX", 5*time.Minute),
		ControlTimeout: getEnvDuration("CONTROL_TIMEOUT", 30*time.Second),
		WSReadTimeout:  getEnvDuration("WS_READ_TIMEOUT", 180*time.Second),
		UpdateWarnings: getEnvBool("UPDATE_WARNINGS", false),
		LocalUTCOffset: getEnvBool("LOCAL_UTC_OFFSET", true),
		TokenFile:      getEnv("TOKEN_FILE", "token.json"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
