// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BotToken        string
	TelegramBaseURL string
	PollTimeout     time.Duration
	RequestTimeout  time.Duration

	GeminiAPIKey string
	GeminiModel  string

	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTP SMTPConfig

	AllowedEmailDomains []string
	CodeLength          int
	DefaultLanguage     string

	OpsPort string
}

// SMTPConfig holds the verification email delivery settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramBaseURL: getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org"),
		PollTimeout:     getEnvDuration("POLL_TIMEOUT", 30*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		DBPath:        getEnv("DB_PATH", "./data/debate.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("EMAIL_FROM", ""),
		},

		AllowedEmailDomains: getEnvList("ALLOWED_EMAIL_DOMAINS", []string{"ehu.lt", "student.ehu.lt"}),
		CodeLength:          getEnvInt("VERIFICATION_CODE_LENGTH", 6),
		DefaultLanguage:     getEnv("DEFAULT_LANGUAGE", "en"),

		OpsPort: getEnv("OPS_PORT", "8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN cannot be empty")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY cannot be empty")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST cannot be empty")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("EMAIL_FROM cannot be empty")
	}
	if c.RedisAddr == "" && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty when REDIS_ADDR is not set")
	}
	if len(c.AllowedEmailDomains) == 0 {
		return fmt.Errorf("ALLOWED_EMAIL_DOMAINS cannot be empty")
	}
	if c.CodeLength <= 0 {
		return fmt.Errorf("VERIFICATION_CODE_LENGTH must be > 0")
	}
	if c.DefaultLanguage == "" {
		return fmt.Errorf("DEFAULT_LANGUAGE cannot be empty")
	}
	if c.OpsPort == "" {
		return fmt.Errorf("OPS_PORT cannot be empty")
	}
	return nil
}

// UseRedis reports whether the Redis store backend is selected.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
