package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider    string // anthropic, openai, ollama, gemini
	AnthropicKey   string // API key (X-Api-Key header)
	AnthropicToken string // OAuth token (Authorization: Bearer header)
	OpenAIKey      string
	GoogleKey      string
	LLMModel       string
	OllamaBaseURL  string
	LLMTimeout     time.Duration

	DiscordToken   string
	DiscordWebhook string

	StoreBackend  string // sqlite, redis
	DatabasePath  string
	RedisURL      string
	RetentionDays int

	Timezone        string
	DefaultDuration int // minutes

	PurgeCron   string
	MorningCron string
	EveningCron string

	LogDir string
	Debug  bool
}

// Dir is where per-user settings and logs live.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".anchor")
}

func File() string {
	return filepath.Join(Dir(), "config")
}

// Load reads ./.env, then ~/.anchor/config, then the environment. Earlier
// sources win because godotenv never overrides a variable that is set.
func Load() *Config {
	_ = godotenv.Load()       // ignore error if no .env
	_ = godotenv.Load(File()) // or no config file

	return &Config{
		LLMProvider:    envOr("LLM_PROVIDER", "anthropic"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicToken: os.Getenv("ANTHROPIC_AUTH_TOKEN"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		GoogleKey:      os.Getenv("GOOGLE_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
		OllamaBaseURL:  envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 30*time.Second),

		DiscordToken:   os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordWebhook: os.Getenv("DISCORD_WEBHOOK_URL"),

		StoreBackend:  envOr("STORE_BACKEND", "sqlite"),
		DatabasePath:  envOr("DATABASE_PATH", "./anchor.db"),
		RedisURL:      redisURL(),
		RetentionDays: envInt("CONTEXT_CLEANUP_DAYS", 7),

		Timezone:        envOr("DEFAULT_TIMEZONE", "America/Los_Angeles"),
		DefaultDuration: envInt("DEFAULT_DURATION_MINUTES", 30),

		PurgeCron:   envOr("PURGE_CRON", "15 3 * * *"),
		MorningCron: os.Getenv("MORNING_CRON"),
		EveningCron: os.Getenv("EVENING_CRON"),

		LogDir: envOr("LOG_DIR", filepath.Join(Dir(), "logs")),
		Debug:  os.Getenv("DEBUG") != "",
	}
}

// APIKey picks the key for the configured provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIKey
	case "gemini":
		return c.GoogleKey
	default:
		return c.AnthropicKey
	}
}

// Location resolves Timezone, falling back to the local zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// redisURL prefers REDIS_URL and otherwise assembles one from the
// REDIS_HOST/PORT/DB/PASSWORD variables.
func redisURL() string {
	if v := os.Getenv("REDIS_URL"); v != "" {
		return v
	}
	auth := ""
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		auth = ":" + pw + "@"
	}
	return fmt.Sprintf("redis://%s%s:%s/%s",
		auth, envOr("REDIS_HOST", "localhost"), envOr("REDIS_PORT", "6379"), envOr("REDIS_DB", "0"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}
