package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string

	// Session manager
	HeartbeatInterval time.Duration // required client heartbeat cadence
	MissedHeartbeats  int           // missed beats before disconnect
	SendQueueCapacity int           // per-session outbound queue
	RoomCapacity      int           // max sessions per room, 0 = unlimited

	// Broadcaster
	RingSize        int           // per-room replay buffer
	RoomGracePeriod time.Duration // empty-room lifetime before teardown

	// AI router
	AttemptTimeout  time.Duration // per provider call
	TaskDeadline    time.Duration // total budget across attempts
	BreakerFailures int           // consecutive failures to open a circuit
	BreakerCooldown time.Duration // open-circuit cooldown

	// Provider chains, most preferred first, per task kind.
	TranscribeChain []string
	SummarizeChain  []string
	ActionsChain    []string

	// Provider credentials (empty disables the provider).
	OpenAIKey    string
	AnthropicKey string
	GeminiKey    string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		MissedHeartbeats:  getInt("MISSED_HEARTBEATS", 3),
		SendQueueCapacity: getInt("SEND_QUEUE_CAPACITY", 64),
		RoomCapacity:      getInt("ROOM_CAPACITY", 0),

		RingSize:        getInt("RING_SIZE", 256),
		RoomGracePeriod: getDuration("ROOM_GRACE_PERIOD", 30*time.Second),

		AttemptTimeout:  getDuration("AI_ATTEMPT_TIMEOUT", 10*time.Second),
		TaskDeadline:    getDuration("AI_TASK_DEADLINE", 45*time.Second),
		BreakerFailures: getInt("AI_BREAKER_FAILURES", 3),
		BreakerCooldown: getDuration("AI_BREAKER_COOLDOWN", 30*time.Second),

		TranscribeChain: getList("AI_TRANSCRIBE_CHAIN", "openai,gemini"),
		SummarizeChain:  getList("AI_SUMMARIZE_CHAIN", "anthropic,openai,gemini"),
		ActionsChain:    getList("AI_ACTIONS_CHAIN", "anthropic,openai"),

		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
	}

	// In production, require database and redis URLs
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ProviderChain returns the configured provider preference chain for a task
// kind. Unknown kinds get an empty chain.
func (c *Config) ProviderChain(kind string) []string {
	switch kind {
	case "transcribe":
		return c.TranscribeChain
	case "summarize":
		return c.SummarizeChain
	case "extract-actions":
		return c.ActionsChain
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
