package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"letsee/internal/model"
)

// Config holds environment-level tuning for the debate service.
type Config struct {
	HTTPPort    string
	CORSOrigins []string

	TurnSeconds       int
	TotalSeconds      int
	MaxTurns          int
	TopicRefreshLimit int
	MaxWarnings       int
	MaxArgumentLength int

	// SessionRetention is how long a finished session stays in the
	// in-memory registry before the reaper evicts it.
	SessionRetention time.Duration

	BlockedPhrases []string

	RedisAddr string
	MongoURI  string
	MongoDB   string
}

// Load reads configuration from the environment with sensible defaults.
func Load() *Config {
	return &Config{
		HTTPPort:          getEnv("PORT", "8080"),
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "*")),
		TurnSeconds:       getEnvInt("TURN_SECONDS", 30),
		TotalSeconds:      getEnvInt("TOTAL_SECONDS", 600),
		MaxTurns:          getEnvInt("MAX_TURNS", 60),
		TopicRefreshLimit: getEnvInt("TOPIC_REFRESH_LIMIT", 1),
		MaxWarnings:       getEnvInt("MAX_WARNINGS", 3),
		MaxArgumentLength: getEnvInt("MAX_ARGUMENT_LENGTH", 2000),
		SessionRetention:  time.Duration(getEnvInt("SESSION_RETENTION_SECONDS", 3600)) * time.Second,
		BlockedPhrases:    splitList(getEnv("MODERATION_BLOCKLIST", "hate,violence,terror")),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		MongoURI:          os.Getenv("MONGO_URI"),
		MongoDB:           getEnv("MONGO_DB", "letsee"),
	}
}

// SessionLimits returns the per-session rule set derived from this
// configuration.
func (c *Config) SessionLimits() model.Limits {
	return model.Limits{
		TurnSeconds:       c.TurnSeconds,
		TotalSeconds:      c.TotalSeconds,
		MaxTurns:          c.MaxTurns,
		TopicRefreshLimit: c.TopicRefreshLimit,
		MaxWarnings:       c.MaxWarnings,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
