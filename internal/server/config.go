package server

import (
	"os"
	"strings"
)

// Config holds server configuration
type Config struct {
	Port           string   // Listen port
	AllowedOrigins []string // Websocket/CORS origin allow-list; ["*"] allows all
	DBPath         string   // Directory holding the SQLite file
	OpenAIKey      string   // Judge credentials
	AuthSecret     string   // HS256 secret; empty disables the token gate
	LogLevel       string   // debug/info/warn/error
}

// ConfigFromEnv assembles a Config from the environment, applying
// development defaults for everything but the judge credentials
func ConfigFromEnv() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DBPath:         envOr("DB_PATH", "data"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		AuthSecret:     os.Getenv("AUTH_SECRET"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		AllowedOrigins: []string{"*"},
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}
	return cfg
}

// OriginAllowed checks an Origin header against the allow-list
func (c Config) OriginAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
