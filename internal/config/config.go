// Package config defines runtime configuration for the relay server, loaded
// from environment variables with sensible defaults. In development a .env
// file is honored if present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// RoomSpec predeclares a room that exists from startup and survives
// emptiness, in contrast to auto-created ephemeral rooms.
type RoomSpec struct {
	ID   string
	Kind string
}

// Config holds the server configuration settings including security controls
// and room policy.
type Config struct {
	Port           string
	Env            string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	// AutoCreateRooms lets join-room create an unknown room on the fly.
	// With the flag off, only predeclared rooms can be joined.
	AutoCreateRooms bool
	// Rooms are predeclared at startup as "id:kind" pairs.
	Rooms []RoomSpec
	// ChatHistoryCapacity bounds the per-room message ring buffer.
	ChatHistoryCapacity int
	// MaxUsers caps distinct usernames at the login endpoint; zero means no cap.
	MaxUsers int
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		Env:  "development",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		AutoCreateRooms:     true,
		ChatHistoryCapacity: 50,
	}
}

func sanitize(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if !strings.HasPrefix(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if cfg.ChatHistoryCapacity <= 0 {
		cfg.ChatHistoryCapacity = 50
	}
	if cfg.MaxUsers < 0 {
		cfg.MaxUsers = 0
	}
	return cfg
}

// New creates a Config populated with default values for all settings.
func New() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Load reads configuration from environment variables, falling back to
// defaults for anything unset. A .env file is loaded first if one exists.
func Load() *Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseInt(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
	if auto := os.Getenv("AUTO_CREATE_ROOMS"); auto != "" {
		cfg.AutoCreateRooms = auto == "true" || auto == "1"
	}
	if rooms := os.Getenv("ROOMS"); rooms != "" {
		cfg.Rooms = parseRooms(rooms)
	}
	if capacity := os.Getenv("CHAT_HISTORY_CAPACITY"); capacity != "" {
		cfg.ChatHistoryCapacity = parseInt(capacity, cfg.ChatHistoryCapacity)
	}
	if maxUsers := os.Getenv("MAX_USERS"); maxUsers != "" {
		cfg.MaxUsers = parseInt(maxUsers, cfg.MaxUsers)
	}

	sanitized := sanitize(cfg)
	return &sanitized
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseRooms parses a predeclared room list such as
// "shared-room:chat,shared-doc:document,shared-board:whiteboard".
// A pair without a kind defaults to chat.
func parseRooms(value string) []RoomSpec {
	var specs []RoomSpec
	for _, entry := range splitAndTrim(value) {
		id, kind, found := strings.Cut(entry, ":")
		if id == "" {
			continue
		}
		if !found || kind == "" {
			kind = "chat"
		}
		specs = append(specs, RoomSpec{ID: id, Kind: kind})
	}
	return specs
}

func parseInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
