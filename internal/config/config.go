// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	LearnerID   string
	HTTPTimeout time.Duration

	Remote  RemoteConfig
	Coach   CoachConfig
	Starter StarterConfig
	Trace   TraceConfig

	ConversationLog ConversationLogConfig
}

// RemoteConfig points at the assignment, session, profile and archive stores.
// An empty URL disables that store.
type RemoteConfig struct {
	AssignmentsURL string
	SessionsURL    string
	ProfilesURL    string
	StorageURL     string
	Token          string
}

// CoachConfig controls text generation.
type CoachConfig struct {
	APIKey       string
	Model        string
	ContextChars int
	HistoryTurns int
}

// StarterConfig controls starter bundle installation.
type StarterConfig struct {
	Root             string
	MaxBytes         int64
	WorkspaceFolders []string
}

// TraceConfig controls trace buffering.
type TraceConfig struct {
	FlushThreshold int
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8787"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/codecoach.db"),
		LearnerID:   strings.TrimSpace(getEnv("LEARNER_ID", "")),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		Remote: RemoteConfig{
			AssignmentsURL: NormalizeURL(getEnv("ASSIGNMENTS_API_URL", "http://localhost:4004")),
			SessionsURL:    NormalizeURL(getEnv("SESSIONS_API_URL", "http://localhost:4003")),
			ProfilesURL:    NormalizeURL(getEnv("PROFILES_API_URL", "")),
			StorageURL:     NormalizeURL(getEnv("STORAGE_API_URL", "")),
			Token:          strings.TrimSpace(getEnv("CODECOACH_TOKEN", "")),
		},
		Coach: CoachConfig{
			APIKey:       strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
			Model:        getEnv("GEMINI_MODEL", "gemini-flash-latest"),
			ContextChars: getEnvInt("COACH_CONTEXT_CHARS", 20000),
			HistoryTurns: getEnvInt("COACH_HISTORY_TURNS", 12),
		},
		Starter: StarterConfig{
			Root:             getEnv("STARTER_ROOT", "./workspace"),
			MaxBytes:         getEnvInt64("STARTER_MAX_BYTES", 50<<20),
			WorkspaceFolders: getEnvList("WORKSPACE_FOLDERS"),
		},
		Trace: TraceConfig{
			FlushThreshold: getEnvInt("TRACE_FLUSH_THRESHOLD", 10),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be > 0")
	}
	if c.Starter.Root == "" {
		return fmt.Errorf("STARTER_ROOT cannot be empty")
	}
	if c.Starter.MaxBytes <= 0 {
		return fmt.Errorf("STARTER_MAX_BYTES must be > 0")
	}
	if c.Trace.FlushThreshold <= 0 {
		return fmt.Errorf("TRACE_FLUSH_THRESHOLD must be > 0")
	}
	if c.Coach.ContextChars <= 0 {
		return fmt.Errorf("COACH_CONTEXT_CHARS must be > 0")
	}
	if c.Coach.HistoryTurns <= 0 {
		return fmt.Errorf("COACH_HISTORY_TURNS must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// NormalizeURL trims whitespace and trailing slashes from a base URL.
func NormalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
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

// getEnvList splits on the platform path list separator and drops blanks.
func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range filepath.SplitList(value) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
