// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Learning backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Learning    LearningConfig
	Dialogue    DialogueConfig
	Sessions    SessionConfig
	RateLimit   RateLimitConfig
	Transcript  TranscriptConfig
	LogLevel    string
	LogFormat   string
}

// LearningConfig selects where learning records are kept.
type LearningConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DialogueConfig tunes the conversation engine.
type DialogueConfig struct {
	CatalogPath       string
	PhaseTurns        int
	LengthThreshold   int
	SuccessThreshold  int
	EscalationHard    int
	EscalationExpert  int
	ObjectionPriority []string
}

// SessionConfig controls idle session handling.
type SessionConfig struct {
	TTL           time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

// RateLimitConfig limits trainee turn submissions.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/rolesim.db"),
		Learning: LearningConfig{
			Backend:       strings.ToLower(getEnv("LEARNING_BACKEND", BackendSQLite)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisPrefix:   getEnv("REDIS_PREFIX", "rolesim:learning"),
		},
		Dialogue: DialogueConfig{
			CatalogPath:       getEnv("CATALOG_PATH", ""),
			PhaseTurns:        getEnvInt("PHASE_TURNS", 2),
			LengthThreshold:   getEnvInt("LENGTH_THRESHOLD", 100),
			SuccessThreshold:  getEnvInt("SUCCESS_THRESHOLD", 7),
			EscalationHard:    getEnvInt("ESCALATION_HARD", 3),
			EscalationExpert:  getEnvInt("ESCALATION_EXPERT", 7),
			ObjectionPriority: getEnvList("OBJECTION_PRIORITY", []string{"concession", "evidence"}),
		},
		Sessions: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
			Retention:     getEnvDuration("SESSION_RETENTION", 7*24*time.Hour),
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: TranscriptConfig{
			Enabled:       getEnvBool("TRANSCRIPT_ENABLED", true),
			Dir:           getEnv("TRANSCRIPT_DIR", "./data/logs/transcripts"),
			GlobalEnabled: getEnvBool("TRANSCRIPT_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TRANSCRIPT_GLOBAL_PATH", "./data/logs/transcripts/all.ndjson"),
			QueueSize:     getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000),
		},
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
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
	switch c.Learning.Backend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Learning.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty with LEARNING_BACKEND=redis")
		}
	default:
		return fmt.Errorf("LEARNING_BACKEND must be sqlite, redis or memory, got %q", c.Learning.Backend)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Dialogue.PhaseTurns < 1 {
		return fmt.Errorf("PHASE_TURNS must be >= 1")
	}
	if c.Dialogue.LengthThreshold < 1 {
		return fmt.Errorf("LENGTH_THRESHOLD must be >= 1")
	}
	if c.Dialogue.SuccessThreshold < 1 || c.Dialogue.SuccessThreshold > 10 {
		return fmt.Errorf("SUCCESS_THRESHOLD must be between 1 and 10")
	}
	if c.Dialogue.EscalationHard < 1 || c.Dialogue.EscalationExpert < c.Dialogue.EscalationHard {
		return fmt.Errorf("ESCALATION_HARD must be >= 1 and <= ESCALATION_EXPERT")
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty")
	}
	if c.Transcript.GlobalEnabled && c.Transcript.GlobalPath == "" {
		return fmt.Errorf("TRANSCRIPT_GLOBAL_PATH cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS allow list.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
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
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
