package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dialogue.PhaseTurns != 2 || cfg.Dialogue.SuccessThreshold != 7 {
		t.Errorf("unexpected dialogue defaults: %+v", cfg.Dialogue)
	}
	if diff := cmp.Diff([]string{"concession", "evidence"}, cfg.Dialogue.ObjectionPriority); diff != "" {
		t.Errorf("priority mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sessions.TTL != time.Hour {
		t.Errorf("SessionTTL = %v", cfg.Sessions.TTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEARNING_BACKEND", "Redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PHASE_TURNS", "3")
	t.Setenv("OBJECTION_PRIORITY", " Evidence , concession ")
	t.Setenv("SESSION_TTL", "15m")
	t.Setenv("TRANSCRIPT_ENABLED", "off")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Learning.Backend != BackendRedis || cfg.Learning.RedisAddr != "redis:6379" {
		t.Errorf("learning = %+v", cfg.Learning)
	}
	if cfg.Dialogue.PhaseTurns != 3 {
		t.Errorf("PhaseTurns = %d", cfg.Dialogue.PhaseTurns)
	}
	if diff := cmp.Diff([]string{"evidence", "concession"}, cfg.Dialogue.ObjectionPriority); diff != "" {
		t.Errorf("priority mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sessions.TTL != 15*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.Sessions.TTL)
	}
	if cfg.Transcript.Enabled {
		t.Error("transcripts should be disabled")
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:     "8080",
			DBPath:   "x.db",
			Learning: LearningConfig{Backend: BackendSQLite},
			Dialogue: DialogueConfig{PhaseTurns: 2, LengthThreshold: 100, SuccessThreshold: 7, EscalationHard: 3, EscalationExpert: 7},
			Sessions: SessionConfig{TTL: time.Hour},
			Transcript: TranscriptConfig{
				QueueSize: 10,
			},
			LogFormat: "json",
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Learning.Backend = "mongo" }, "LEARNING_BACKEND"},
		{"redis addr", func(c *Config) { c.Learning.Backend = BackendRedis }, "REDIS_ADDR"},
		{"phase turns", func(c *Config) { c.Dialogue.PhaseTurns = 0 }, "PHASE_TURNS"},
		{"threshold", func(c *Config) { c.Dialogue.SuccessThreshold = 11 }, "SUCCESS_THRESHOLD"},
		{"escalation", func(c *Config) { c.Dialogue.EscalationExpert = 2 }, "ESCALATION_HARD"},
		{"transcript dir", func(c *Config) { c.Transcript.Enabled = true }, "TRANSCRIPT_DIR"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestIsDevelopment(t *testing.T) {
	if !(&Config{}).IsDevelopment() {
		t.Error("empty frontend URL should be development")
	}
	if (&Config{FrontendURL: "https://rolesim.example"}).IsDevelopment() {
		t.Error("public URL should not be development")
	}
}
