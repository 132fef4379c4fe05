// Package app wires configuration into the dialogue engine and its storage.
// It is shared by the server and the rolesimctl CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/rolesim/internal/api"
	"github.com/ashureev/rolesim/internal/config"
	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/learning"
	"github.com/ashureev/rolesim/internal/store"
)

const redisDialTimeout = 5 * time.Second

// Learning is an opened learning backend.
type Learning struct {
	Backend learning.Backend
	// Checks are extra health checks, keyed by component name.
	Checks map[string]api.Pinger
	close  func() error
}

// Close releases backend connections not owned by the repository.
func (l *Learning) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

// OpenLearning opens the configured learning backend. The SQLite backend
// shares repo's database.
func OpenLearning(ctx context.Context, cfg config.LearningConfig, repo *store.SQLiteStore) (*Learning, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		if repo == nil {
			return nil, fmt.Errorf("sqlite learning backend needs a database")
		}
		return &Learning{Backend: repo.Learning(), Checks: map[string]api.Pinger{}}, nil
	case config.BackendMemory:
		return &Learning{Backend: learning.NewMemoryBackend(), Checks: map[string]api.Pinger{}}, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		backend := store.NewRedisLearningBackend(client, cfg.RedisPrefix)

		pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
		defer cancel()
		if err := backend.Ping(pingCtx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		slog.Info("Redis learning backend connected", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		return &Learning{
			Backend: backend,
			Checks:  map[string]api.Pinger{"redis": backend},
			close:   client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown learning backend %q", cfg.Backend)
	}
}

// LoadCatalog returns the catalog at path, or the embedded default when path
// is empty.
func LoadCatalog(path string) (*dialogue.Catalog, error) {
	if path == "" {
		return dialogue.DefaultCatalog()
	}
	return dialogue.LoadCatalog(path)
}

// NewEngine builds the dialogue engine from cfg. A nil random uses the
// engine's default source.
func NewEngine(cfg config.DialogueConfig, catalog *dialogue.Catalog, learner dialogue.Learner, random dialogue.Randomizer, logger *slog.Logger) (*dialogue.Engine, error) {
	engine, err := dialogue.NewEngine(dialogue.EngineConfig{
		Catalog: catalog,
		Learner: learner,
		Selector: dialogue.SelectorConfig{
			Random:         random,
			BucketPriority: cfg.ObjectionPriority,
			Escalation: dialogue.Escalation{
				Hard:   cfg.EscalationHard,
				Expert: cfg.EscalationExpert,
			},
		},
		LengthThreshold:  cfg.LengthThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build dialogue engine: %w", err)
	}
	return engine, nil
}
