package session

import (
	"context"
	"log/slog"
	"time"
)

// SweepConfig controls the idle session sweep.
type SweepConfig struct {
	Interval  time.Duration
	IdleTTL   time.Duration
	Retention time.Duration
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Closed  int
	Deleted int64
}

// StartSweeper runs a background goroutine that periodically closes idle
// sessions and purges closed ones past retention, until ctx is done.
func (s *Service) StartSweeper(ctx context.Context, cfg SweepConfig) {
	if cfg.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started",
			"interval", cfg.Interval,
			"idle_ttl", cfg.IdleTTL,
			"retention", cfg.Retention)

		for {
			select {
			case <-ticker.C:
				if _, err := s.Sweep(ctx, cfg); err != nil {
					slog.Error("Session sweep failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one pass. Individual close failures are logged and skipped.
func (s *Service) Sweep(ctx context.Context, cfg SweepConfig) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()

	if cfg.IdleTTL > 0 {
		idle, err := s.repo.ListIdleSessions(ctx, now.Add(-cfg.IdleTTL))
		if err != nil {
			return res, err
		}
		for _, candidate := range idle {
			if s.closeIdle(ctx, candidate.ID, now, cfg.IdleTTL) {
				res.Closed++
			}
		}
		if res.Closed > 0 {
			slog.Info("Session sweeper closed idle sessions", "count", res.Closed)
		}
	}

	if cfg.Retention > 0 {
		purged, err := s.repo.DeleteClosedSessions(ctx, now.Add(-cfg.Retention))
		if err != nil {
			return res, err
		}
		res.Deleted = int64(len(purged))
		for _, id := range purged {
			s.locks.Delete(id)
		}
		if len(purged) > 0 {
			slog.Info("Session sweeper purged closed sessions", "count", len(purged))
		}
	}
	return res, nil
}

// closeIdle re-reads the session under its lock so a turn that raced the
// sweep keeps the session open.
func (s *Service) closeIdle(ctx context.Context, sessionID string, now time.Time, ttl time.Duration) bool {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil || sess == nil || sess.Closed || sess.IdleFor(now) < ttl {
		return false
	}
	if err := s.closeLocked(ctx, sess, "idle"); err != nil {
		slog.Warn("Session sweeper failed to close session", "session_id", sessionID, "error", err)
		return false
	}
	return true
}
