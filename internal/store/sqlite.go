package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/shared"
)

// SQLiteStore implements Repository using SQLite. Learning records live in
// the same database and are reached through Learning.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to prevent SQLITE_BUSY
	retry   shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS trainees (
		trainee_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		trainee_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		turns_in_phase INTEGER NOT NULL DEFAULT 0,
		turn_index INTEGER NOT NULL DEFAULT 0,
		history_json TEXT NOT NULL,
		scores_json TEXT NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(closed, updated_at);

	CREATE TABLE IF NOT EXISTS learning_records (
		topic TEXT PRIMARY KEY,
		successful_count INTEGER NOT NULL DEFAULT 0,
		unsuccessful_count INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// write runs fn under the write lock, retrying on SQLite conflicts.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	return shared.RetryOnConflict(ctx, op, s.retry, func() error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return fn()
	})
}

// GetTrainee retrieves a trainee by ID.
func (s *SQLiteStore) GetTrainee(ctx context.Context, traineeID string) (*domain.Trainee, error) {
	query := `
		SELECT trainee_id, display_name, last_seen_at, created_at, updated_at
		FROM trainees WHERE trainee_id = ?`

	var t domain.Trainee
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, traineeID).Scan(
		&t.TraineeID, &t.DisplayName, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trainee row: %w", err)
	}

	t.LastSeenAt = fromMillis(lastSeen)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

// UpsertTrainee creates or updates a trainee record.
func (s *SQLiteStore) UpsertTrainee(ctx context.Context, t *domain.Trainee) error {
	query := `
	INSERT INTO trainees (trainee_id, display_name, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(trainee_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.write(ctx, "upsert trainee", func() error {
		_, err := s.db.ExecContext(ctx, query,
			t.TraineeID, t.DisplayName,
			t.LastSeenAt.UnixMilli(), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upsert trainee: %w", err)
		}
		return nil
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a trainee.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, traineeID string, lastSeen time.Time) error {
	query := `UPDATE trainees SET last_seen_at = ?, updated_at = ? WHERE trainee_id = ?`
	return s.write(ctx, "update last seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.UnixMilli(), time.Now().UnixMilli(), traineeID)
		if err != nil {
			return fmt.Errorf("update last_seen: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			slog.Warn("UpdateLastSeen affected 0 rows", "trainee_id", traineeID)
			return ErrNotFound
		}
		return nil
	})
}

const sessionColumns = `session_id, trainee_id, phase, turns_in_phase, turn_index,
	history_json, scores_json, closed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var phase, historyJSON, scoresJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&sess.ID, &sess.TraineeID, &phase, &sess.TurnsInPhase, &sess.TurnIndex,
		&historyJSON, &scoresJSON, &sess.Closed, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	p, err := domain.ParsePhase(phase)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Phase = p
	if err := json.Unmarshal([]byte(historyJSON), &sess.History); err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", sess.ID, err)
	}
	sess.PhaseScores = make(map[domain.Phase][]int)
	if err := json.Unmarshal([]byte(scoresJSON), &sess.PhaseScores); err != nil {
		return nil, fmt.Errorf("decode scores of %s: %w", sess.ID, err)
	}
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return &sess, nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// SaveSession creates or replaces a session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	history := sess.History
	if history == nil {
		history = []domain.Turn{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	scores := sess.PhaseScores
	if scores == nil {
		scores = map[domain.Phase][]int{}
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	query := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		phase = excluded.phase,
		turns_in_phase = excluded.turns_in_phase,
		turn_index = excluded.turn_index,
		history_json = excluded.history_json,
		scores_json = excluded.scores_json,
		closed = excluded.closed,
		updated_at = excluded.updated_at`

	return s.write(ctx, "save session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.ID, sess.TraineeID, sess.Phase.String(), sess.TurnsInPhase, sess.TurnIndex,
			string(historyJSON), string(scoresJSON), sess.Closed,
			sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}

// ListIdleSessions returns open sessions whose last update is older than before.
func (s *SQLiteStore) ListIdleSessions(ctx context.Context, before time.Time) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE closed = 0 AND updated_at < ?`
	rows, err := s.db.QueryContext(ctx, query, before.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return sessions, nil
}

// DeleteClosedSessions removes closed sessions older than before and returns their IDs.
func (s *SQLiteStore) DeleteClosedSessions(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := s.write(ctx, "delete closed sessions", func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx,
			`DELETE FROM sessions WHERE closed = 1 AND updated_at < ? RETURNING session_id`, before.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete closed sessions: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan deleted session id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ Repository = (*SQLiteStore)(nil)
