package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/learning"
)

// SQLiteLearningBackend stores learning records in the learning_records table.
type SQLiteLearningBackend struct {
	s *SQLiteStore
}

// Learning returns the learning backend sharing this store's database.
func (s *SQLiteStore) Learning() *SQLiteLearningBackend {
	return &SQLiteLearningBackend{s: s}
}

func (b *SQLiteLearningBackend) Load(ctx context.Context, topic string) (*domain.ObjectionLearningRecord, error) {
	query := `
		SELECT topic, successful_count, unsuccessful_count, last_updated
		FROM learning_records WHERE topic = ?`

	var rec domain.ObjectionLearningRecord
	var updated int64
	err := b.s.db.QueryRowContext(ctx, query, topic).Scan(
		&rec.Topic, &rec.SuccessfulCount, &rec.UnsuccessfulCount, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan learning record: %w", err)
	}
	rec.LastUpdated = fromMillis(updated)
	return &rec, nil
}

// Save writes rec inside a transaction so a partial record is never visible.
func (b *SQLiteLearningBackend) Save(ctx context.Context, rec domain.ObjectionLearningRecord) error {
	query := `
	INSERT INTO learning_records (topic, successful_count, unsuccessful_count, last_updated)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(topic) DO UPDATE SET
		successful_count = excluded.successful_count,
		unsuccessful_count = excluded.unsuccessful_count,
		last_updated = excluded.last_updated`

	return b.s.write(ctx, "save learning record", func() error {
		tx, err := b.s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin learning tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.Topic, rec.SuccessfulCount, rec.UnsuccessfulCount, rec.LastUpdated.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save learning record: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit learning record: %w", err)
		}
		return nil
	})
}

func (b *SQLiteLearningBackend) LoadAll(ctx context.Context) ([]domain.ObjectionLearningRecord, error) {
	rows, err := b.s.db.QueryContext(ctx, `
		SELECT topic, successful_count, unsuccessful_count, last_updated
		FROM learning_records ORDER BY topic`)
	if err != nil {
		return nil, fmt.Errorf("query learning records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close learning rows", "error", closeErr)
		}
	}()

	var out []domain.ObjectionLearningRecord
	for rows.Next() {
		var rec domain.ObjectionLearningRecord
		var updated int64
		if err := rows.Scan(&rec.Topic, &rec.SuccessfulCount, &rec.UnsuccessfulCount, &updated); err != nil {
			return nil, fmt.Errorf("scan learning record: %w", err)
		}
		rec.LastUpdated = fromMillis(updated)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learning records: %w", err)
	}
	return out, nil
}

func (b *SQLiteLearningBackend) Clear(ctx context.Context) error {
	return b.s.write(ctx, "clear learning records", func() error {
		if _, err := b.s.db.ExecContext(ctx, `DELETE FROM learning_records`); err != nil {
			return fmt.Errorf("clear learning records: %w", err)
		}
		return nil
	})
}

var _ learning.Backend = (*SQLiteLearningBackend)(nil)
